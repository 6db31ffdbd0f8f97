package indexsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/activerules/internal/ir"
	"github.com/roach88/activerules/internal/testutil"
)

func TestReindex_RebuildsFromStore(t *testing.T) {
	st := testutil.OpenStore(t)
	x := testutil.OpenIndex(t)
	ctx := context.Background()

	// No hook attached: the index learns about rows only via Reindex.
	require.NoError(t, testutil.Activate(ctx, st,
		testutil.Activation{Profile: "myprofile", Rule: s001, Severity: "MAJOR", Params: map[string]string{"max": "10"}},
		testutil.Activation{Profile: "other-profile", Rule: s001, Severity: "MINOR"},
		testutil.Activation{Profile: "other-profile", Rule: s002, Severity: "INFO"},
	))

	stale := ir.ActiveRule{
		Key:        ir.NewActiveRuleKey("gone", s002),
		RuleKey:    s002,
		ProfileKey: "gone",
		Severity:   ir.SeverityInfo,
		Params:     map[string]string{},
	}
	require.NoError(t, x.Upsert(ctx, stale))
	require.NoError(t, x.Refresh(ctx))

	s := New(st, x, WithConcurrency(2))
	stats, err := s.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReindexStats{Indexed: 3, Failed: 0, Removed: 1}, stats)

	n, err := x.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hit, found, err := x.GetByKey(ctx, ir.NewActiveRuleKey("myprofile", s001))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]string{"max": "10"}, hit.Params)

	// Reindex is repeatable.
	stats, err = s.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReindexStats{Indexed: 3}, stats)
}

func TestReindex_ReportsBadRowsAndIndexesTheRest(t *testing.T) {
	st := testutil.OpenStore(t)
	x := testutil.OpenIndex(t)
	ctx := context.Background()

	require.NoError(t, testutil.Activate(ctx, st,
		testutil.Activation{Profile: "myprofile", Rule: s001, Severity: "MAJOR"},
		testutil.Activation{Profile: "myprofile", Rule: s002, Severity: "Major"},
	))

	stats, err := New(st, x).Reindex(ctx)
	require.ErrorIs(t, err, ir.ErrUnknownEnum)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 1, stats.Failed)

	_, found, err := x.GetByKey(ctx, ir.NewActiveRuleKey("myprofile", s001))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestReconcile_RemovesOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, testutil.Activate(ctx, f.store,
		testutil.Activation{Profile: "myprofile", Rule: s001, Severity: "MAJOR"},
	))
	orphan := ir.ActiveRule{
		Key:        ir.NewActiveRuleKey("orphan", s001),
		RuleKey:    s001,
		ProfileKey: "orphan",
		Severity:   ir.SeverityMajor,
		Params:     map[string]string{},
	}
	require.NoError(t, f.index.Upsert(ctx, orphan))
	require.NoError(t, f.index.Refresh(ctx))

	removed, err := f.sync.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	require.NoError(t, f.index.Refresh(ctx))

	keys, err := f.index.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.ActiveRuleKey{ir.NewActiveRuleKey("myprofile", s001)}, keys)
}
