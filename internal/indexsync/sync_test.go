package indexsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/activerules/internal/index"
	"github.com/roach88/activerules/internal/ir"
	"github.com/roach88/activerules/internal/store"
	"github.com/roach88/activerules/internal/testutil"
)

type fixture struct {
	store *store.Store
	index *index.Index
	sync  *Synchronizer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := testutil.OpenStore(t)
	x := testutil.OpenIndex(t)
	s := New(st, x, WithConcurrency(4))
	s.Attach(st)
	return fixture{store: st, index: x, sync: s}
}

var (
	s001 = ir.NewRuleKey("javascript", "S001")
	s002 = ir.NewRuleKey("javascript", "S002")
)

func TestInsertAndIndexActiveRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, testutil.Activate(ctx, f.store, testutil.Activation{
		Profile:     "myprofile",
		Rule:        s001,
		Severity:    "BLOCKER",
		Inheritance: "INHERIT",
	}))

	rows, err := f.store.FindActiveRulesByRule(ctx, s001)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, f.index.Refresh(ctx))

	hit, found, err := f.index.GetByKey(ctx, rows[0].Key())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rows[0].Key(), hit.Key)
	assert.Equal(t, rows[0].Inheritance, hit.Inheritance.String())
	assert.Nil(t, hit.ParentKey)
	assert.Equal(t, rows[0].Severity, hit.Severity.String())
}

func TestInsertAndIndexActiveRuleParams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, testutil.Activate(ctx, f.store, testutil.Activation{
		Profile:     "myprofile",
		Rule:        s001,
		Severity:    "BLOCKER",
		Inheritance: "INHERIT",
		Params:      map[string]string{"min": "minimum", "max": "maximum"},
	}))

	key := ir.NewActiveRuleKey("myprofile", s001)
	row, found, err := f.store.FindActiveRuleByKey(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	params, err := f.store.FindActiveRuleParams(ctx, row.ID)
	require.NoError(t, err)
	assert.Len(t, params, 2)

	require.NoError(t, f.index.Refresh(ctx))

	hit, found, err := f.index.GetByKey(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]string{"min": "minimum", "max": "maximum"}, hit.Params)
}

func TestFindActiveRulesByRuleKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, testutil.Activate(ctx, f.store,
		testutil.Activation{Profile: "myprofile", Rule: s001, Severity: "BLOCKER", Inheritance: "INHERIT"},
		testutil.Activation{Profile: "other-profile", Rule: s001, Severity: "BLOCKER", Inheritance: "INHERIT"},
		testutil.Activation{Profile: "other-profile", Rule: s002, Severity: "BLOCKER", Inheritance: "INHERIT"},
	))

	rows, err := f.store.FindActiveRulesByRule(ctx, s001)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	rows, err = f.store.FindActiveRulesByRule(ctx, s002)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.NoError(t, f.index.Refresh(ctx))

	hits, err := f.index.FindByRule(ctx, s001)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	hits, err = f.index.FindByRule(ctx, s002)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestRolledBackActivationNeverIndexed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	errAbort := errors.New("abort")
	err := f.store.WithSession(ctx, func(sess *store.Session) error {
		b := testutil.NewBuilder(sess)
		if _, err := b.Activate(ctx, testutil.Activation{Profile: "myprofile", Rule: s001, Severity: "MAJOR"}); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)
	assert.Zero(t, f.index.Pending())

	require.NoError(t, f.index.Refresh(ctx))
	n, err := f.index.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdatePropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := ir.NewActiveRuleKey("myprofile", s001)

	require.NoError(t, testutil.Activate(ctx, f.store, testutil.Activation{
		Profile: "myprofile", Rule: s001, Severity: "BLOCKER",
	}))
	require.NoError(t, f.index.Refresh(ctx))

	row, _, err := f.store.FindActiveRuleByKey(ctx, key)
	require.NoError(t, err)
	row.Severity = "MINOR"
	require.NoError(t, f.store.WithSession(ctx, func(sess *store.Session) error {
		return sess.UpdateActiveRule(ctx, &row)
	}))
	require.NoError(t, f.index.Refresh(ctx))

	hit, found, err := f.index.GetByKey(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.SeverityMinor, hit.Severity)
}

func TestDeletePropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parentKey := ir.NewActiveRuleKey("parent", s001)
	childKey := ir.NewActiveRuleKey("child", s001)

	require.NoError(t, testutil.Activate(ctx, f.store,
		testutil.Activation{Profile: "parent", Rule: s001, Severity: "MAJOR"},
		testutil.Activation{Profile: "child", Rule: s001, Severity: "MAJOR", Inheritance: "INHERIT", Parent: &parentKey},
	))
	require.NoError(t, f.index.Refresh(ctx))

	hit, found, err := f.index.GetByKey(ctx, childKey)
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, hit.ParentKey)
	assert.Equal(t, parentKey, *hit.ParentKey)

	parent, _, err := f.store.FindActiveRuleByKey(ctx, parentKey)
	require.NoError(t, err)
	require.NoError(t, f.store.WithSession(ctx, func(sess *store.Session) error {
		return sess.DeleteActiveRule(ctx, &parent)
	}))
	require.NoError(t, f.index.Refresh(ctx))

	_, found, err = f.index.GetByKey(ctx, parentKey)
	require.NoError(t, err)
	assert.False(t, found)

	hit, found, err = f.index.GetByKey(ctx, childKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Nil(t, hit.ParentKey, "child loses its parent link")
	assert.Equal(t, ir.InheritanceInherit, hit.Inheritance)
}

func TestCommitReportsProjectionFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := testutil.Activate(ctx, f.store, testutil.Activation{
		Profile: "myprofile", Rule: s001, Severity: "blocker",
	})
	require.ErrorIs(t, err, store.ErrPostCommit)
	require.ErrorIs(t, err, ir.ErrUnknownEnum)

	// The row is committed; the index refuses to drift.
	_, found, err := f.store.FindActiveRuleByKey(ctx, ir.NewActiveRuleKey("myprofile", s001))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Zero(t, f.index.Pending())
}

func TestCommitReportsRejectedWrite(t *testing.T) {
	st := testutil.OpenStore(t)
	x := testutil.OpenIndex(t)
	New(st, x).Attach(st)
	require.NoError(t, x.Close())

	err := testutil.Activate(context.Background(), st, testutil.Activation{
		Profile: "myprofile", Rule: s001, Severity: "MAJOR",
	})
	require.ErrorIs(t, err, store.ErrPostCommit)
	require.ErrorIs(t, err, index.ErrWriteRejected)
}

func TestSyncKey_MissingRowDeletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := ir.NewActiveRuleKey("ghost", s001)

	doc := ir.ActiveRule{
		Key: key, RuleKey: s001, ProfileKey: "ghost",
		Severity: ir.SeverityMajor, Params: map[string]string{},
	}
	require.NoError(t, f.index.Upsert(ctx, doc))
	require.NoError(t, f.index.Refresh(ctx))

	require.NoError(t, f.sync.SyncKey(ctx, key))
	require.NoError(t, f.sync.Refresh(ctx))

	_, found, err := f.index.GetByKey(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}
