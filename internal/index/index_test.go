package index

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/activerules/internal/ir"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	x, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { x.Close() })
	return x
}

func activation(profile, rule string, severity ir.Severity) ir.ActiveRule {
	rk := ir.MustParseRuleKey(rule)
	pk := ir.ProfileKey(profile)
	return ir.ActiveRule{
		Key:         ir.NewActiveRuleKey(pk, rk),
		RuleKey:     rk,
		ProfileKey:  pk,
		Severity:    severity,
		Inheritance: ir.InheritanceNone,
		Params:      map[string]string{},
	}
}

func refresh(t *testing.T, x *Index) {
	t.Helper()
	require.NoError(t, x.Refresh(context.Background()))
}

func TestUpsert_RoundTripAllFields(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	parent := activation("parent", "javascript:S001", ir.SeverityMajor)
	doc := activation("myprofile", "javascript:S001", ir.SeverityCritical)
	doc.Inheritance = ir.InheritanceOverrides
	doc.ParentKey = &parent.Key
	doc.Params = map[string]string{"format": "^[a-z]+$", "max": "10"}

	require.NoError(t, x.Upsert(ctx, parent))
	require.NoError(t, x.Upsert(ctx, doc))
	refresh(t, x)

	got, found, err := x.GetByKey(ctx, doc.Key)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, doc.Equal(got), "got %+v", got)
}

func TestUpsert_TwoParams(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	doc := activation("myprofile", "javascript:S001", ir.SeverityMajor)
	doc.Params = map[string]string{"min": "minimum", "max": "maximum"}
	require.NoError(t, x.Upsert(ctx, doc))
	refresh(t, x)

	got, found, err := x.GetByKey(ctx, ir.MustParseActiveRuleKey("myprofile:javascript:S001"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]string{"min": "minimum", "max": "maximum"}, got.Params)
}

func TestUpsert_ReplacesSeverity(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	doc := activation("myprofile", "javascript:S001", ir.SeverityBlocker)
	doc.Params = map[string]string{"stale": "yes"}
	require.NoError(t, x.Upsert(ctx, doc))
	refresh(t, x)

	replacement := activation("myprofile", "javascript:S001", ir.SeverityMinor)
	require.NoError(t, x.Upsert(ctx, replacement))
	refresh(t, x)

	got, found, err := x.GetByKey(ctx, doc.Key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.SeverityMinor, got.Severity)
	assert.Empty(t, got.Params, "no field of the old version survives")
}

func TestFindByRule_AcrossProfiles(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, x.UpsertBatch(ctx, []ir.ActiveRule{
		activation("myprofile", "javascript:S001", ir.SeverityMajor),
		activation("other-profile", "javascript:S001", ir.SeverityMajor),
		activation("other-profile", "javascript:S002", ir.SeverityMinor),
	}))
	refresh(t, x)

	s001, err := x.FindByRule(ctx, ir.MustParseRuleKey("javascript:S001"))
	require.NoError(t, err)
	assert.Len(t, s001, 2)

	s002, err := x.FindByRule(ctx, ir.MustParseRuleKey("javascript:S002"))
	require.NoError(t, err)
	require.Len(t, s002, 1)
	assert.Equal(t, ir.ProfileKey("other-profile"), s002[0].ProfileKey)

	none, err := x.FindByRule(ctx, ir.MustParseRuleKey("javascript:S003"))
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestFindByRule_PrefixDoesNotLeak(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, x.Upsert(ctx, activation("p", "javascript:S001", ir.SeverityMajor)))
	require.NoError(t, x.Upsert(ctx, activation("p", "javascript:S0011", ir.SeverityMajor)))
	refresh(t, x)

	got, err := x.FindByRule(ctx, ir.MustParseRuleKey("javascript:S001"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p:javascript:S001", got[0].Key.String())
}

func TestGetByKey_Absent(t *testing.T) {
	x := newTestIndex(t)

	_, found, err := x.GetByKey(context.Background(), ir.MustParseActiveRuleKey("myprofile:javascript:S999"))
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestUpsert_Idempotent(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()
	doc := activation("myprofile", "javascript:S001", ir.SeverityMajor)

	require.NoError(t, x.Upsert(ctx, doc))
	refresh(t, x)
	require.NoError(t, x.Upsert(ctx, doc))
	refresh(t, x)

	got, err := x.FindByRule(ctx, doc.RuleKey)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	n, err := x.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsert_NotVisibleBeforeRefresh(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()
	doc := activation("myprofile", "javascript:S001", ir.SeverityMajor)

	require.NoError(t, x.Upsert(ctx, doc))
	assert.Equal(t, 1, x.Pending())

	// Without background refresh the write stays pending.
	_, found, err := x.GetByKey(ctx, doc.Key)
	require.NoError(t, err)
	assert.False(t, found)

	refresh(t, x)
	assert.Zero(t, x.Pending())
	_, found, err = x.GetByKey(ctx, doc.Key)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestUpsert_LastWriterWins(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	for _, sev := range ir.Severities() {
		require.NoError(t, x.Upsert(ctx, activation("p", "javascript:S001", sev)))
	}
	refresh(t, x)

	got, found, err := x.GetByKey(ctx, ir.MustParseActiveRuleKey("p:javascript:S001"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.SeverityBlocker, got.Severity)
}

func TestUpsert_CallerMutationDoesNotLeak(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	doc := activation("p", "javascript:S001", ir.SeverityMajor)
	doc.Params["k"] = "before"
	require.NoError(t, x.Upsert(ctx, doc))
	doc.Params["k"] = "after"
	refresh(t, x)

	got, _, err := x.GetByKey(ctx, doc.Key)
	require.NoError(t, err)
	assert.Equal(t, "before", got.Params["k"])
}

func TestUpsert_ConcurrentDifferentKeys(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rule := ir.NewRuleKey("javascript", "S"+string(rune('A'+i%26))+string(rune('a'+i/26)))
			doc := activation("p", rule.String(), ir.SeverityMinor)
			assert.NoError(t, x.Upsert(ctx, doc))
		}()
	}
	wg.Wait()
	refresh(t, x)

	n, err := x.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestUpsert_RejectsMalformedKey(t *testing.T) {
	x := newTestIndex(t)

	doc := activation("p", "javascript:S001", ir.SeverityMajor)
	doc.Key.Profile = ""
	doc.ProfileKey = ""

	err := x.Upsert(context.Background(), doc)
	require.ErrorIs(t, err, ErrWriteRejected)
	require.ErrorIs(t, err, ir.ErrMalformedKey)

	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "invalid document", we.Reason)
	assert.Zero(t, x.Pending())
}

func TestUpsert_RejectsDecomposedKey(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	// A literal key skips the constructor's normalization.
	doc := activation("p", "javascript:S001", ir.SeverityMajor)
	doc.ProfileKey = ir.ProfileKey("cafe\u0301")
	doc.Key = ir.ActiveRuleKey{Profile: doc.ProfileKey, Rule: doc.RuleKey}

	err := x.Upsert(ctx, doc)
	require.ErrorIs(t, err, ErrWriteRejected)
	require.ErrorIs(t, err, ir.ErrMalformedKey)
	assert.Zero(t, x.Pending())

	// The normalized form is accepted and found by every lookup.
	doc.ProfileKey = ir.ProfileKey("caf\u00e9")
	doc.Key = ir.NewActiveRuleKey(doc.ProfileKey, doc.RuleKey)
	require.NoError(t, x.Upsert(ctx, doc))
	refresh(t, x)

	got, found, err := x.GetByKey(ctx, doc.Key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, doc.Key, got.Key)

	byRule, err := x.FindByRule(ctx, doc.RuleKey)
	require.NoError(t, err)
	require.Len(t, byRule, 1)
	assert.Equal(t, doc.Key, byRule[0].Key)
}

func TestUpsert_RejectsSelfParent(t *testing.T) {
	x := newTestIndex(t)

	doc := activation("p", "javascript:S001", ir.SeverityMajor)
	doc.Inheritance = ir.InheritanceInherit
	doc.ParentKey = &doc.Key

	err := x.Upsert(context.Background(), doc)
	assert.ErrorIs(t, err, ErrWriteRejected)
}

func TestUpsert_RejectsParentCycle(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	a := activation("a", "javascript:S001", ir.SeverityMajor)
	b := activation("b", "javascript:S001", ir.SeverityMajor)
	c := activation("c", "javascript:S001", ir.SeverityMajor)

	a.Inheritance, a.ParentKey = ir.InheritanceInherit, &b.Key
	b.Inheritance, b.ParentKey = ir.InheritanceInherit, &c.Key
	require.NoError(t, x.Upsert(ctx, a))
	refresh(t, x)
	// b is pending, a is visible.
	require.NoError(t, x.Upsert(ctx, b))

	c.Inheritance, c.ParentKey = ir.InheritanceInherit, &a.Key
	err := x.Upsert(ctx, c)
	require.ErrorIs(t, err, ErrWriteRejected)
	require.ErrorIs(t, err, ErrParentCycle)
}

func TestUpsertBatch_AcceptsValidReportsInvalid(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	bad := activation("p", "javascript:S002", ir.SeverityMajor)
	bad.Severity = 0

	err := x.UpsertBatch(ctx, []ir.ActiveRule{
		activation("p", "javascript:S001", ir.SeverityMajor),
		bad,
	})
	require.ErrorIs(t, err, ErrWriteRejected)
	require.ErrorIs(t, err, ir.ErrUnknownEnum)
	assert.Equal(t, 1, x.Pending())
}

func TestDelete_RemovesAfterRefresh(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()
	doc := activation("myprofile", "javascript:S001", ir.SeverityMajor)

	require.NoError(t, x.Upsert(ctx, doc))
	refresh(t, x)

	require.NoError(t, x.Delete(ctx, doc.Key))
	_, found, err := x.GetByKey(ctx, doc.Key)
	require.NoError(t, err)
	assert.True(t, found, "delete is pending until refresh")

	refresh(t, x)
	_, found, err = x.GetByKey(ctx, doc.Key)
	require.NoError(t, err)
	assert.False(t, found)

	byRule, err := x.FindByRule(ctx, doc.RuleKey)
	require.NoError(t, err)
	assert.Empty(t, byRule)
	byProfile, err := x.FindByProfile(ctx, doc.ProfileKey)
	require.NoError(t, err)
	assert.Empty(t, byProfile)
}

func TestDelete_ThenUpsertSameKey(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()
	doc := activation("p", "javascript:S001", ir.SeverityMajor)

	require.NoError(t, x.Upsert(ctx, doc))
	require.NoError(t, x.Delete(ctx, doc.Key))
	require.NoError(t, x.Upsert(ctx, doc))
	refresh(t, x)

	_, found, err := x.GetByKey(ctx, doc.Key)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestDelete_RejectsMalformedKey(t *testing.T) {
	x := newTestIndex(t)
	err := x.Delete(context.Background(), ir.ActiveRuleKey{})
	assert.ErrorIs(t, err, ErrWriteRejected)
}

func TestRefresh_TimeoutKeepsWrites(t *testing.T) {
	x := newTestIndex(t)
	doc := activation("p", "javascript:S001", ir.SeverityMajor)
	require.NoError(t, x.Upsert(context.Background(), doc))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := x.Refresh(ctx)
	require.ErrorIs(t, err, ErrVisibilityTimeout)
	assert.NotErrorIs(t, err, ErrWriteRejected)
	assert.Equal(t, 1, x.Pending())

	refresh(t, x)
	_, found, err := x.GetByKey(context.Background(), doc.Key)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRefresh_Empty(t *testing.T) {
	x := newTestIndex(t)
	assert.NoError(t, x.Refresh(context.Background()))
}

func TestFind_Filters(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	parent := activation("parent", "javascript:S001", ir.SeverityBlocker)
	child := activation("child", "javascript:S001", ir.SeverityBlocker)
	child.Inheritance = ir.InheritanceInherit
	child.ParentKey = &parent.Key

	require.NoError(t, x.UpsertBatch(ctx, []ir.ActiveRule{
		parent,
		child,
		activation("child", "javascript:S002", ir.SeverityInfo),
		activation("other", "java:S100", ir.SeverityCritical),
	}))
	refresh(t, x)

	inherit := ir.InheritanceInherit
	got, err := x.Find(ctx, Filter{Inheritance: &inherit})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, child.Key, got[0].Key)

	got, err = x.Find(ctx, Filter{MinSeverity: ir.SeverityCritical})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	profile := ir.ProfileKey("child")
	got, err = x.Find(ctx, Filter{Profile: &profile, Severities: []ir.Severity{ir.SeverityInfo}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "child:javascript:S002", got[0].Key.String())

	got, err = x.Find(ctx, Filter{Parent: &parent.Key})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = x.FindByProfile(ctx, "child")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	keys, err := x.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.ActiveRuleKey{
		ir.MustParseActiveRuleKey("child:javascript:S001"),
		ir.MustParseActiveRuleKey("child:javascript:S002"),
		ir.MustParseActiveRuleKey("other:java:S100"),
		ir.MustParseActiveRuleKey("parent:javascript:S001"),
	}, keys)
}

func TestReset_DropsEverything(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, x.Upsert(ctx, activation("p", "javascript:S001", ir.SeverityMajor)))
	refresh(t, x)
	require.NoError(t, x.Upsert(ctx, activation("p", "javascript:S002", ir.SeverityMajor)))

	require.NoError(t, x.Reset(ctx))
	assert.Zero(t, x.Pending())
	n, err := x.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClose_FlushesAndRejects(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	doc := activation("p", "javascript:S001", ir.SeverityMajor)

	x, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, x.Upsert(ctx, doc))
	require.NoError(t, x.Close())
	require.NoError(t, x.Close())

	err = x.Upsert(ctx, doc)
	require.ErrorIs(t, err, ErrWriteRejected)
	require.ErrorIs(t, err, ErrIndexClosed)
	_, _, err = x.GetByKey(ctx, doc.Key)
	require.ErrorIs(t, err, ErrIndexClosed)

	reopened, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	defer reopened.Close()
	_, found, err := reopened.GetByKey(ctx, doc.Key)
	require.NoError(t, err)
	assert.True(t, found, "pending write flushed by Close")
}

func TestBackgroundRefresh(t *testing.T) {
	x, err := Open(Options{InMemory: true, RefreshInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { x.Close() })

	ctx := context.Background()
	doc := activation("p", "javascript:S001", ir.SeverityMajor)
	require.NoError(t, x.Upsert(ctx, doc))

	assert.Eventually(t, func() bool {
		_, found, err := x.GetByKey(ctx, doc.Key)
		return err == nil && found
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOpen_RequiresDir(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}
