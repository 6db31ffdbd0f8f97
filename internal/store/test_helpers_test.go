package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixture holds rows created by seed.
type fixture struct {
	profile ProfileRow
	rule    RuleRow
	active  ActiveRuleRow
}

// seed commits one profile, one rule and an activation of the rule in
// the profile.
func seed(t *testing.T, s *Store, profile, repository, rule, severity string) fixture {
	t.Helper()
	ctx := context.Background()

	var f fixture
	err := s.WithSession(ctx, func(sess *Session) error {
		f.profile = ProfileRow{Kee: profile, Name: profile, Language: "js"}
		if err := sess.InsertProfile(ctx, &f.profile); err != nil {
			return err
		}
		f.rule = RuleRow{Repository: repository, RuleKey: rule, Name: rule}
		if err := sess.InsertRule(ctx, &f.rule); err != nil {
			return err
		}
		f.active = *NewActiveRuleRow(&f.profile, &f.rule)
		f.active.Severity = severity
		return sess.InsertActiveRule(ctx, &f.active)
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return f
}
