package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/activerules/internal/index"
	"github.com/roach88/activerules/internal/ir"
	"github.com/roach88/activerules/internal/store"
)

// OpenStore opens a file-backed store in a temp dir with a deterministic
// key generator. It is closed when the test ends.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "activerules.db"))
	require.NoError(t, err)
	s.SetKeyGenerator(NewSequentialKeyGenerator(""))
	t.Cleanup(func() { s.Close() })
	return s
}

// OpenIndex opens an in-memory index without background refresh. It is
// closed when the test ends.
func OpenIndex(t testing.TB) *index.Index {
	t.Helper()
	x, err := index.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { x.Close() })
	return x
}

// NewRuleRow returns a fully described rule row for key.
func NewRuleRow(key ir.RuleKey) *store.RuleRow {
	return &store.RuleRow{
		Repository:  key.Repository,
		RuleKey:     key.Rule,
		ConfigKey:   "InternalKey" + key.Rule,
		Name:        "Rule " + key.Rule,
		Description: "Description " + key.Rule,
		Status:      "READY",
		Language:    "js",
		Severity:    ir.SeverityInfo.String(),
		Cardinality: "SINGLE",
	}
}

// NewProfileRow returns a profile row whose key equals its name.
func NewProfileRow(name, language string) *store.ProfileRow {
	return &store.ProfileRow{Kee: name, Name: name, Language: language}
}

// Activation describes one activation to commit with Activate.
type Activation struct {
	Profile     string
	Rule        ir.RuleKey
	Severity    string
	Inheritance string
	Parent      *ir.ActiveRuleKey
	Params      map[string]string
}

// Activate commits the given activations in one session, creating any
// missing profile, rule and rule parameter on the way. Params are added
// in sorted name order.
func Activate(ctx context.Context, s *store.Store, acts ...Activation) error {
	return s.WithSession(ctx, func(sess *store.Session) error {
		b := NewBuilder(sess)
		for _, a := range acts {
			if _, err := b.Activate(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
}
