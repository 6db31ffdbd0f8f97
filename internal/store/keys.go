package store

import "github.com/google/uuid"

// KeyGenerator generates profile keys for profiles inserted without one.
type KeyGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDv7 keys.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SetKeyGenerator replaces the profile key generator. Tests use a
// deterministic generator so golden output is stable.
func (s *Store) SetKeyGenerator(g KeyGenerator) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.keys = g
}

func (s *Store) keyGenerator() KeyGenerator {
	s.hooksMu.RLock()
	defer s.hooksMu.RUnlock()
	if s.keys == nil {
		return UUIDv7Generator{}
	}
	return s.keys
}
