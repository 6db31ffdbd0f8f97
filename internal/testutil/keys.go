package testutil

import (
	"fmt"
	"sync"
)

// SequentialKeyGenerator generates predictable profile keys for tests.
//
// Unlike store.UUIDv7Generator, keys depend only on call order, so the same
// scenario run twice produces byte-identical output for golden comparison.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialKeyGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialKeyGenerator creates a generator. If prefix is empty,
// "profile" is used. The first key is "<prefix>-0001".
func NewSequentialKeyGenerator(prefix string) *SequentialKeyGenerator {
	if prefix == "" {
		prefix = "profile"
	}
	return &SequentialKeyGenerator{prefix: prefix}
}

// Generate returns the next key.
//
// Implements store.KeyGenerator.
func (g *SequentialKeyGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts the sequence. After Reset, the next key is "<prefix>-0001".
func (g *SequentialKeyGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
