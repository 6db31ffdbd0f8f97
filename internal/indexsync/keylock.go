package indexsync

import (
	"sync"

	"github.com/roach88/activerules/internal/ir"
)

// keyLocks hands out one mutex per activation key. Entries are dropped
// when no goroutine holds or waits for them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[ir.ActiveRuleKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[ir.ActiveRuleKey]*keyLock)}
}

// lock blocks until the caller owns key and returns the release func.
func (l *keyLocks) lock(key ir.ActiveRuleKey) func() {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// len reports how many keys are currently locked or awaited.
func (l *keyLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
