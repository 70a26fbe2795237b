package ledger

import "sync"

// PositionLocks serializes read-modify-write cycles on position aggregates.
// Every writer that loads a position, mutates its trade list and stores it
// back must hold that position's lock for the whole cycle. The service and
// the assignment workflow share one registry, so a trade append and an
// assignment touching the same position can never interleave.
type PositionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPositionLocks creates an empty lock registry.
func NewPositionLocks() *PositionLocks {
	return &PositionLocks{locks: make(map[string]*sync.Mutex)}
}

// Get returns the mutex for a position id, creating it on first use.
func (l *PositionLocks) Get(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}
