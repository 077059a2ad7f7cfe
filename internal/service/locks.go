package service

import (
	"sync"

	"github.com/ldi/workforce/pkg/models"
)

type referenceKey struct {
	id  int64
	typ models.ReferenceType
}

func keyOf(t *models.Task) referenceKey {
	return referenceKey{id: t.ReferenceID, typ: t.ReferenceType}
}

// referenceLocks hands out one mutex per reference. Entries are dropped once
// no caller holds or waits on them, so the table only grows with live work.
type referenceLocks struct {
	mu    sync.Mutex
	locks map[referenceKey]*referenceLock
}

type referenceLock struct {
	mu   sync.Mutex
	refs int
}

func newReferenceLocks() *referenceLocks {
	return &referenceLocks{locks: make(map[referenceKey]*referenceLock)}
}

// lock blocks until the caller owns key and returns the matching unlock.
func (l *referenceLocks) lock(key referenceKey) func() {
	l.mu.Lock()
	rl, ok := l.locks[key]
	if !ok {
		rl = &referenceLock{}
		l.locks[key] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()

	return func() {
		rl.mu.Unlock()

		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *referenceLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
