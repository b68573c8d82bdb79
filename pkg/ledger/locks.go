package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// itemLocks serializes writers per item. Entries are dropped once no
// goroutine holds or waits on them.
type itemLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*itemLock
}

type itemLock struct {
	sync.Mutex
	refs int
}

func newItemLocks() *itemLocks {
	return &itemLocks{locks: make(map[uuid.UUID]*itemLock)}
}

// Lock blocks until the caller holds id and returns the matching unlock.
func (k *itemLocks) Lock(id uuid.UUID) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &itemLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

func (k *itemLocks) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
