package cache

import (
	"sync"
)

// entry tracks a single load of a model. Waiters block on done,
// after which either handle or err is set.
type entry struct {
	done chan struct{}

	mtx     sync.Mutex
	handle  *handle
	err     error
	evicted bool
}

func newEntry() *entry {
	return &entry{
		done: make(chan struct{}),
	}
}

func (entry *entry) finish(handle *handle, err error) {
	entry.mtx.Lock()
	entry.handle = handle
	entry.err = err
	evicted := entry.evicted
	entry.mtx.Unlock()

	// The entry was invalidated while loading, so the
	// instance is stale even before anyone got to use it
	if evicted && handle != nil {
		handle.retire()
	}

	close(entry.done)
}

func (entry *entry) evict() {
	entry.mtx.Lock()
	entry.evicted = true
	handle := entry.handle
	entry.mtx.Unlock()

	if handle != nil {
		handle.retire()
	}
}

func (entry *entry) ready() bool {
	select {
	case <-entry.done:
		return true
	default:
		return false
	}
}

func (entry *entry) result() (*handle, error) {
	entry.mtx.Lock()
	defer entry.mtx.Unlock()

	return entry.handle, entry.err
}
