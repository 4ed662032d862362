package ncfs

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// HandleTracker manages open file handles and their lifecycle.
//
// It provides:
//   - Unique handle ID allocation
//   - Binding of each handle to the node resolved at open time
//
// All methods are thread-safe and can be called concurrently.
type HandleTracker struct {
	mu         sync.RWMutex
	handles    map[uint64]*handleEntry
	nextHandle atomic.Uint64
}

// handleEntry represents an open file handle
type handleEntry struct {
	node  *Node
	flags uint32
}

// NewHandleTracker creates a new file handle tracker
func NewHandleTracker() *HandleTracker {
	return &HandleTracker{
		handles: make(map[uint64]*handleEntry),
	}
}

// Add allocates a new file handle for the given node
func (ht *HandleTracker) Add(node *Node, flags uint32) uint64 {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	fh := ht.nextHandle.Add(1)
	ht.handles[fh] = &handleEntry{
		node:  node,
		flags: flags,
	}
	return fh
}

// Get returns the node bound to a handle, or nil.
func (ht *HandleTracker) Get(fh uint64) *Node {
	ht.mu.RLock()
	defer ht.mu.RUnlock()

	entry := ht.handles[fh]
	if entry == nil {
		return nil
	}
	return entry.node
}

// Release forgets a handle.
func (ht *HandleTracker) Release(fh uint64) error {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	entry := ht.handles[fh]
	if entry == nil {
		return fmt.Errorf("handle %d: %w", fh, errBadHandle)
	}
	delete(ht.handles, fh)
	return nil
}

// CloseAll forgets every open handle and returns how many there were.
func (ht *HandleTracker) CloseAll() int {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	n := len(ht.handles)
	ht.handles = make(map[uint64]*handleEntry)
	return n
}

// Count returns the number of open file handles
func (ht *HandleTracker) Count() int {
	ht.mu.RLock()
	defer ht.mu.RUnlock()

	return len(ht.handles)
}
