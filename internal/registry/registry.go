// Package registry holds write-once shared handles that must be readable
// from goroutines and foreign threads the application does not control.
package registry

import "sync"

// Cell stores at most one value for its whole lifetime. The zero value is
// an empty, ready to use cell.
//
// The lock only ever guards a copy of the stored value; callers must not
// do work while holding a snapshot that assumes the lock is still held.
type Cell[T any] struct {
	mu  sync.Mutex
	val T
	set bool
}

// Initialize stores v if the cell is empty and reports whether this call
// stored it. Subsequent calls leave the first value in place.
func (c *Cell[T]) Initialize(v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set {
		return false
	}
	c.val = v
	c.set = true
	return true
}

// Current returns a copy of the stored value, or false if nothing has been
// stored yet.
func (c *Cell[T]) Current() (T, bool) {
	c.mu.Lock()
	v, ok := c.val, c.set
	c.mu.Unlock()
	return v, ok
}
