package engine

import (
	"sync"

	"github.com/roach88/ckpt/internal/ir"
)

// StateCell is an actor's durable storage. It holds the committed value and a
// version counter that increments on every commit.
//
// Commit is the only mutation entry point. Read always returns a deep copy, so
// no frame can observe or alias another frame's working copy.
//
// Thread-safety: reads may come from any goroutine (CLI, harness assertions);
// commits come only from the Run loop.
type StateCell struct {
	mu      sync.RWMutex
	value   ir.IRObject
	version int64
}

// NewStateCell creates a cell holding a copy of initial at version 0.
func NewStateCell(initial ir.IRObject) *StateCell {
	return &StateCell{value: initial.Clone()}
}

// Read returns a copy of the committed value.
func (c *StateCell) Read() ir.IRObject {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value.Clone()
}

// Version returns the number of commits applied so far.
func (c *StateCell) Version() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Snapshot returns a copy of the committed value and its version, read
// atomically.
func (c *StateCell) Snapshot() (ir.IRObject, int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value.Clone(), c.version
}

// Commit replaces the committed value with a copy of v and returns the new
// version.
func (c *StateCell) Commit(v ir.IRObject) int64 {
	next := v.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = next
	c.version++
	return c.version
}
