// Package testutil holds deterministic helpers shared by engine-level tests
// and the conformance harness.
package testutil

import (
	"fmt"
	"sync"
)

// SequenceFlowGenerator generates "<prefix>-1", "<prefix>-2", ... in order.
//
// Every ingress call starts a new flow, so a scenario that submits calls in a
// fixed order gets the same tokens on every run. That keeps journals and
// golden traces byte-identical across runs.
//
// Thread-safety: Generate is safe for concurrent use.
type SequenceFlowGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceFlowGenerator creates a generator for prefix.
//
// If prefix is empty, tokens are "test-flow-1", "test-flow-2", ...
func NewSequenceFlowGenerator(prefix string) *SequenceFlowGenerator {
	if prefix == "" {
		prefix = "test-flow"
	}
	return &SequenceFlowGenerator{prefix: prefix}
}

// Generate returns the next token.
//
// Implements engine.FlowTokenGenerator.
func (g *SequenceFlowGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Issued returns how many tokens have been generated.
func (g *SequenceFlowGenerator) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Reset restarts the sequence at 1.
func (g *SequenceFlowGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
