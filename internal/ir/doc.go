// Package ir holds the value model and record types every ckpt package
// shares: IRValue trees for state and arguments, canonical JSON, content
// hashes, actor specs and journal entries.
//
// ir imports nothing internal.
//
// Rules:
//   - no floats; numbers are int64
//   - state is deep-cloned whenever a frame takes or commits it
//   - JSON tags are snake_case
//   - ordering comes from the logical clock (seq), never wall time
package ir
