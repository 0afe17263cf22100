package engine

import (
	"context"
	"fmt"

	"github.com/roach88/ckpt/internal/ir"
)

// CommitReason records why a working copy became authoritative.
type CommitReason string

const (
	// CommitOutbound is the commit forced by an outbound call, before the
	// call leaves the actor.
	CommitOutbound CommitReason = "outbound"
	// CommitReturn is the commit at normal handler return.
	CommitReturn CommitReason = "return"
)

// checkpoint commits f's working copy into its actor's State Cell.
//
// Only the owning frame reaches this point, and it was seeded at the cell's
// current version, so the n-th commit always builds on the (n-1)-th. A
// version mismatch means that invariant broke; the commit is refused with
// STALE_COMMIT rather than overwriting another frame's write.
func (e *Engine) checkpoint(ctx context.Context, f *Frame, reason CommitReason) *Failure {
	if f.Kind != Update {
		return nil
	}

	a := e.lookup(f.Actor)
	if a == nil {
		return newFailure(HandlerFailure, CodeUnknownActor, f, "actor was removed while a frame was live", ErrUnknownActor)
	}
	if v := a.cell.Version(); v != f.base {
		return newFailure(HandlerFailure, CodeStaleCommit, f,
			fmt.Sprintf("working copy seeded at version %d, cell is at %d", f.base, v), nil)
	}

	version := a.cell.Commit(f.working)
	f.base = version

	e.record(ctx, ir.JournalEntry{
		Type:      ir.EntryCommit,
		FlowToken: f.FlowToken,
		FrameID:   f.ID,
		ParentID:  f.ParentID,
		Actor:     f.Actor,
		Method:    f.Method,
		Depth:     f.Depth,
		Reason:    string(reason),
		State:     f.working.Clone(),
		Version:   version,
	})
	e.metrics.Committed(f.Actor, reason)

	e.logger.Debug("checkpoint committed",
		"frame_id", f.ID,
		"actor", f.Actor,
		"reason", reason,
		"version", version,
	)
	return nil
}
