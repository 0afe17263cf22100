package engine

import (
	"context"

	"github.com/roach88/ckpt/internal/ir"
)

// rollback discards f's working copy. The State Cell keeps the value of the
// frame's last commit point: its construction, or its last outbound call.
// Commits made before that point stay, and calls already sent are not
// recalled.
func (e *Engine) rollback(ctx context.Context, f *Frame, fail *Failure) {
	discarded := f.working
	f.working = nil
	f.hooks = nil
	f.Status = FrameFailed

	e.record(ctx, ir.JournalEntry{
		Type:      ir.EntryRollback,
		FlowToken: f.FlowToken,
		FrameID:   f.ID,
		ParentID:  f.ParentID,
		Actor:     f.Actor,
		Method:    f.Method,
		Depth:     f.Depth,
		State:     discarded,
		Version:   f.base,
		Code:      string(fail.Code),
		Error:     fail.Message,
	})
	e.metrics.RolledBack(f.Actor, fail.Code)

	e.logger.Info("frame rolled back",
		"frame_id", f.ID,
		"actor", f.Actor,
		"method", f.Method,
		"flow_token", f.FlowToken,
		"code", fail.Code,
		"error", fail.Message,
	)
}
