package store

import (
	"context"
	"fmt"

	"github.com/roach88/ckpt/internal/ir"
)

// Record appends a journal entry. It implements engine.Journal.
//
// Uses ON CONFLICT(seq) DO NOTHING for idempotency: writing the same seq
// twice keeps the first row. Other constraint violations (an unknown entry
// type, a missing actor) still return errors.
func (s *Store) Record(ctx context.Context, e ir.JournalEntry) error {
	if e.Seq <= 0 {
		return fmt.Errorf("record %s entry: seq must be positive, got %d", e.Type, e.Seq)
	}

	state, err := marshalState(e.State)
	if err != nil {
		return fmt.Errorf("record %s entry: %w", e.Type, err)
	}
	result, err := marshalResult(e.Result)
	if err != nil {
		return fmt.Errorf("record %s entry: %w", e.Type, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries
		(seq, type, flow_token, frame_id, parent_id, actor, method, depth,
		 reason, target, target_method, state, version, result, code, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		e.Seq,
		string(e.Type),
		e.FlowToken,
		e.FrameID,
		e.ParentID,
		string(e.Actor),
		e.Method,
		e.Depth,
		e.Reason,
		string(e.Target),
		e.TargetMethod,
		state,
		e.Version,
		result,
		e.Code,
		e.Error,
	)
	if err != nil {
		return fmt.Errorf("record %s entry: %w", e.Type, err)
	}

	return nil
}
