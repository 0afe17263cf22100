package engine

import (
	"context"

	"github.com/roach88/ckpt/internal/ir"
)

// Journal receives every frame lifecycle transition in seq order.
// Implemented by store.Store. Record is called only from the Run loop.
type Journal interface {
	Record(ctx context.Context, entry ir.JournalEntry) error
}

// JournalFunc adapts a function to the Journal interface.
type JournalFunc func(ctx context.Context, entry ir.JournalEntry) error

// Record implements Journal.
func (fn JournalFunc) Record(ctx context.Context, entry ir.JournalEntry) error {
	return fn(ctx, entry)
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, ir.JournalEntry) error { return nil }

// record stamps entry with the next seq (unless preassigned) and appends it to
// the journal. Journal errors are logged and do not affect execution.
func (e *Engine) record(ctx context.Context, entry ir.JournalEntry) int64 {
	if entry.Seq == 0 {
		entry.Seq = e.clock.Next()
	}
	if err := e.journal.Record(ctx, entry); err != nil {
		e.logger.Error("journal write failed",
			"seq", entry.Seq,
			"type", entry.Type,
			"frame_id", entry.FrameID,
			"error", err,
		)
	}
	return entry.Seq
}
