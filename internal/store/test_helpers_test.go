package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/ckpt/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustRecord writes entries or fails the test.
func mustRecord(t *testing.T, s *Store, entries ...ir.JournalEntry) {
	t.Helper()
	for _, e := range entries {
		if err := s.Record(context.Background(), e); err != nil {
			t.Fatalf("Record(seq=%d) failed: %v", e.Seq, err)
		}
	}
}

func dispatchEntry(seq int64, flow string, actor ir.ActorID, method string, depth int) ir.JournalEntry {
	return ir.JournalEntry{
		Seq:       seq,
		Type:      ir.EntryDispatch,
		FlowToken: flow,
		FrameID:   "frame-" + string(actor) + "-" + method,
		Actor:     actor,
		Method:    method,
		Depth:     depth,
	}
}

func commitEntry(seq int64, flow string, actor ir.ActorID, version int64, counter int64) ir.JournalEntry {
	return ir.JournalEntry{
		Seq:       seq,
		Type:      ir.EntryCommit,
		FlowToken: flow,
		FrameID:   "frame-" + string(actor),
		Actor:     actor,
		Method:    "inc",
		Reason:    "return",
		State:     ir.IRObject{"counter": ir.IRInt(counter)},
		Version:   version,
	}
}

func terminalEntry(seq int64, typ ir.EntryType, flow string, actor ir.ActorID, depth int) ir.JournalEntry {
	return ir.JournalEntry{
		Seq:       seq,
		Type:      typ,
		FlowToken: flow,
		Actor:     actor,
		Method:    "inc",
		Depth:     depth,
	}
}
