package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ckpt/internal/ir"
)

func TestGetFlowSummary(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustRecord(t, s,
		dispatchEntry(1, "ok", "a", "inc", 0),
		commitEntry(2, "ok", "a", 1, 1),
		terminalEntry(3, ir.EntryComplete, "ok", "a", 0),

		dispatchEntry(4, "failed", "a", "call", 0),
		commitEntry(5, "failed", "a", 2, 2),
		dispatchEntry(6, "failed", "b", "get", 1),
		terminalEntry(7, ir.EntryRollback, "failed", "b", 1),
		terminalEntry(8, ir.EntryRollback, "failed", "a", 0),

		terminalEntry(9, ir.EntryReject, "rejected", "a", 0),

		dispatchEntry(10, "pending", "a", "call", 0),
		terminalEntry(11, ir.EntryComplete, "pending", "b", 1),
	)

	tests := []struct {
		flow      string
		outcome   string
		frames    int
		commits   int
		rollbacks int
		lastSeq   int64
	}{
		{"ok", OutcomeCompleted, 1, 1, 0, 3},
		{"failed", OutcomeFailed, 2, 1, 2, 8},
		{"rejected", OutcomeRejected, 0, 0, 0, 9},
		{"pending", OutcomePending, 1, 0, 0, 11},
	}
	for _, tt := range tests {
		t.Run(tt.flow, func(t *testing.T) {
			sum, err := s.GetFlowSummary(ctx, tt.flow)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, sum.Outcome)
			assert.Equal(t, tt.frames, sum.Frames)
			assert.Equal(t, tt.commits, sum.Commits)
			assert.Equal(t, tt.rollbacks, sum.Rollbacks)
			assert.Equal(t, tt.lastSeq, sum.LastSeq)
		})
	}

	tokens, err := s.ListFlowTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok", "failed", "rejected", "pending"}, tokens)
}

func TestGetLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.GetLastSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	seedJournal(t, s)
	seq, err = s.GetLastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), seq)
}

func TestStateAt(t *testing.T) {
	s := createTestStore(t)
	seedJournal(t, s)
	ctx := context.Background()

	_, _, ok, err := s.StateAt(ctx, "a", 2)
	require.NoError(t, err)
	assert.False(t, ok, "no commit yet at seq 2")

	state, version, ok, err := s.StateAt(ctx, "a", 8)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, ir.IRObject{"counter": ir.IRInt(1)}, state)

	state, version, ok, err = s.StateAt(ctx, "a", 100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), version)
	assert.Equal(t, ir.IRObject{"counter": ir.IRInt(2)}, state)
}

func TestVerifyCommitChain(t *testing.T) {
	s := createTestStore(t)
	seedJournal(t, s)
	ctx := context.Background()

	violations, err := s.VerifyCommitChain(ctx)
	require.NoError(t, err)
	assert.Empty(t, violations)

	mustRecord(t, s, commitEntry(11, "flow-4", "a", 4, 4))
	violations, err = s.VerifyCommitChain(ctx)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, ChainViolation{Actor: "a", Seq: 11, Version: 4, Expected: 3}, violations[0])
	assert.Equal(t, "actor a: commit at seq 11 has version 4, expected 3", violations[0].String())

	mustRecord(t, s, commitEntry(12, "flow-5", "a", 1, 0))
	violations, err = s.VerifyCommitChain(ctx)
	require.NoError(t, err)
	assert.Len(t, violations, 1, "a redeployed actor starts a new chain")
}

func TestVerifyCommitChain_FirstVersionPastOne(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustRecord(t, s, commitEntry(1, "flow-1", "a", 2, 2), commitEntry(2, "flow-1", "a", 3, 3))

	violations, err := s.VerifyCommitChain(ctx)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, ChainViolation{Actor: "a", Seq: 1, Version: 2, Expected: 1}, violations[0])
}
