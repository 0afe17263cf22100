package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ckpt/internal/ir"
)

// Flow outcomes derived from the root frame's terminal entry.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
	OutcomePending   = "pending"
)

// FlowSummary is the journal of one flow with derived counts.
type FlowSummary struct {
	FlowToken string
	Entries   []ir.JournalEntry
	LastSeq   int64
	Frames    int // dispatch entries
	Commits   int
	Rollbacks int
	Outcome   string
}

// GetFlowSummary reads a flow and classifies its outcome from the root
// frame's terminal entry.
func (s *Store) GetFlowSummary(ctx context.Context, flowToken string) (FlowSummary, error) {
	entries, err := s.ReadFlow(ctx, flowToken)
	if err != nil {
		return FlowSummary{}, fmt.Errorf("get flow summary: %w", err)
	}
	return summarize(flowToken, entries), nil
}

func summarize(flowToken string, entries []ir.JournalEntry) FlowSummary {
	sum := FlowSummary{FlowToken: flowToken, Entries: entries, Outcome: OutcomePending}
	for _, e := range entries {
		if e.Seq > sum.LastSeq {
			sum.LastSeq = e.Seq
		}
		switch e.Type {
		case ir.EntryDispatch:
			sum.Frames++
		case ir.EntryCommit:
			sum.Commits++
		case ir.EntryRollback:
			sum.Rollbacks++
		}
		if e.Depth != 0 {
			continue
		}
		switch e.Type {
		case ir.EntryComplete:
			sum.Outcome = OutcomeCompleted
		case ir.EntryRollback:
			sum.Outcome = OutcomeFailed
		case ir.EntryReject:
			sum.Outcome = OutcomeRejected
		}
	}
	return sum
}

// ListFlowTokens returns every flow token in order of first appearance.
func (s *Store) ListFlowTokens(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT flow_token FROM entries
		GROUP BY flow_token
		ORDER BY MIN(seq) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list flow tokens: %w", err)
	}
	defer rows.Close()

	tokens := []string{}
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan flow token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flow tokens: %w", err)
	}
	return tokens, nil
}

// GetLastSeq returns the highest seq in the journal, or 0 if it is empty.
// Restarting an engine's clock at this value keeps seqs unique across runs.
func (s *Store) GetLastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM entries`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq.Int64, nil
}

// StateAt returns an actor's committed state as of seq: the state of its
// last commit at or before seq. ok is false if there was none.
func (s *Store) StateAt(ctx context.Context, actor ir.ActorID, seq int64) (state ir.IRObject, version int64, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, selectEntries+`
		WHERE actor = ? AND type = 'commit' AND seq <= ?
		ORDER BY seq DESC LIMIT 1
	`, string(actor), seq)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("state of %s at %d: %w", actor, seq, err)
	}
	return e.State, e.Version, true, nil
}

// ChainViolation is a commit whose version does not follow its
// predecessor's.
type ChainViolation struct {
	Actor    ir.ActorID
	Seq      int64
	Version  int64
	Expected int64
}

func (v ChainViolation) String() string {
	return fmt.Sprintf("actor %s: commit at seq %d has version %d, expected %d",
		v.Actor, v.Seq, v.Version, v.Expected)
}

// VerifyCommitChain checks that every actor's commits form an unbroken
// version sequence 1, 2, 3, ... in seq order, i.e. each commit was built on
// the one before it. Version 1 starts a new chain, since a journal shared by
// several runs sees every actor redeployed.
func (s *Store) VerifyCommitChain(ctx context.Context) ([]ChainViolation, error) {
	entries, err := s.queryEntries(ctx, selectEntries+`WHERE type = 'commit' ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("verify commit chain: %w", err)
	}

	next := make(map[ir.ActorID]int64)
	var violations []ChainViolation
	for _, e := range entries {
		want := next[e.Actor] + 1
		if e.Version != want && e.Version != 1 {
			violations = append(violations, ChainViolation{
				Actor: e.Actor, Seq: e.Seq, Version: e.Version, Expected: want,
			})
		}
		next[e.Actor] = e.Version
	}
	return violations, nil
}
