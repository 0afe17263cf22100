package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ckpt/internal/ir"
)

const selectEntries = `
	SELECT seq, type, flow_token, frame_id, parent_id, actor, method, depth,
	       reason, target, target_method, state, version, result, code, error
	FROM entries
`

// ReadFlow returns all entries of a flow ordered by seq.
//
// Returns an empty slice (not nil) if the flow has no entries.
func (s *Store) ReadFlow(ctx context.Context, flowToken string) ([]ir.JournalEntry, error) {
	entries, err := s.queryEntries(ctx, selectEntries+`WHERE flow_token = ? ORDER BY seq ASC`, flowToken)
	if err != nil {
		return nil, fmt.Errorf("read flow %s: %w", flowToken, err)
	}
	return entries, nil
}

// ReadActor returns all entries concerning an actor ordered by seq.
func (s *Store) ReadActor(ctx context.Context, actor ir.ActorID) ([]ir.JournalEntry, error) {
	entries, err := s.queryEntries(ctx, selectEntries+`WHERE actor = ? ORDER BY seq ASC`, string(actor))
	if err != nil {
		return nil, fmt.Errorf("read actor %s: %w", actor, err)
	}
	return entries, nil
}

// ReadFrame returns all entries of one frame ordered by seq.
func (s *Store) ReadFrame(ctx context.Context, frameID string) ([]ir.JournalEntry, error) {
	entries, err := s.queryEntries(ctx, selectEntries+`WHERE frame_id = ? ORDER BY seq ASC`, frameID)
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", frameID, err)
	}
	return entries, nil
}

// ReadAll returns the whole journal ordered by seq.
func (s *Store) ReadAll(ctx context.Context) ([]ir.JournalEntry, error) {
	entries, err := s.queryEntries(ctx, selectEntries+`ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("read all entries: %w", err)
	}
	return entries, nil
}

// LatestCommit returns the most recent commit entry for an actor. ok is
// false if the actor never committed.
func (s *Store) LatestCommit(ctx context.Context, actor ir.ActorID) (entry ir.JournalEntry, ok bool, err error) {
	row := s.db.QueryRowContext(ctx,
		selectEntries+`WHERE actor = ? AND type = 'commit' ORDER BY seq DESC LIMIT 1`, string(actor))
	entry, err = scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.JournalEntry{}, false, nil
	}
	if err != nil {
		return ir.JournalEntry{}, false, fmt.Errorf("latest commit %s: %w", actor, err)
	}
	return entry, true, nil
}

// CountByType returns the number of entries of each type.
func (s *Store) CountByType(ctx context.Context) (map[ir.EntryType]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM entries GROUP BY type ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[ir.EntryType]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[ir.EntryType(typ)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]ir.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []ir.JournalEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (ir.JournalEntry, error) {
	var (
		e                     ir.JournalEntry
		typ, actor, target    string
		stateJSON, resultJSON sql.NullString
	)
	err := sc.Scan(
		&e.Seq,
		&typ,
		&e.FlowToken,
		&e.FrameID,
		&e.ParentID,
		&actor,
		&e.Method,
		&e.Depth,
		&e.Reason,
		&target,
		&e.TargetMethod,
		&stateJSON,
		&e.Version,
		&resultJSON,
		&e.Code,
		&e.Error,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.JournalEntry{}, err
		}
		return ir.JournalEntry{}, fmt.Errorf("scan entry: %w", err)
	}

	e.Type = ir.EntryType(typ)
	e.Actor = ir.ActorID(actor)
	e.Target = ir.ActorID(target)

	if e.State, err = unmarshalState(stateJSON); err != nil {
		return ir.JournalEntry{}, fmt.Errorf("entry %d: %w", e.Seq, err)
	}
	if e.Result, err = unmarshalResult(resultJSON); err != nil {
		return ir.JournalEntry{}, fmt.Errorf("entry %d: %w", e.Seq, err)
	}
	return e, nil
}
