package cli

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ckpt/internal/ir"
	"github.com/roach88/ckpt/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	FlowToken string
	Actor     string
	Frame     string
	At        int64
}

// TraceEvent is one journal entry in a timeline.
type TraceEvent struct {
	Seq          int64  `json:"seq"`
	Type         string `json:"type"`
	FlowToken    string `json:"flow_token"`
	FrameID      string `json:"frame_id,omitempty"`
	Actor        string `json:"actor"`
	Method       string `json:"method"`
	Depth        int    `json:"depth"`
	Reason       string `json:"reason,omitempty"`
	Target       string `json:"target,omitempty"`
	TargetMethod string `json:"target_method,omitempty"`
	Version      int64  `json:"version,omitempty"`
	Code         string `json:"code,omitempty"`
	Error        string `json:"error,omitempty"`
	State        any    `json:"state,omitempty"`
	Result       any    `json:"result,omitempty"`

	entry ir.JournalEntry
}

// FlowStats summarizes one flow.
type FlowStats struct {
	FlowToken string `json:"flow_token"`
	Outcome   string `json:"outcome"`
	Frames    int    `json:"frames"`
	Commits   int    `json:"commits"`
	Rollbacks int    `json:"rollbacks"`
	LastSeq   int64  `json:"last_seq"`
}

// CommittedState is an actor's last committed state at some point of the
// journal.
type CommittedState struct {
	Seq     int64  `json:"seq,omitempty"`
	Version int64  `json:"version"`
	Hash    string `json:"hash,omitempty"`
	State   any    `json:"state"`

	state ir.IRObject
}

// TraceResult is the output of the trace command.
type TraceResult struct {
	FlowToken  string          `json:"flow_token,omitempty"`
	Actor      string          `json:"actor,omitempty"`
	Frame      string          `json:"frame,omitempty"`
	Timeline   []TraceEvent    `json:"timeline,omitempty"`
	Committed  *CommittedState `json:"committed,omitempty"`
	Flows      []FlowStats     `json:"flows,omitempty"`
	Entries    map[string]int  `json:"entries,omitempty"`
	Violations []string        `json:"violations,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journal of a flow or an actor",
		Long: `Read a journal written by invoke or run and print it.

With --flow, prints the flow's timeline and its outcome. With --actor,
prints every entry of that actor and its last committed state, or the
state it had at --at SEQ. With --frame, prints one frame's entries. With
none of them, lists all flows and the entry totals.

The commit chain of every actor is verified in all modes.

Example:
  ckpt trace --db ./ckpt.db
  ckpt trace --db ./ckpt.db --flow 019...
  ckpt trace --db ./ckpt.db --actor canister_a --verbose
  ckpt trace --db ./ckpt.db --actor canister_a --at 12`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	cmd.Flags().StringVar(&opts.FlowToken, "flow", "", "flow token to trace")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "actor to trace")
	cmd.Flags().StringVar(&opts.Frame, "frame", "", "frame ID to trace")
	cmd.Flags().Int64Var(&opts.At, "at", 0, "with --actor, show the committed state as of this seq")
	_ = cmd.MarkFlagRequired("db")
	cmd.MarkFlagsMutuallyExclusive("flow", "actor", "frame")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	if opts.At != 0 && opts.Actor == "" {
		return NewExitError(ExitCommandError, "--at requires --actor")
	}
	// store.Open would create a missing file.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result := TraceResult{FlowToken: opts.FlowToken, Actor: opts.Actor, Frame: opts.Frame}
	switch {
	case opts.FlowToken != "":
		sum, err := st.GetFlowSummary(ctx, opts.FlowToken)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read flow", err)
		}
		if len(sum.Entries) == 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("flow not found: %s", opts.FlowToken))
		}
		result.Timeline = buildTimeline(sum.Entries)
		result.Flows = []FlowStats{flowStats(sum)}

	case opts.Actor != "":
		entries, err := st.ReadActor(ctx, ir.ActorID(opts.Actor))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read actor", err)
		}
		if len(entries) == 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("actor not found in journal: %s", opts.Actor))
		}
		result.Timeline = buildTimeline(entries)
		committed, err := committedState(ctx, st, ir.ActorID(opts.Actor), opts.At)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read committed state", err)
		}
		result.Committed = committed

	case opts.Frame != "":
		entries, err := st.ReadFrame(ctx, opts.Frame)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read frame", err)
		}
		if len(entries) == 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("frame not found: %s", opts.Frame))
		}
		result.Timeline = buildTimeline(entries)

	default:
		tokens, err := st.ListFlowTokens(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list flows", err)
		}
		for _, token := range tokens {
			sum, err := st.GetFlowSummary(ctx, token)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read flow", err)
			}
			result.Flows = append(result.Flows, flowStats(sum))
		}
		counts, err := st.CountByType(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to count entries", err)
		}
		result.Entries = make(map[string]int, len(counts))
		for typ, n := range counts {
			result.Entries[string(typ)] = n
		}
	}

	violations, err := st.VerifyCommitChain(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to verify commit chain", err)
	}
	for _, v := range violations {
		result.Violations = append(result.Violations, v.String())
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := formatter.Emit(result, func(w io.Writer) { writeTrace(w, result, opts.Verbose) }); err != nil {
		return err
	}
	if len(result.Violations) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("commit chain broken (%d violation(s))", len(result.Violations)))
	}
	return nil
}

func buildTimeline(entries []ir.JournalEntry) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(entries))
	for _, e := range entries {
		ev := TraceEvent{
			Seq:          e.Seq,
			Type:         string(e.Type),
			FlowToken:    e.FlowToken,
			FrameID:      e.FrameID,
			Actor:        string(e.Actor),
			Method:       e.Method,
			Depth:        e.Depth,
			Reason:       e.Reason,
			Target:       string(e.Target),
			TargetMethod: e.TargetMethod,
			Code:         e.Code,
			Error:        e.Error,
			entry:        e,
		}
		if e.Type == ir.EntryCommit {
			ev.Version = e.Version
			ev.State = jsonValue(e.State)
		}
		if e.Result != nil {
			ev.Result = jsonValue(e.Result)
		}
		timeline = append(timeline, ev)
	}
	return timeline
}

// committedState reads actor's state as of seq at, or its latest when at
// is 0. It returns nil if the actor had not committed by then.
func committedState(ctx context.Context, st *store.Store, actor ir.ActorID, at int64) (*CommittedState, error) {
	seq := at
	if seq == 0 {
		seq = math.MaxInt64
	}
	state, version, ok, err := st.StateAt(ctx, actor, seq)
	if err != nil || !ok {
		return nil, err
	}
	hash, err := ir.StateHash(state)
	if err != nil {
		return nil, err
	}
	return &CommittedState{Seq: at, Version: version, Hash: hash, State: jsonValue(state), state: state}, nil
}

func flowStats(sum store.FlowSummary) FlowStats {
	return FlowStats{
		FlowToken: sum.FlowToken,
		Outcome:   sum.Outcome,
		Frames:    sum.Frames,
		Commits:   sum.Commits,
		Rollbacks: sum.Rollbacks,
		LastSeq:   sum.LastSeq,
	}
}

func writeTrace(w io.Writer, result TraceResult, verbose bool) {
	switch {
	case result.FlowToken != "":
		fmt.Fprintf(w, "Trace for Flow: %s\n", result.FlowToken)
		if len(result.Flows) == 1 {
			f := result.Flows[0]
			fmt.Fprintf(w, "Outcome: %s (%d frame(s), %d commit(s), %d rollback(s))\n",
				f.Outcome, f.Frames, f.Commits, f.Rollbacks)
		}
	case result.Actor != "":
		fmt.Fprintf(w, "Trace for Actor: %s\n", result.Actor)
	case result.Frame != "":
		fmt.Fprintf(w, "Trace for Frame: %s\n", result.Frame)
	default:
		fmt.Fprintln(w, "=== Flows ===")
		if len(result.Flows) == 0 {
			fmt.Fprintln(w, "  (no flows)")
		}
		for _, f := range result.Flows {
			fmt.Fprintf(w, "  %s  %-9s frames=%d commits=%d rollbacks=%d\n",
				f.FlowToken, f.Outcome, f.Frames, f.Commits, f.Rollbacks)
		}
		if len(result.Entries) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "=== Entries ===")
			types := make([]string, 0, len(result.Entries))
			for typ := range result.Entries {
				types = append(types, typ)
			}
			slices.Sort(types)
			for _, typ := range types {
				fmt.Fprintf(w, "  %-8s %d\n", typ, result.Entries[typ])
			}
		}
	}

	if len(result.Timeline) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Timeline ===")
		for _, ev := range result.Timeline {
			writeTimelineEvent(w, ev, verbose)
		}
	}

	if result.Actor != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Committed State ===")
		if c := result.Committed; c != nil {
			fmt.Fprintf(w, "  v%d %s\n", c.Version, formatValue(c.state))
			fmt.Fprintf(w, "  hash: %s\n", truncateID(c.Hash))
		} else {
			fmt.Fprintln(w, "  (none)")
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Commit Chain ===")
	if len(result.Violations) == 0 {
		fmt.Fprintln(w, "  ok")
		return
	}
	for _, v := range result.Violations {
		fmt.Fprintf(w, "  ✗ %s\n", v)
	}
}

// writeTimelineEvent prints one entry indented by call depth.
func writeTimelineEvent(w io.Writer, ev TraceEvent, verbose bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "  [%d] %s%-8s %s.%s", ev.Seq, strings.Repeat("  ", ev.Depth), ev.Type, ev.Actor, ev.Method)
	if ev.Reason != "" {
		b.WriteString(" " + ev.Reason)
	}
	if ev.Target != "" {
		fmt.Fprintf(&b, " -> %s.%s", ev.Target, ev.TargetMethod)
	}
	if ev.Type == string(ir.EntryCommit) {
		fmt.Fprintf(&b, " v%d", ev.Version)
	}
	if ev.Code != "" {
		b.WriteString(" " + ev.Code)
	}
	fmt.Fprintln(w, b.String())

	if !verbose {
		return
	}
	indent := "       " + strings.Repeat("  ", ev.Depth)
	if ev.FrameID != "" {
		fmt.Fprintf(w, "%sframe: %s\n", indent, truncateID(ev.FrameID))
	}
	if ev.Type == string(ir.EntryCommit) {
		fmt.Fprintf(w, "%sstate: %s\n", indent, formatValue(ev.entry.State))
	}
	if ev.entry.Result != nil {
		fmt.Fprintf(w, "%sresult: %s\n", indent, formatValue(ev.entry.Result))
	}
	if ev.Error != "" {
		fmt.Fprintf(w, "%serror: %s\n", indent, ev.Error)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
