package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/ckpt/internal/engine"
	"github.com/roach88/ckpt/internal/ir"
	"github.com/roach88/ckpt/internal/programs"
	"github.com/roach88/ckpt/internal/store"
	"github.com/roach88/ckpt/internal/topology"
)

// memoryDB is used when no --db path is given.
const memoryDB = ":memory:"

// session is a topology deployed on a running engine with its journal.
type session struct {
	topo   *topology.Topology
	eng    *engine.Engine
	store  *store.Store
	runErr chan error
}

// newLogger builds the engine logger: debug under --verbose, warnings
// otherwise so command output stays readable.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadTopology compiles dir and checks it against the built-in programs.
func loadTopology(dir string) (*topology.Topology, error) {
	topo, err := topology.Load(dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load topology", err)
	}
	if errs := topology.Validate(topo, programs.Default().Known); len(errs) > 0 {
		return nil, WrapExitError(ExitFailure, "invalid topology", errs[0])
	}
	return topo, nil
}

// startSession deploys topo and starts the engine loop. dbPath "" keeps the
// journal in memory.
func startSession(ctx context.Context, topo *topology.Topology, dbPath string, logger *slog.Logger, extra ...engine.EngineOption) (*session, error) {
	if dbPath == "" {
		dbPath = memoryDB
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	// A file journal may hold earlier runs; continue its clock so seqs
	// stay unique.
	lastSeq, err := st.GetLastSeq(ctx)
	if err != nil {
		_ = st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	opts := append(topo.EngineOptions(),
		engine.WithJournal(st),
		engine.WithLogger(logger),
		engine.WithClock(engine.NewClockAt(lastSeq)),
	)
	opts = append(opts, extra...)
	eng := engine.New(opts...)

	if err := programs.Default().Deploy(eng, topo.Actors); err != nil {
		_ = st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to deploy topology", err)
	}

	s := &session{topo: topo, eng: eng, store: st, runErr: make(chan error, 1)}
	go func() { s.runErr <- eng.Run(ctx) }()
	return s, nil
}

// close stops the engine, waits for the loop to exit and closes the journal.
func (s *session) close() error {
	s.eng.Stop()
	runErr := <-s.runErr
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return errors.Join(runErr, s.store.Close())
}

// states returns every actor's current state.
func (s *session) states() (map[string]ir.IRObject, error) {
	out := make(map[string]ir.IRObject)
	for _, id := range s.eng.Actors() {
		st, err := s.eng.State(id)
		if err != nil {
			return nil, fmt.Errorf("read state of %s: %w", id, err)
		}
		out[string(id)] = st
	}
	return out, nil
}

// parseArgs decodes a JSON argument string. The empty string means no
// arguments.
func parseArgs(raw string) (ir.IRValue, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := ir.UnmarshalIRValue([]byte(raw))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --args JSON", err)
	}
	return v, nil
}

// callOutcome is the printable result of one ingress call.
type callOutcome struct {
	Call      string `json:"call"`
	FlowToken string `json:"flow_token"`
	Outcome   string `json:"outcome"`
	Code      string `json:"code,omitempty"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`

	result ir.IRValue
}

func newCallOutcome(actor, method string, out engine.Outcome) callOutcome {
	co := callOutcome{
		Call:      actor + "." + method,
		FlowToken: out.FlowToken,
		Outcome:   store.OutcomeCompleted,
		Result:    jsonValue(out.Result),
		result:    out.Result,
	}
	if out.Err != nil {
		co.Outcome = store.OutcomeFailed
		if engine.IsRejection(out.Err) {
			co.Outcome = store.OutcomeRejected
		}
		co.Code = string(engine.FailureCode(out.Err))
		co.Error = out.Err.Error()
		co.Result = nil
		co.result = nil
	}
	return co
}

func (c callOutcome) writeText(w io.Writer) {
	switch c.Outcome {
	case store.OutcomeCompleted:
		fmt.Fprintf(w, "✓ %s [%s] -> %s\n", c.Call, c.FlowToken, formatValue(c.result))
	default:
		fmt.Fprintf(w, "✗ %s [%s] %s %s\n", c.Call, c.FlowToken, c.Outcome, c.Code)
		fmt.Fprintf(w, "  %s\n", c.Error)
	}
}

// stateView converts states for JSON output.
func stateView(states map[string]ir.IRObject) map[string]any {
	out := make(map[string]any, len(states))
	for id, st := range states {
		out[id] = jsonValue(st)
	}
	return out
}

func writeStates(w io.Writer, states map[string]ir.IRObject) {
	fmt.Fprintln(w, "=== State ===")
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  %s: %s\n", id, formatValue(states[id]))
	}
}
