package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/ckpt/internal/engine"
	"github.com/roach88/ckpt/internal/ir"
	"github.com/roach88/ckpt/internal/programs"
	"github.com/roach88/ckpt/internal/store"
	"github.com/roach88/ckpt/internal/testutil"
	"github.com/roach88/ckpt/internal/topology"
)

// StepTimeout bounds how long the harness waits for one call's outcome.
const StepTimeout = 10 * time.Second

// Harness is the test execution engine.
// It runs scenarios against a real engine with deterministic flow tokens
// and an in-memory journal.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	flowGen  *testutil.SequenceFlowGenerator
	registry *programs.Registry
	logger   *slog.Logger
}

// pending is a submitted call waiting for its outcome.
type pending struct {
	step  Step
	reply <-chan engine.Outcome
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh engine with a fresh in-memory database.
//
// Execution flow:
// 1. Load and validate the topology, deploy its actors
// 2. Execute setup steps (each must complete)
// 3. Execute flow steps with expect validation
// 4. Cross-check the journal against the engine's final states
// 5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	return RunWithRegistry(ctx, scenario, programs.Default())
}

// RunWithRegistry runs scenario with the programs in reg.
func RunWithRegistry(ctx context.Context, scenario *Scenario, reg *programs.Registry) (*Result, error) {
	topo, err := topology.Load(scenario.Topology)
	if err != nil {
		return nil, fmt.Errorf("failed to load topology: %w", err)
	}
	if errs := topology.Validate(topo, reg.Known); len(errs) > 0 {
		return nil, fmt.Errorf("invalid topology: %w", errs[0])
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	flowGen := testutil.NewSequenceFlowGenerator(scenario.FlowToken)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	opts := append(topo.EngineOptions(),
		engine.WithJournal(st),
		engine.WithFlowGenerator(flowGen),
		engine.WithLogger(logger),
	)
	eng := engine.New(opts...)
	if err := reg.Deploy(eng, topo.Actors); err != nil {
		return nil, fmt.Errorf("failed to deploy topology: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- eng.Run(runCtx) }()
	defer func() {
		eng.Stop()
		<-runErr
	}()

	h := &Harness{
		store:    st,
		engine:   eng,
		flowGen:  flowGen,
		registry: reg,
		logger:   logger,
	}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}
	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

// executeSetup runs all setup steps sequentially. A setup call that does not
// complete aborts the scenario.
func (h *Harness) executeSetup(ctx context.Context, setup []Step, result *Result) error {
	for i, step := range setup {
		sr, err := h.call(ctx, step)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		result.Steps = append(result.Steps, sr)
		if sr.Outcome != OutcomeCompleted {
			return fmt.Errorf("setup step %d: %s.%s %s: %s", i, step.Actor, step.Method, sr.Outcome, sr.Error)
		}
		h.logger.Info("setup step completed", "step", i, "actor", step.Actor, "method", step.Method)
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses.
//
// A concurrent group submits every call before waiting on any of them, so
// the engine sees them queued together. Outcomes are checked in submission
// order.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		group := step.Concurrent
		if len(group) == 0 {
			group = []Step{step}
		}

		calls := make([]pending, 0, len(group))
		for j, s := range group {
			p, err := h.submit(ctx, s)
			if err != nil {
				return fmt.Errorf("flow step %d.%d: %w", i, j, err)
			}
			calls = append(calls, p)
		}

		for j, p := range calls {
			sr, err := h.wait(ctx, p)
			if err != nil {
				return fmt.Errorf("flow step %d.%d: %w", i, j, err)
			}
			result.Steps = append(result.Steps, sr)

			if p.step.Expect != nil {
				for _, msg := range checkExpect(p.step, sr) {
					result.AddError(fmt.Sprintf("flow[%d]: %s", i, msg))
				}
			}
			h.logger.Info("flow step completed",
				"step", i,
				"actor", sr.Actor,
				"method", sr.Method,
				"flow_token", sr.FlowToken,
				"outcome", sr.Outcome,
			)
		}
	}
	return nil
}

// call submits one step and waits for its outcome.
func (h *Harness) call(ctx context.Context, step Step) (StepResult, error) {
	p, err := h.submit(ctx, step)
	if err != nil {
		return StepResult{}, err
	}
	return h.wait(ctx, p)
}

func (h *Harness) submit(ctx context.Context, step Step) (pending, error) {
	args, err := convertArgs(step.Args)
	if err != nil {
		return pending{}, fmt.Errorf("failed to convert args: %w", err)
	}
	reply, err := h.engine.Submit(ctx, ir.ActorID(step.Actor), step.Method, args)
	if err != nil {
		return pending{}, fmt.Errorf("submit %s.%s: %w", step.Actor, step.Method, err)
	}
	return pending{step: step, reply: reply}, nil
}

func (h *Harness) wait(ctx context.Context, p pending) (StepResult, error) {
	timer := time.NewTimer(StepTimeout)
	defer timer.Stop()

	select {
	case out := <-p.reply:
		return classify(p.step, out), nil
	case <-timer.C:
		return StepResult{}, fmt.Errorf("%s.%s: no outcome after %s", p.step.Actor, p.step.Method, StepTimeout)
	case <-ctx.Done():
		return StepResult{}, ctx.Err()
	}
}

// collect reads the journal into the trace, snapshots every actor's state,
// and cross-checks both: the latest commit of each actor must equal its
// State Cell, and every actor's commits must form an unbroken version chain.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	entries, err := h.store.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	for _, e := range entries {
		result.Trace = append(result.Trace, traceEvent(e))
	}

	for _, id := range h.engine.Actors() {
		state, err := h.engine.State(id)
		if err != nil {
			return err
		}
		result.State[string(id)] = state

		latest, ok, err := h.store.LatestCommit(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to read commits: %w", err)
		}
		if ok && !ir.Equal(latest.State, state) {
			result.AddError(fmt.Sprintf("journal: latest commit of %s (seq %d) does not match its state", id, latest.Seq))
		}
	}

	violations, err := h.store.VerifyCommitChain(ctx)
	if err != nil {
		return err
	}
	for _, v := range violations {
		result.AddError("journal: " + v.String())
	}
	return nil
}

// classify turns an engine outcome into a StepResult.
func classify(step Step, out engine.Outcome) StepResult {
	sr := StepResult{
		Actor:     step.Actor,
		Method:    step.Method,
		FlowToken: out.FlowToken,
	}

	switch {
	case out.Err == nil:
		sr.Outcome = OutcomeCompleted
		sr.Result = out.Result
		return sr
	case engine.IsRejection(out.Err):
		sr.Outcome = OutcomeRejected
	default:
		sr.Outcome = OutcomeFailed
	}
	sr.Code = string(engine.FailureCode(out.Err))
	sr.Error = out.Err.Error()
	return sr
}

// checkExpect compares an outcome against the step's expect clause and
// returns one message per mismatch.
func checkExpect(step Step, sr StepResult) []string {
	var msgs []string
	call := step.Actor + "." + step.Method

	if sr.Outcome != step.Expect.Outcome {
		detail := ""
		if sr.Error != "" {
			detail = " (" + sr.Error + ")"
		}
		msgs = append(msgs, fmt.Sprintf("%s: expected outcome %s, got %s%s", call, step.Expect.Outcome, sr.Outcome, detail))
	}
	if step.Expect.Code != "" && sr.Code != step.Expect.Code {
		msgs = append(msgs, fmt.Sprintf("%s: expected code %s, got %q", call, step.Expect.Code, sr.Code))
	}
	if step.Expect.Result != nil {
		want, err := convertArgs(step.Expect.Result)
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("%s: invalid expected result: %v", call, err))
		} else if !ir.Equal(want, sr.Result) {
			msgs = append(msgs, fmt.Sprintf("%s: expected result %v, got %v", call, ir.ToGo(want), ir.ToGo(sr.Result)))
		}
	}
	return msgs
}

// convertArgs converts a YAML-parsed value to an IRValue. A missing value
// means no argument. Nulls are rejected early with a clear message since
// they cannot be hashed into frame IDs.
func convertArgs(v any) (ir.IRValue, error) {
	if v == nil {
		return nil, nil
	}
	out, err := ir.FromGo(v)
	if err != nil {
		return nil, err
	}
	return out, nil
}
