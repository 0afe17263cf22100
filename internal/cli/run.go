package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ckpt/internal/engine"
	"github.com/roach88/ckpt/internal/ir"
	"github.com/roach88/ckpt/internal/metrics"
	"github.com/roach88/ckpt/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Script      string
	Database    string
	MetricsAddr string

	// FlowGenerator overrides the flow token generator (for testing). If
	// nil, the engine default (UUIDv7) is used.
	FlowGenerator engine.FlowTokenGenerator
}

// Script is a list of ingress calls executed in order.
//
//	name: demo
//	steps:
//	  - actor: canister_a
//	    method: increase_counter
//	  - concurrent:
//	      - { actor: canister_a, method: increase_counter }
//	      - { actor: canister_b, method: get_counter }
type Script struct {
	Name  string       `yaml:"name"`
	Steps []ScriptStep `yaml:"steps"`
}

// ScriptStep is one call, or a group of calls submitted together.
type ScriptStep struct {
	Actor      string       `yaml:"actor,omitempty"`
	Method     string       `yaml:"method,omitempty"`
	Args       any          `yaml:"args,omitempty"`
	Concurrent []ScriptStep `yaml:"concurrent,omitempty"`
}

// RunResult is the output of a script run.
type RunResult struct {
	Script string         `json:"script,omitempty"`
	Calls  []callOutcome  `json:"calls"`
	State  map[string]any `json:"state"`
	Failed int            `json:"failed"`

	states map[string]ir.IRObject
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <topology-dir>",
		Short: "Deploy a topology and execute a call script",
		Long: `Deploy a topology on the engine and execute the calls listed in a
YAML script. Calls under "concurrent" are submitted together and may
interleave at outbound calls.

With --metrics-addr the engine's Prometheus metrics are served on
/metrics, and the command keeps running after the script until
interrupted.

Example:
  ckpt run ./topology --script calls.yaml
  ckpt run ./topology --script calls.yaml --db ./ckpt.db --metrics-addr :9090`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Script, "script", "", "path to YAML call script (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (default: in memory)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	_ = cmd.MarkFlagRequired("script")

	return cmd
}

// LoadScript reads and checks a call script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("script %s has no steps", path)
	}
	for i, step := range s.Steps {
		if err := checkScriptStep(step, true); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	return &s, nil
}

func checkScriptStep(step ScriptStep, allowGroup bool) error {
	if len(step.Concurrent) > 0 {
		if !allowGroup {
			return errors.New("concurrent groups cannot be nested")
		}
		if step.Actor != "" || step.Method != "" {
			return errors.New("a concurrent group cannot also name a call")
		}
		for i, inner := range step.Concurrent {
			if err := checkScriptStep(inner, false); err != nil {
				return fmt.Errorf("concurrent[%d]: %w", i, err)
			}
		}
		return nil
	}
	if step.Actor == "" || step.Method == "" {
		return errors.New("actor and method are required")
	}
	return nil
}

func runScript(opts *RunOptions, dir string, cmd *cobra.Command) error {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	script, err := LoadScript(opts.Script)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load script", err)
	}
	topo, err := loadTopology(dir)
	if err != nil {
		return err
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	reg := prometheus.NewRegistry()
	extra := []engine.EngineOption{engine.WithMetrics(metrics.New(reg))}
	if opts.FlowGenerator != nil {
		extra = append(extra, engine.WithFlowGenerator(opts.FlowGenerator))
	}

	var stopMetrics func()
	if opts.MetricsAddr != "" {
		addr, stop, err := serveMetrics(opts.MetricsAddr, reg, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		stopMetrics = stop
		defer stop()
		logger.Info("metrics server listening", "addr", addr)
		fmt.Fprintf(cmd.ErrOrStderr(), "Serving metrics on http://%s/metrics\n", addr)
	}

	sess, err := startSession(ctx, topo, opts.Database, logger, extra...)
	if err != nil {
		return err
	}

	calls, err := executeScript(ctx, sess.eng, script.Steps)
	if err != nil {
		_ = sess.close()
		return WrapExitError(ExitCommandError, "script aborted", err)
	}

	states, err := sess.states()
	if err != nil {
		_ = sess.close()
		return WrapExitError(ExitCommandError, "failed to read state", err)
	}

	result := RunResult{Script: script.Name, Calls: calls, State: stateView(states), states: states}
	for _, c := range calls {
		if c.Outcome != store.OutcomeCompleted {
			result.Failed++
		}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := formatter.Emit(result, func(w io.Writer) { writeRun(w, result) }); err != nil {
		_ = sess.close()
		return err
	}

	if stopMetrics != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Press Ctrl-C to stop.")
		<-ctx.Done()
	}

	if err := sess.close(); err != nil {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	logger.Info("engine stopped gracefully")

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d call(s) did not complete", result.Failed, len(calls)))
	}
	return nil
}

// executeScript submits each step and waits for it. A concurrent group is
// submitted in full before any of its outcomes is awaited.
func executeScript(ctx context.Context, eng *engine.Engine, steps []ScriptStep) ([]callOutcome, error) {
	var calls []callOutcome
	for i, step := range steps {
		group := step.Concurrent
		if len(group) == 0 {
			group = []ScriptStep{step}
		}

		pending := make([]<-chan engine.Outcome, len(group))
		for j, call := range group {
			args, err := scriptArgs(call.Args)
			if err != nil {
				return nil, fmt.Errorf("steps[%d] %s.%s: %w", i, call.Actor, call.Method, err)
			}
			ch, err := eng.Submit(ctx, ir.ActorID(call.Actor), call.Method, args)
			if err != nil {
				return nil, fmt.Errorf("steps[%d] %s.%s: %w", i, call.Actor, call.Method, err)
			}
			pending[j] = ch
		}

		for j, ch := range pending {
			select {
			case out := <-ch:
				calls = append(calls, newCallOutcome(group[j].Actor, group[j].Method, out))
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return calls, nil
}

func scriptArgs(v any) (ir.IRValue, error) {
	if v == nil {
		return nil, nil
	}
	return ir.FromGo(v)
}

// serveMetrics exposes reg on addr under /metrics. It returns the bound
// address and a function that shuts the server down.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return ln.Addr().String(), func() { _ = srv.Shutdown(context.Background()) }, nil
}

func writeRun(w io.Writer, result RunResult) {
	if result.Script != "" {
		fmt.Fprintf(w, "Script: %s\n\n", result.Script)
	}
	fmt.Fprintln(w, "=== Calls ===")
	for _, c := range result.Calls {
		c.writeText(w)
	}
	fmt.Fprintln(w)
	writeStates(w, result.states)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d call(s), %d completed, %d failed\n",
		len(result.Calls), len(result.Calls)-result.Failed, result.Failed)
}
