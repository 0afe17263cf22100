package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ckpt/internal/ir"
	"github.com/roach88/ckpt/internal/store"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Actor    string
	Method   string
	Args     string
	Database string
}

// InvokeResult is the output of one invocation.
type InvokeResult struct {
	callOutcome
	State map[string]any `json:"state"`

	states map[string]ir.IRObject
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <topology-dir>",
		Short: "Deploy a topology and dispatch one call",
		Long: `Deploy a topology, dispatch one ingress call, and print the outcome
and every actor's final state.

Without --db the journal is kept in memory and discarded.

Example:
  ckpt invoke ./topology --actor canister_a --method increase_counter
  ckpt invoke ./topology --actor canister_a --method increase_drop_counter --args true --db ./ckpt.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeCall(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Actor, "actor", "", "target actor (required)")
	cmd.Flags().StringVar(&opts.Method, "method", "", "method to call (required)")
	cmd.Flags().StringVar(&opts.Args, "args", "", "call arguments as JSON")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (default: in memory)")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("method")

	return cmd
}

func invokeCall(opts *InvokeOptions, dir string, cmd *cobra.Command) error {
	args, err := parseArgs(opts.Args)
	if err != nil {
		return err
	}
	topo, err := loadTopology(dir)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sess, err := startSession(ctx, topo, opts.Database, newLogger(cmd.ErrOrStderr(), opts.Verbose))
	if err != nil {
		return err
	}

	out, err := sess.eng.DispatchOutcome(ctx, ir.ActorID(opts.Actor), opts.Method, args)
	if err != nil {
		_ = sess.close()
		return WrapExitError(ExitCommandError, "dispatch failed", err)
	}

	states, err := sess.states()
	if closeErr := sess.close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to shut down engine", err)
	}

	result := InvokeResult{
		callOutcome: newCallOutcome(opts.Actor, opts.Method, out),
		State:       stateView(states),
		states:      states,
	}
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := formatter.Emit(result, func(w io.Writer) {
		result.writeText(w)
		fmt.Fprintln(w)
		writeStates(w, result.states)
	}); err != nil {
		return err
	}

	if result.Outcome != store.OutcomeCompleted {
		return NewExitError(ExitFailure, fmt.Sprintf("call %s", result.Outcome))
	}
	return nil
}
