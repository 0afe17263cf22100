package cli

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ckpt/internal/programs"
	"github.com/roach88/ckpt/internal/topology"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool                       `json:"valid"`
	Files      int                        `json:"files"`
	Actors     []ActorSummary             `json:"actors,omitempty"`
	MaxSteps   int                        `json:"max_steps,omitempty"`
	Reentrancy string                     `json:"reentrancy,omitempty"`
	Errors     []topology.ValidationError `json:"errors,omitempty"`
}

// ActorSummary describes one actor of a validated topology.
type ActorSummary struct {
	ID      string   `json:"id"`
	Program string   `json:"program"`
	Deny    []string `json:"deny,omitempty"`
	Peers   []string `json:"peers,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <topology-dir>",
		Short: "Validate a topology without running it",
		Long: `Compile the CUE files of a topology and check them against the
built-in programs.

Reports every actor with its program, denied methods and peers.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	topo, err := topology.Load(dir)
	if err != nil {
		code := ErrCodeTopology
		var loadErr *topology.LoadError
		if errors.As(err, &loadErr) {
			code = loadErr.Code
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load topology", err)
	}
	formatter.VerboseLog("Compiled %d CUE file(s) in %s", topo.Files, dir)

	result := ValidationResult{
		Files:      topo.Files,
		MaxSteps:   topo.MaxSteps,
		Reentrancy: topo.Reentrancy,
		Errors:     topology.Validate(topo, programs.Default().Known),
	}
	result.Valid = len(result.Errors) == 0
	for _, a := range topo.Actors {
		formatter.VerboseLog("Actor %s: program %s", a.ID, a.Program)
		sum := ActorSummary{ID: string(a.ID), Program: a.Program, Deny: a.Deny}
		for name, target := range a.Peers {
			sum.Peers = append(sum.Peers, name+"="+string(target))
		}
		slices.Sort(sum.Peers)
		result.Actors = append(result.Actors, sum)
	}

	if err := formatter.Emit(result, func(w io.Writer) { writeValidation(w, result) }); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("topology has %d error(s)", len(result.Errors)))
	}
	return nil
}

func writeValidation(w io.Writer, result ValidationResult) {
	if !result.Valid {
		fmt.Fprintf(w, "✗ Topology invalid (%d error(s))\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e.Error())
		}
		return
	}

	fmt.Fprintf(w, "✓ Topology valid (%d actor(s), %d file(s))\n", len(result.Actors), result.Files)
	for _, a := range result.Actors {
		fmt.Fprintf(w, "  %s (%s)", a.ID, a.Program)
		if len(a.Deny) > 0 {
			fmt.Fprintf(w, " deny=[%s]", strings.Join(a.Deny, ", "))
		}
		if len(a.Peers) > 0 {
			fmt.Fprintf(w, " peers=[%s]", strings.Join(a.Peers, ", "))
		}
		fmt.Fprintln(w)
	}
}
