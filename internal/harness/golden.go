package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ckpt/internal/ir"
)

// GoldenDir is where golden traces live, relative to the harness package.
const GoldenDir = "testdata/scenarios/golden"

// Snapshot renders a scenario result as canonical JSON for golden
// comparison.
//
// Flows are listed in submission order, each with its own trace lines. The
// global interleaving of concurrent flows is left out, so a snapshot depends
// only on what each flow did and on the final states, not on goroutine
// scheduling. Seqs and frame IDs are left out for the same reason.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	flows := make([]any, len(result.Steps))
	for i, step := range result.Steps {
		trace := []any{}
		for _, line := range result.FlowLines(step.FlowToken) {
			trace = append(trace, line)
		}

		flow := map[string]any{
			"flow_token": step.FlowToken,
			"call":       step.Actor + "." + step.Method,
			"outcome":    step.Outcome,
			"trace":      trace,
		}
		if step.Code != "" {
			flow["code"] = step.Code
		}
		if step.Result != nil {
			if _, isNull := step.Result.(ir.IRNull); !isNull {
				flow["result"] = step.Result
			}
		}
		flows[i] = flow
	}

	states := make(map[string]any, len(result.State))
	for actor, state := range result.State {
		if state == nil {
			state = ir.IRObject{}
		}
		states[actor] = state
	}

	return ir.MarshalStored(map[string]any{
		"scenario_name": scenarioName,
		"flows":         flows,
		"final_state":   states,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/scenarios/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
