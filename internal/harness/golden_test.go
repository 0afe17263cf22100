package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ckpt/internal/ir"
)

// Golden files live under testdata/scenarios/golden. Regenerate with:
//
//	go test ./internal/harness -run TestGolden -update
func TestGolden_Scenarios(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/scenario_e_concurrent_ingress.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSnapshot_Shape(t *testing.T) {
	result := NewResult()
	result.Steps = []StepResult{
		{Actor: "a", Method: "get", FlowToken: "f-1", Outcome: OutcomeCompleted, Result: ir.IRInt(2)},
		{Actor: "a", Method: "boom", FlowToken: "f-2", Outcome: OutcomeFailed, Code: "TRAP"},
		{Actor: "a", Method: "noop", FlowToken: "f-3", Outcome: OutcomeCompleted, Result: ir.IRNull{}},
	}
	result.Trace = []TraceEvent{
		{Seq: 1, Type: "dispatch", FlowToken: "f-1", Actor: "a", Method: "get"},
		{Seq: 2, Type: "dispatch", FlowToken: "f-2", Actor: "a", Method: "boom"},
		{Seq: 3, Type: "complete", FlowToken: "f-1", Actor: "a", Method: "get"},
		{Seq: 4, Type: "rollback", FlowToken: "f-2", Actor: "a", Method: "boom", Code: "TRAP"},
	}
	result.State["a"] = ir.IRObject{"n": ir.IRInt(2)}
	result.State["b"] = nil

	data, err := Snapshot("shape", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"final_state":{"a":{"n":2},"b":{}},"flows":[`+
			`{"call":"a.get","flow_token":"f-1","outcome":"completed","result":2,"trace":["dispatch a.get","complete a.get"]},`+
			`{"call":"a.boom","code":"TRAP","flow_token":"f-2","outcome":"failed","trace":["dispatch a.boom","rollback a.boom TRAP"]},`+
			`{"call":"a.noop","flow_token":"f-3","outcome":"completed","trace":[]}],`+
			`"scenario_name":"shape"}`,
		string(data))
}
