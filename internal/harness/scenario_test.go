package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content to dir/test.yaml next to a topology directory
// named "topo" and returns the scenario path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	topo := filepath.Join(dir, "topo")
	require.NoError(t, os.MkdirAll(topo, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(topo, "a.cue"), []byte(`actor: a: program: "counter"`), 0644))

	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validScenario = `
name: test_scenario
description: "Test scenario for validation"
topology: topo
flow_token: t
setup:
  - actor: a
    method: inc
flow:
  - actor: a
    method: inc
    args: { by: 1, tags: [x, y] }
    expect:
      outcome: completed
  - concurrent:
      - actor: a
        method: inc
      - actor: a
        method: get_counter
        expect: { outcome: completed, result: 3 }
assertions:
  - type: final_state
    actor: a
    expect: { counter: 3 }
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, validScenario)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "topo"), scenario.Topology, "topology resolved against the scenario file")
	assert.Equal(t, "t", scenario.FlowToken)
	require.Len(t, scenario.Setup, 1)
	require.Len(t, scenario.Flow, 2)
	assert.Len(t, scenario.Assertions, 1)

	first := scenario.Flow[0]
	assert.Equal(t, "a", first.Actor)
	assert.Equal(t, "inc", first.Method)
	assert.Equal(t, map[string]any{"by": 1, "tags": []any{"x", "y"}}, first.Args)
	require.NotNil(t, first.Expect)
	assert.Equal(t, OutcomeCompleted, first.Expect.Outcome)

	group := scenario.Flow[1].Concurrent
	require.Len(t, group, 2)
	assert.Equal(t, 3, group[1].Expect.Result)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Typo in assertions"
topology: topo
flow:
  - actor: a
    method: inc
assertion:
  - type: commit_count
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: "d"
topology: topo
flow: [{actor: a, method: inc}]
assertions: [{type: commit_count}]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: n
topology: topo
flow: [{actor: a, method: inc}]
assertions: [{type: commit_count}]
`,
			wantErr: "description is required",
		},
		{
			name: "missing topology",
			content: `
name: n
description: "d"
flow: [{actor: a, method: inc}]
assertions: [{type: commit_count}]
`,
			wantErr: "topology is required",
		},
		{
			name: "topology not found",
			content: `
name: n
description: "d"
topology: nowhere
flow: [{actor: a, method: inc}]
assertions: [{type: commit_count}]
`,
			wantErr: "topology not found",
		},
		{
			name: "empty flow",
			content: `
name: n
description: "d"
topology: topo
flow: []
assertions: [{type: commit_count}]
`,
			wantErr: "flow list is required",
		},
		{
			name: "missing assertions",
			content: `
name: n
description: "d"
topology: topo
flow: [{actor: a, method: inc}]
`,
			wantErr: "assertions list is required",
		},
		{
			name: "step without method",
			content: `
name: n
description: "d"
topology: topo
flow: [{actor: a}]
assertions: [{type: commit_count}]
`,
			wantErr: "flow[0]: method is required",
		},
		{
			name: "unknown outcome",
			content: `
name: n
description: "d"
topology: topo
flow: [{actor: a, method: inc, expect: {outcome: exploded}}]
assertions: [{type: commit_count}]
`,
			wantErr: `unknown outcome "exploded"`,
		},
		{
			name: "code on completed outcome",
			content: `
name: n
description: "d"
topology: topo
flow: [{actor: a, method: inc, expect: {outcome: completed, code: TRAP}}]
assertions: [{type: commit_count}]
`,
			wantErr: "code is only valid",
		},
		{
			name: "group mixed with call",
			content: `
name: n
description: "d"
topology: topo
flow:
  - actor: a
    concurrent: [{actor: a, method: inc}]
assertions: [{type: commit_count}]
`,
			wantErr: "concurrent group cannot also set",
		},
		{
			name: "nested group",
			content: `
name: n
description: "d"
topology: topo
flow:
  - concurrent:
      - concurrent: [{actor: a, method: inc}]
assertions: [{type: commit_count}]
`,
			wantErr: "concurrent groups are not allowed here",
		},
		{
			name: "group in setup",
			content: `
name: n
description: "d"
topology: topo
setup:
  - concurrent: [{actor: a, method: inc}]
flow: [{actor: a, method: inc}]
assertions: [{type: commit_count}]
`,
			wantErr: "setup[0]: concurrent groups are not allowed here",
		},
		{
			name: "unknown assertion type",
			content: `
name: n
description: "d"
topology: topo
flow: [{actor: a, method: inc}]
assertions: [{type: eventually_consistent}]
`,
			wantErr: `unknown assertion type "eventually_consistent"`,
		},
		{
			name: "final_state without actor",
			content: `
name: n
description: "d"
topology: topo
flow: [{actor: a, method: inc}]
assertions: [{type: final_state, expect: {counter: 1}}]
`,
			wantErr: "actor is required for final_state",
		},
		{
			name: "trace_order without entries",
			content: `
name: n
description: "d"
topology: topo
flow: [{actor: a, method: inc}]
assertions: [{type: trace_order}]
`,
			wantErr: "entries list is required",
		},
		{
			name: "negative count",
			content: `
name: n
description: "d"
topology: topo
flow: [{actor: a, method: inc}]
assertions: [{type: rollback_count, count: -1}]
`,
			wantErr: "count must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt", "sub/c.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}

	files, err := FindScenarios(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "sub", "c.yaml"),
	}, files)

	files, err = FindScenarios(dir, "b*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.yaml")}, files)

	_, err = FindScenarios(dir, "[")
	require.Error(t, err)
}

func TestLoadScenario_Testdata(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		scenario, err := LoadScenario(file)
		require.NoError(t, err, file)
		base := filepath.Base(file)
		assert.Equal(t, base[:len(base)-len(filepath.Ext(base))], scenario.Name, "scenario name matches its file")
	}
}
