package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const canistersTopology = `
actor: canister_a: {
	program: "counter"
	state: { counter: 0, drop_counter: 0 }
	deny: ["protected_by_inspect_message"]
	peers: other: "canister_b"
}

actor: canister_b: {
	program: "counter"
	state: { counter: 999_999_999, drop_counter: 0 }
	peers: other: "canister_a"
}
`

// writeTopology writes src as the only CUE file of a fresh topology
// directory.
func writeTopology(t *testing.T, src string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "topology")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "topology.cue"), []byte(src), 0644))
	return dir
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeData decodes a JSON CLIResponse and returns its data payload.
func decodeData(t *testing.T, out string) map[string]any {
	t.Helper()
	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}
