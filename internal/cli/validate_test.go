package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValidTopology(t *testing.T) {
	dir := writeTopology(t, canistersTopology)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Topology valid (2 actor(s), 1 file(s))")
	assert.Contains(t, out, "canister_a (counter) deny=[protected_by_inspect_message] peers=[other=canister_b]")
	assert.Contains(t, out, "canister_b (counter) peers=[other=canister_a]")
}

func TestValidateValidTopologyJSON(t *testing.T) {
	dir := writeTopology(t, canistersTopology)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), dir)
	require.NoError(t, err)

	data := decodeData(t, out)
	assert.Equal(t, true, data["valid"])
	assert.Equal(t, float64(1), data["files"])
	actors, ok := data["actors"].([]any)
	require.True(t, ok)
	require.Len(t, actors, 2)
	assert.Equal(t, "canister_a", actors[0].(map[string]any)["id"])
}

func TestValidateUnknownProgram(t *testing.T) {
	dir := writeTopology(t, `actor: a: program: "nope"`)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Topology invalid (1 error(s))")
	assert.Contains(t, out, "actor.a")
}

func TestValidateUnknownPeer(t *testing.T) {
	dir := writeTopology(t, `actor: a: { program: "counter", peers: other: "ghost" }`)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "ghost")
}

func TestValidateCompileError(t *testing.T) {
	dir := writeTopology(t, `actor: a: { program: "counter", state: { ratio: 1.5 } }`)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "floats are forbidden")
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), "/nonexistent/topology")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `"status":"error"`)
	assert.Contains(t, out, "E005")
}

func TestValidateMissingArgs(t *testing.T) {
	_, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
