package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator(t *testing.T) {
	var gen UUIDv7Generator

	prev := ""
	seen := make(map[string]struct{})
	for range 200 {
		token := gen.Generate()
		id, err := uuid.Parse(token)
		require.NoError(t, err)
		require.Equal(t, uuid.Version(7), id.Version())

		_, dup := seen[token]
		require.False(t, dup, "duplicate token %s", token)
		seen[token] = struct{}{}

		// UUIDv7 from one process sorts in generation order.
		require.Greater(t, token, prev)
		prev = token
	}
}

func TestTokenList(t *testing.T) {
	gen := NewTokenList("flow-1", "flow-2")

	assert.Equal(t, "flow-1", gen.Generate())
	assert.Equal(t, "flow-2", gen.Generate())
	assert.PanicsWithValue(t, "flow token list exhausted", func() { gen.Generate() })
}
