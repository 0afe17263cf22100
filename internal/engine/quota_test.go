package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepBudget(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		allowed int
	}{
		{"root only", 1, 0},
		{"small", 3, 2},
		{"default", DefaultMaxSteps, DefaultMaxSteps - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newStepBudget(tt.limit)
			for i := range tt.allowed {
				require.NoError(t, b.take("f"), "step %d", i+2)
			}

			err := b.take("f")
			require.ErrorIs(t, err, ErrStepQuota)
			assert.Equal(t, tt.limit, b.used, "refused step is not spent")
		})
	}
}

func TestStepBudgetMessage(t *testing.T) {
	b := newStepBudget(2)
	require.NoError(t, b.take("flow-9"))

	err := b.take("flow-9")
	assert.EqualError(t, err, "step quota exceeded: flow flow-9 would create frame 3, limit is 2")
}
