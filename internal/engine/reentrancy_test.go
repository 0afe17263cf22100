package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReentrancyTracker_SelfCallIsNotReentrant(t *testing.T) {
	r := NewReentrancyTracker()
	r.Park("flow-1", "a")

	assert.False(t, r.WouldReenter("flow-1", "a", "a"))
}

func TestReentrancyTracker_DetectsParkedTarget(t *testing.T) {
	r := NewReentrancyTracker()
	r.Park("flow-1", "a")

	assert.True(t, r.WouldReenter("flow-1", "b", "a"))
	assert.False(t, r.WouldReenter("flow-2", "b", "a"), "flows are isolated")
	assert.False(t, r.WouldReenter("flow-1", "a", "b"))
}

func TestReentrancyTracker_ParkCounts(t *testing.T) {
	r := NewReentrancyTracker()
	r.Park("flow-1", "a")
	r.Park("flow-1", "a")
	assert.Equal(t, 2, r.Parked("flow-1", "a"))

	r.Unpark("flow-1", "a")
	assert.True(t, r.WouldReenter("flow-1", "b", "a"))

	r.Unpark("flow-1", "a")
	assert.False(t, r.WouldReenter("flow-1", "b", "a"))
	assert.Equal(t, 0, r.HistorySize())
}

func TestReentrancyTracker_Clear(t *testing.T) {
	r := NewReentrancyTracker()
	r.Park("flow-1", "a")
	r.Park("flow-2", "a")
	assert.Equal(t, 2, r.HistorySize())

	r.Clear("flow-1")
	assert.Equal(t, 1, r.HistorySize())
	r.Unpark("flow-1", "a") // no-op after clear
	assert.Equal(t, 1, r.Parked("flow-2", "a"))
}
