package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventClock_EqualTimestamps_PopInPushOrder(t *testing.T) {
	// GIVEN timestamps [5, 2, 2, 7] pushed in that order
	c := NewEventClock[string]()
	c.Push(5, "five")
	c.Push(2, "two-first")
	c.Push(2, "two-second")
	c.Push(7, "seven")

	// WHEN popping everything
	var got []string
	for c.Len() > 0 {
		got = append(got, c.PopMin())
	}

	// THEN dates come out sorted and ties keep push order
	assert.Equal(t, []string{"two-first", "two-second", "five", "seven"}, got)
}

func TestEventClock_PeekMinTime(t *testing.T) {
	c := NewEventClock[int]()
	_, ok := c.PeekMinTime()
	assert.False(t, ok)

	c.Push(3.5, 1)
	c.Push(1.25, 2)

	at, ok := c.PeekMinTime()
	require.True(t, ok)
	assert.Equal(t, 1.25, at)
	payload, ok := c.PeekMin()
	require.True(t, ok)
	assert.Equal(t, 2, payload)
	assert.Equal(t, 2, c.Len(), "peeking must not remove")
}

func TestEventClock_PopEmpty_Panics(t *testing.T) {
	c := NewEventClock[int]()
	assert.PanicsWithValue(t, "EventClock: PopMin on empty clock", func() {
		c.PopMin()
	})
}

func TestEventClock_InterleavedPushPop_StaysOrdered(t *testing.T) {
	c := NewEventClock[float64]()
	for _, at := range []float64{9, 4, 6} {
		c.Push(at, at)
	}
	assert.Equal(t, 4.0, c.PopMin())
	c.Push(1, 1)
	c.Push(6, 6.5)
	var got []float64
	for c.Len() > 0 {
		got = append(got, c.PopMin())
	}
	assert.Equal(t, []float64{1, 6, 6.5, 9}, got)
}
