package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneIsDeep(t *testing.T) {
	s := DefaultState()
	s.StartNumber, s.EndNumber = 1, 3
	s.GeneratedOrder = []int{2, 1, 3}
	s.CurrentlyServing = IntPtr(2)
	s.TicketStatus[1] = TicketReturned
	s.CalledAt[2] = 100

	c := s.Clone()
	c.GeneratedOrder[0] = 3
	*c.CurrentlyServing = 3
	c.TicketStatus[2] = TicketUnclaimed
	c.CalledAt[3] = 200

	assert.Equal(t, []int{2, 1, 3}, s.GeneratedOrder)
	assert.Equal(t, 2, *s.CurrentlyServing)
	assert.Len(t, s.TicketStatus, 1)
	assert.Len(t, s.CalledAt, 1)
}

func TestJSONShape(t *testing.T) {
	s := DefaultState()
	s.StartNumber, s.EndNumber = 5, 6
	s.GeneratedOrder = []int{6, 5}
	s.TicketStatus[6] = TicketReturned

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Nil(t, raw["currentlyServing"])
	assert.Equal(t, "random", raw["mode"])
	assert.Equal(t, map[string]any{"6": "returned"}, raw["ticketStatus"])

	var back RaffleState
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s, &back)
}

func TestNormalizeFillsMissingFields(t *testing.T) {
	var s RaffleState
	require.NoError(t, json.Unmarshal([]byte(`{"startNumber":1,"endNumber":2}`), &s))

	s.Normalize()
	assert.Equal(t, ModeRandom, s.Mode)
	assert.NotNil(t, s.GeneratedOrder)
	assert.NotNil(t, s.TicketStatus)
	assert.NotNil(t, s.CalledAt)
	assert.NotNil(t, s.OperatingHours)
}

func TestIndexHelpers(t *testing.T) {
	s := DefaultState()
	s.StartNumber, s.EndNumber = 1, 4
	s.GeneratedOrder = []int{3, 1, 4}

	assert.Equal(t, 1, s.IndexOf(1))
	assert.Equal(t, -1, s.IndexOf(2))
	assert.Equal(t, -1, s.ServingIndex())
	s.CurrentlyServing = IntPtr(4)
	assert.Equal(t, 2, s.ServingIndex())
	assert.True(t, s.InRange(2))
	assert.False(t, s.InRange(5))
}

func TestSnapshotID(t *testing.T) {
	id := NewSnapshotID(1712345678901)

	ts, ok := ParseSnapshotID(id)
	require.True(t, ok)
	assert.Equal(t, int64(1712345678901), ts)

	for _, bad := range []string{"state.json", "../state-1-abcdef12.json", "state-1-ABCDEF12.json", "state-x-abcdef12.json"} {
		_, ok := ParseSnapshotID(bad)
		assert.False(t, ok, bad)
	}
}
