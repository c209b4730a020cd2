package memstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemap-dev/cuemap/pkg/core"
)

func TestInsertGetRemove(t *testing.T) {
	s := New(4)
	m := core.NewMemory("x", []string{"a"}, 1)
	s.Insert(m)

	got, ok := s.Get(m.ID)
	require.True(t, ok)
	assert.Equal(t, m, got)

	s.Remove(m.ID)
	_, ok = s.Get(m.ID)
	assert.False(t, ok)
}

func TestJoinEpisodeAssignsOnceAndReturnsExisting(t *testing.T) {
	s := New(4)
	m := core.NewMemory("x", []string{"a"}, 1)
	s.Insert(m)

	got, ok := s.JoinEpisode(m.ID, "ep-1")
	require.True(t, ok)
	assert.Equal(t, "ep-1", got)

	// A second call with a different candidate ID keeps the first.
	got, ok = s.JoinEpisode(m.ID, "ep-2")
	require.True(t, ok)
	assert.Equal(t, "ep-1", got)
}

func TestJoinEpisodeUnknownIDReturnsFalse(t *testing.T) {
	s := New(4)
	_, ok := s.JoinEpisode("nonexistent", "ep-1")
	assert.False(t, ok)
}

func TestAddCueAppendsAndCallsIndex(t *testing.T) {
	s := New(4)
	m := core.NewMemory("x", []string{"a"}, 1)
	s.Insert(m)

	var addedCue string
	var addedID core.MemoryID
	ok := s.AddCue(m.ID, "b", func(cue string, id core.MemoryID) {
		addedCue, addedID = cue, id
	})
	require.True(t, ok)
	assert.Equal(t, "b", addedCue)
	assert.Equal(t, m.ID, addedID)
	assert.True(t, m.HasCue("b"))
}

func TestAddCueIsIdempotent(t *testing.T) {
	s := New(4)
	m := core.NewMemory("x", []string{"a"}, 1)
	s.Insert(m)

	calls := 0
	add := func(string, core.MemoryID) { calls++ }
	s.AddCue(m.ID, "a", add)
	assert.Equal(t, 0, calls, "AddCue must not re-register a cue the memory already has")
	assert.Len(t, m.Cues, 1)
}
