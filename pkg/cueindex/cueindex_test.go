package cueindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemap-dev/cuemap/pkg/core"
)

func TestAddAndPositionOf(t *testing.T) {
	idx := New(4)
	a, b, c := core.MemoryID("a"), core.MemoryID("b"), core.MemoryID("c")

	idx.Add("food", a)
	idx.Add("food", b)
	idx.Add("food", c)

	require.Equal(t, 3, idx.Len("food"))

	pos, ok := idx.PositionOf("food", c)
	require.True(t, ok)
	assert.Equal(t, 0, pos)

	pos, ok = idx.PositionOf("food", a)
	require.True(t, ok)
	assert.Equal(t, 2, pos)
}

func TestMoveToFrontIsExactAtPositionZero(t *testing.T) {
	idx := New(4)
	a, b, c := core.MemoryID("a"), core.MemoryID("b"), core.MemoryID("c")
	idx.Add("x", a)
	idx.Add("x", b)
	idx.Add("x", c)

	idx.MoveToFront("x", a)
	pos, ok := idx.PositionOf("x", a)
	require.True(t, ok)
	assert.Equal(t, 0, pos)
}

func TestRemoveDropsEmptyCue(t *testing.T) {
	idx := New(4)
	a := core.MemoryID("a")
	idx.Add("solo", a)
	require.Equal(t, 1, idx.Len("solo"))

	idx.Remove("solo", a)
	assert.Equal(t, 0, idx.Len("solo"))
	assert.False(t, idx.Contains("solo", a))
}

func TestAddIsIdempotentNoMove(t *testing.T) {
	idx := New(4)
	a, b := core.MemoryID("a"), core.MemoryID("b")
	idx.Add("x", a)
	idx.Add("x", b)
	// Re-adding a should not move it to front.
	idx.Add("x", a)

	pos, ok := idx.PositionOf("x", b)
	require.True(t, ok)
	assert.Equal(t, 0, pos)
}

func TestIterFromVisitsInOrder(t *testing.T) {
	idx := New(4)
	ids := []core.MemoryID{"a", "b", "c", "d"}
	for _, id := range ids {
		idx.Add("x", id)
	}

	var seen []core.MemoryID
	idx.IterFrom("x", 0, 2, func(id core.MemoryID, position int) bool {
		seen = append(seen, id)
		return true
	})
	// Most recently added ("d") is at the front.
	assert.Equal(t, []core.MemoryID{"d", "c"}, seen)
}

func TestCueCountReflectsDistinctCues(t *testing.T) {
	idx := New(4)
	idx.Add("x", core.MemoryID("a"))
	idx.Add("y", core.MemoryID("a"))
	idx.Add("x", core.MemoryID("b"))
	assert.Equal(t, 2, idx.CueCount())
}
