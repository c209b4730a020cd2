package cooccur

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCooccurrenceSymmetric(t *testing.T) {
	m := New(4)
	for i := 0; i < MinCount; i++ {
		m.RecordCooccurrence([]string{"tok:coffee", "tok:morning"})
	}
	assert.Equal(t, uint32(MinCount), m.Count("tok:coffee", "tok:morning"))
	assert.Equal(t, uint32(MinCount), m.Count("tok:morning", "tok:coffee"))
}

func TestTopCompletionsFiltersBelowMinCount(t *testing.T) {
	m := New(4)
	m.RecordCooccurrence([]string{"tok:a", "tok:b"})
	completions := m.TopCompletions("tok:a", nil, 0, 0)
	assert.Empty(t, completions)
}

func TestTopCompletionsOrderedDescending(t *testing.T) {
	m := New(4)
	for i := 0; i < 5; i++ {
		m.RecordCooccurrence([]string{"tok:seed", "tok:strong"})
	}
	for i := 0; i < MinCount; i++ {
		m.RecordCooccurrence([]string{"tok:seed", "tok:weak"})
	}
	completions := m.TopCompletions("tok:seed", nil, 0, 0)
	require.Len(t, completions, 2)
	assert.Equal(t, "tok:strong", completions[0].Cue)
	assert.Equal(t, "tok:weak", completions[1].Cue)
}

func TestTopCompletionsExcludes(t *testing.T) {
	m := New(4)
	for i := 0; i < 5; i++ {
		m.RecordCooccurrence([]string{"tok:seed", "tok:strong"})
	}
	completions := m.TopCompletions("tok:seed", map[string]struct{}{"tok:strong": {}}, 0, 0)
	assert.Empty(t, completions)
}

func TestTopCompletionsHonorsExplicitTuning(t *testing.T) {
	m := New(4)
	for i := 0; i < 2; i++ {
		m.RecordCooccurrence([]string{"tok:seed", "tok:rare"})
	}
	for i := 0; i < 5; i++ {
		m.RecordCooccurrence([]string{"tok:seed", "tok:common1"})
		m.RecordCooccurrence([]string{"tok:seed", "tok:common2"})
	}

	// A minCount of 2 admits tok:rare, which the package default (3) excludes.
	withLowMinCount := m.TopCompletions("tok:seed", nil, 0, 2)
	found := false
	for _, c := range withLowMinCount {
		if c.Cue == "tok:rare" {
			found = true
		}
	}
	assert.True(t, found, "explicit minCount=2 should admit a count-2 pair")

	// A topK of 1 trims the result to the single strongest completion.
	withLowTopK := m.TopCompletions("tok:seed", nil, 1, 0)
	require.Len(t, withLowTopK, 1)
}

func TestRemoveDropsAllReferences(t *testing.T) {
	m := New(4)
	for i := 0; i < 5; i++ {
		m.RecordCooccurrence([]string{"tok:a", "tok:b"})
	}
	m.Remove("tok:b")
	assert.Equal(t, uint32(0), m.Count("tok:a", "tok:b"))
	assert.Equal(t, uint32(0), m.Count("tok:b", "tok:a"))
}
