package lexicon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainThenResolve(t *testing.T) {
	l := New(4)
	l.Train("payment", "the payment timed out", 100)
	l.Train("timeout", "the payment timed out", 100)

	results := l.Resolve("payment", 8)
	require.NotEmpty(t, results)
	// Both rows carry tok:payment from the same content; the timeout row was
	// trained last, sits at position 0 of that cue, and wins on recency.
	assert.Equal(t, "timeout", results[0].CanonicalCue)
}

func TestResolveEmptyTextReturnsEmpty(t *testing.T) {
	l := New(4)
	l.Train("payment", "payment issue", 1)
	assert.Empty(t, l.Resolve("", 8))
}

func TestTrainIsIdempotent(t *testing.T) {
	l := New(4)
	l.Train("payment", "payment issue today", 1)
	before, _ := l.Inspect("payment")
	l.Train("payment", "payment issue today", 1)
	after, _ := l.Inspect("payment")
	assert.ElementsMatch(t, before, after)
}

func TestWireAttachesToken(t *testing.T) {
	l := New(4)
	l.Wire("tok:pmt", "payment")
	outgoing, _ := l.Inspect("payment")
	assert.Contains(t, outgoing, "tok:pmt")
}

func TestInspectUnknownCanonicalReturnsNil(t *testing.T) {
	l := New(4)
	outgoing, incoming := l.Inspect("nonexistent")
	assert.Nil(t, outgoing)
	assert.Nil(t, incoming)
}
