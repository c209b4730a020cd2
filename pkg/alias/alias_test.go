package alias

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemap-dev/cuemap/pkg/core"
)

func TestExpandAddsWeightedEdgeNoChaining(t *testing.T) {
	table := New()
	table.Add("pay", "payment", 0.85)
	table.Add("payment", "transaction", 0.5)

	expanded := Expand(table, []string{"pay"})
	require.Len(t, expanded, 2)
	assert.Equal(t, "pay", expanded[0].Cue)
	assert.Equal(t, 1.0, expanded[0].Weight)
	assert.Equal(t, "payment", expanded[1].Cue)
	assert.Equal(t, 0.85, expanded[1].Weight)

	// "transaction" must NOT appear: expansion does not chain through "payment".
	for _, wc := range expanded {
		assert.NotEqual(t, "transaction", wc.Cue)
	}
}

func TestAddUpdatesExistingWeight(t *testing.T) {
	table := New()
	table.Add("pay", "payment", 0.5)
	table.Add("pay", "payment", 0.9)
	edges := table.Outgoing("pay")
	require.Len(t, edges, 1)
	assert.Equal(t, 0.9, edges[0].Weight)
}

func TestIncomingFindsReverseEdges(t *testing.T) {
	table := New()
	table.Add("pay", "payment", 0.85)
	table.Add("paid", "payment", 0.7)
	incoming := table.Incoming("payment")
	require.Len(t, incoming, 2)
}

func TestProposeSuggestsSmallerSupportAsAlias(t *testing.T) {
	sets := map[string]map[core.MemoryID]struct{}{
		"pay": {
			core.MemoryID("a"): {}, core.MemoryID("b"): {}, core.MemoryID("c"): {},
		},
		"payment": {
			core.MemoryID("a"): {}, core.MemoryID("b"): {}, core.MemoryID("c"): {}, core.MemoryID("d"): {},
		},
	}
	// Jaccard(pay, payment) = 3/4 = 0.75, below DefaultJaccard, so the
	// threshold is set to exactly that ratio.
	proposals := Propose(sets, 0.75)
	require.Len(t, proposals, 1)
	assert.Equal(t, "pay", proposals[0].From)
	assert.Equal(t, "payment", proposals[0].To)
	assert.Equal(t, ProposedWeight, proposals[0].Weight)
}

func TestProposeSkipsBelowThreshold(t *testing.T) {
	sets := map[string]map[core.MemoryID]struct{}{
		"a": {core.MemoryID("1"): {}},
		"b": {core.MemoryID("2"): {}},
	}
	proposals := Propose(sets, DefaultJaccard)
	assert.Empty(t, proposals)
}
