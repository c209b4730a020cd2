// Package alias implements the Alias Engine: a weighted cue-to-cue map
// with strict, non-chaining expansion, plus a background proposer that
// scans the Cue Index for near-duplicate cues and suggests aliases.
package alias

import (
	"sync"

	"github.com/cuemap-dev/cuemap/pkg/core"
	"github.com/cuemap-dev/cuemap/pkg/recall"
)

// DefaultJaccard is the default minimum memory-ID-set
// overlap between two cues for the proposer to suggest an alias.
const DefaultJaccard = 0.9

// ProposedWeight is the fixed weight assigned to a proposed alias.
const ProposedWeight = 0.95

// Edge is one weighted from-cue -> to-cue alias.
type Edge struct {
	To     string
	Weight float64
}

// Table is the alias table: from_cue -> list of (to_cue, weight).
type Table struct {
	mu    sync.RWMutex
	edges map[string][]Edge
}

// New builds an empty alias table.
func New() *Table {
	return &Table{edges: make(map[string][]Edge)}
}

// Add installs (or updates) a single from->to alias at the given weight.
// Weight must be in (0,1]; callers (the API layer) are responsible for
// rejecting out-of-range weights as InvalidInput before reaching here.
func (t *Table) Add(from, to string, weight float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing := t.edges[from]
	for i, e := range existing {
		if e.To == to {
			existing[i].Weight = weight
			return
		}
	}
	t.edges[from] = append(existing, Edge{To: to, Weight: weight})
}

// Merge atomically installs many from->to edges in one pass, backing
// the aliases.merge bulk endpoint.
func (t *Table) Merge(edges map[string][]Edge) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for from, list := range edges {
		t.edges[from] = append(t.edges[from], list...)
	}
}

// Outgoing returns the edges currently installed for from, used by the
// lexicon.inspect wire endpoint.
func (t *Table) Outgoing(from string) []Edge {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Edge, len(t.edges[from]))
	copy(out, t.edges[from])
	return out
}

// Incoming returns every (from, weight) edge that targets to, used by the
// same inspect endpoint.
func (t *Table) Incoming(to string) []Edge {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Edge
	for from, list := range t.edges {
		for _, e := range list {
			if e.To == to {
				out = append(out, Edge{To: from, Weight: e.Weight})
			}
		}
	}
	return out
}

// Expand implements expand(query_cues): each input cue keeps weight
// 1.0, plus every (to, w) edge registered for it, with no chaining — an
// edge's target is never itself expanded.
func Expand(t *Table, query []string) []recall.WeightedCue {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]recall.WeightedCue, 0, len(query))
	for _, cue := range query {
		out = append(out, recall.WeightedCue{Cue: cue, Weight: 1.0})
		for _, e := range t.edges[cue] {
			out = append(out, recall.WeightedCue{Cue: e.To, Weight: e.Weight})
		}
	}
	return out
}

// Snapshot returns a copy of the full from -> edges table, used by the
// Snapshot Codec to persist the alias table alongside its tenant.
func (t *Table) Snapshot() map[string][]Edge {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string][]Edge, len(t.edges))
	for from, edges := range t.edges {
		cp := make([]Edge, len(edges))
		copy(cp, edges)
		out[from] = cp
	}
	return out
}

// Proposal is a candidate alias the proposer has surfaced but not
// installed; the caller decides whether to Add it.
type Proposal struct {
	From    string
	To      string
	Weight  float64
	Jaccard float64
}

// Propose scans every pair of cues in cueSets (cue -> set of memory IDs
// currently carrying it, typically snapshotted from the Cue Index) and
// returns one Proposal per pair whose memory-ID-set Jaccard similarity is
// >= minJaccard. The smaller-support cue (fewer memories) is proposed as
// an alias of the larger one, run as a periodic background scan over a
// snapshot of the Cue Index.
func Propose(cueSets map[string]map[core.MemoryID]struct{}, minJaccard float64) []Proposal {
	cues := make([]string, 0, len(cueSets))
	for c := range cueSets {
		cues = append(cues, c)
	}

	var proposals []Proposal
	for i := 0; i < len(cues); i++ {
		for j := i + 1; j < len(cues); j++ {
			a, b := cues[i], cues[j]
			jac := jaccard(cueSets[a], cueSets[b])
			if jac < minJaccard {
				continue
			}
			smaller, larger := a, b
			if len(cueSets[a]) > len(cueSets[b]) {
				smaller, larger = b, a
			}
			proposals = append(proposals, Proposal{
				From:    smaller,
				To:      larger,
				Weight:  ProposedWeight,
				Jaccard: jac,
			})
		}
	}
	return proposals
}

func jaccard(a, b map[core.MemoryID]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for id := range a {
		if _, ok := b[id]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
