// Package consolidate implements the Consolidator: a periodic pass
// that merges clusters of highly-overlapping memories into additive
// "gist" summaries. Originals are never touched or removed; a summary is
// just another memory with IsConsolidatedSummary=true.
package consolidate

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/cuemap-dev/cuemap/pkg/core"
	"github.com/cuemap-dev/cuemap/pkg/cueindex"
	"github.com/cuemap-dev/cuemap/pkg/memstore"
)

// DefaultJaccard is the default minimum Jaccard overlap for clustering.
const DefaultJaccard = 0.8

// DefaultWindowSeconds bounds how far apart, in created_at seconds, two
// memories may be and still cluster together. Chosen to match the
// episode-window default scaled up by an order of magnitude, since
// consolidation clusters are coarser-grained than episodes.
const DefaultWindowSeconds = 3600

// Consolidator periodically scans a Memory Store + Cue Index for
// clusters of overlapping memories and emits gist summaries.
type Consolidator struct {
	Memos         *memstore.Store
	Cues          *cueindex.Index
	MinJaccard    float64
	WindowSeconds int64
}

// New builds a Consolidator with the DefaultJaccard/DefaultWindowSeconds defaults.
func New(memos *memstore.Store, cues *cueindex.Index) *Consolidator {
	return &Consolidator{
		Memos:         memos,
		Cues:          cues,
		MinJaccard:    DefaultJaccard,
		WindowSeconds: DefaultWindowSeconds,
	}
}

// Report summarizes one Run invocation.
type Report struct {
	ClustersFound  int
	SummariesAdded int
}

// Run performs one consolidation pass at time now (seconds since epoch).
// It is idempotent: a cluster whose exact cue union already has a live
// (is_consolidated_summary=true) summary is skipped: a consolidate pass
// never decreases total_memories, and clusters that already have a live
// summary are left alone.
func (c *Consolidator) Run(now int64) Report {
	originals, existingSummaryUnions := c.partition()

	clusters := c.cluster(originals)
	report := Report{ClustersFound: len(clusters)}

	for _, cluster := range clusters {
		if len(cluster) < 2 {
			continue
		}
		union := cueUnion(cluster)
		key := unionKey(union)
		if _, already := existingSummaryUnions[key]; already {
			continue
		}

		summary := buildSummary(cluster, union, now)
		c.Memos.Insert(summary)
		for _, cue := range summary.Cues {
			c.Cues.Add(cue, summary.ID)
		}
		existingSummaryUnions[key] = struct{}{}
		report.SummariesAdded++
	}

	return report
}

// partition splits the store into non-summary originals and the set of
// cue-union keys already covered by a live summary.
func (c *Consolidator) partition() ([]*core.Memory, map[string]struct{}) {
	var originals []*core.Memory
	summaryUnions := make(map[string]struct{})

	c.Memos.Range(func(m *core.Memory) bool {
		if m.IsConsolidatedSummary {
			summaryUnions[unionKey(append([]string(nil), m.Cues...))] = struct{}{}
		} else {
			originals = append(originals, m)
		}
		return true
	})
	return originals, summaryUnions
}

// cluster greedily groups memories whose pairwise cue-set Jaccard is >=
// MinJaccard and whose created_at falls within WindowSeconds of the
// cluster's running mean timestamp (using gonum/stat.Mean so the window
// check is against the cluster's center, not just its first member).
func (c *Consolidator) cluster(memories []*core.Memory) [][]*core.Memory {
	var clusters [][]*core.Memory
	var clusterTimes [][]float64

	for _, m := range memories {
		best := -1
		for ci, members := range clusters {
			overlapsAll := true
			for _, other := range members {
				if !jaccardAboveThreshold(m.Cues, other.Cues, c.MinJaccard) {
					overlapsAll = false
					break
				}
			}
			if !overlapsAll {
				continue
			}
			mean := stat.Mean(clusterTimes[ci], nil)
			if absInt64(m.CreatedAt-int64(mean)) > c.WindowSeconds {
				continue
			}
			best = ci
			break
		}
		if best == -1 {
			clusters = append(clusters, []*core.Memory{m})
			clusterTimes = append(clusterTimes, []float64{float64(m.CreatedAt)})
			continue
		}
		clusters[best] = append(clusters[best], m)
		clusterTimes[best] = append(clusterTimes[best], float64(m.CreatedAt))
	}

	return clusters
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func jaccardAboveThreshold(a, b []string, threshold float64) bool {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return false
	}
	inter := 0
	for c := range setA {
		if _, ok := setB[c]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return false
	}
	return float64(inter)/float64(union) >= threshold
}

func toSet(cues []string) map[string]struct{} {
	s := make(map[string]struct{}, len(cues))
	for _, c := range cues {
		s[c] = struct{}{}
	}
	return s
}

func cueUnion(cluster []*core.Memory) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range cluster {
		for _, c := range m.Cues {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

func unionKey(cues []string) string {
	sorted := append([]string(nil), cues...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x1f")
}

// buildSummary constructs the additive gist memory for a cluster: content
// is every source memory's content concatenated. Summarization via an
// external LLM client is left to an optional collaborator outside the
// core, so this implementation always takes the concatenation branch.
func buildSummary(cluster []*core.Memory, union []string, now int64) *core.Memory {
	parts := make([]string, len(cluster))
	for i, m := range cluster {
		parts[i] = m.Content
	}
	summary := core.NewMemory(strings.Join(parts, " / "), union, now)
	summary.IsConsolidatedSummary = true
	summary.RecomputeSalience()
	return summary
}
