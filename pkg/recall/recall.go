// Package recall implements the Recall Engine — the heart of CueMap: pattern
// completion, selectivity ordering, selective set intersection, continuous
// gradient scoring, ranking, and match integrity.
//
// The engine is deliberately stateless: every function here takes the
// indices it needs (Cue Index, Memory Store, Co-occurrence Matrix) as
// arguments rather than owning them, so the same code serves both the main
// per-tenant engine and the Lexicon Engine, which is structurally
// identical to the main engine, parameterized differently.
package recall

import (
	"math"
	"sort"

	"github.com/cuemap-dev/cuemap/pkg/cooccur"
	"github.com/cuemap-dev/cuemap/pkg/core"
	"github.com/cuemap-dev/cuemap/pkg/cueindex"
	"github.com/cuemap-dev/cuemap/pkg/memstore"
)

// Tuning holds the constants that govern scoring. pkg/config is the only
// place that should ever construct a non-default Tuning.
type Tuning struct {
	HalfLifePositions float64
	Alpha             float64
	Beta              float64
	FastDepth         int
	CooccurTopK       int
	CooccurMinCount   uint32
}

// DefaultTuning returns the built-in defaults.
func DefaultTuning() Tuning {
	return Tuning{
		HalfLifePositions: 32,
		Alpha:             0.5,
		Beta:              0.3,
		FastDepth:         256,
		CooccurTopK:       cooccur.TopK,
		CooccurMinCount:   cooccur.MinCount,
	}
}

// WeightedCue is one entry of a query's cue bag; weights default to 1.0 and
// alias expansion or pattern completion can introduce sub-1.0 weights.
type WeightedCue struct {
	Cue    string
	Weight float64
}

// Options are the per-request tuning flags a caller may set.
type Options struct {
	Limit                       int
	DisablePatternCompletion    bool
	DisableSalienceBias         bool
	DisableSystemsConsolidation bool
	FastMode                    bool
	Explain                     bool
}

// Explain carries the per-result scoring components returned when
// Options.Explain is set.
type Explain struct {
	IntersectionWeighted float64
	IntersectionCount    int
	MinPosition          int
	Recency              float64
	Frequency            float64
	Salience             float64
	ExpandedQueryCues    []string
}

// Result is one ranked recall hit.
type Result struct {
	ID                 core.MemoryID
	Memory             *core.Memory
	Score              float64
	IntersectionCount  int
	ReinforcementScore float64
	SalienceScore      float64
	RecencyScore       float64
	MatchIntegrity     float64
	Explain            *Explain
}

// Indices bundles the three sharded structures a Run needs. It is built
// fresh (or reused) by the caller per tenant/lexicon instance.
type Indices struct {
	Cues    *cueindex.Index
	Memos   *memstore.Store
	Cooccur *cooccur.Matrix
}

// Run executes the full recall algorithm and returns ranked results.
//
// Empty query, all-unknown cues, or limit<=0 all yield an empty
// (non-error) result slice. Run never
// mutates any index; reinforcement is the caller's job, enqueued on the
// job pipeline, never applied inline here.
func Run(idx Indices, query []WeightedCue, opts Options, tuning Tuning) []Result {
	if opts.Limit <= 0 || len(query) == 0 {
		return nil
	}

	bag := expandWithPatternCompletion(idx.Cooccur, query, opts, tuning)
	if len(bag) == 0 {
		return nil
	}

	seed, rest := selectivityOrder(idx.Cues, bag)
	if seed.Cue == "" {
		return nil
	}

	candidates := intersect(idx.Cues, seed, rest, opts, tuning)
	if len(candidates) == 0 {
		return nil
	}

	results := score(idx.Memos, candidates, bag, opts, tuning)
	if opts.DisableSystemsConsolidation {
		results = filterConsolidated(results)
	}
	rank(results)
	computeIntegrity(results, bag)

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	if opts.Explain {
		cues := make([]string, len(bag))
		for i, wc := range bag {
			cues[i] = wc.Cue
		}
		for i := range results {
			if results[i].Explain != nil {
				results[i].Explain.ExpandedQueryCues = cues
			}
		}
	} else {
		for i := range results {
			results[i].Explain = nil
		}
	}

	return results
}

// expandWithPatternCompletion expands the query bag via co-occurrence-based
// pattern completion. Weights of repeated cues are summed and clamped to 1.0.
func expandWithPatternCompletion(matrix *cooccur.Matrix, query []WeightedCue, opts Options, tuning Tuning) []WeightedCue {
	weights := make(map[string]float64, len(query)*2)
	order := make([]string, 0, len(query)*2)
	add := func(cue string, w float64) {
		if _, ok := weights[cue]; !ok {
			order = append(order, cue)
		}
		sum := weights[cue] + w
		if sum > 1.0 {
			sum = 1.0
		}
		weights[cue] = sum
	}

	for _, wc := range query {
		add(wc.Cue, wc.Weight)
	}

	if !opts.DisablePatternCompletion && matrix != nil {
		exclude := make(map[string]struct{}, len(query))
		for _, wc := range query {
			exclude[wc.Cue] = struct{}{}
		}
		for _, wc := range query {
			for _, comp := range matrix.TopCompletions(wc.Cue, exclude, tuning.CooccurTopK, tuning.CooccurMinCount) {
				strength := float64(comp.Count)
				add(comp.Cue, wc.Weight*0.5*normalizeStrength(strength))
			}
		}
	}

	out := make([]WeightedCue, len(order))
	for i, cue := range order {
		out[i] = WeightedCue{Cue: cue, Weight: weights[cue]}
	}
	return out
}

// normalizeStrength maps a raw co-occurrence count onto (0,1] so pattern
// completion weights stay bounded regardless of how large counts grow.
// Uses the saturating curve count/(count+4), which approaches but never
// reaches 1.
func normalizeStrength(count float64) float64 {
	s := count / (count + 4.0)
	if s > 1.0 {
		return 1.0
	}
	return s
}

type seedCue struct {
	Cue    string
	Weight float64
}

// selectivityOrder sorts ascending by CueIndex.len so the rarest cue
// becomes the seed. Unknown cues (len==0) are never chosen as the seed;
// they stay in rest, where they match no candidate and so add nothing to
// its weight.
func selectivityOrder(idx *cueindex.Index, bag []WeightedCue) (seedCue, []WeightedCue) {
	type ranked struct {
		cue    WeightedCue
		length int
	}
	ranked_ := make([]ranked, 0, len(bag))
	for _, wc := range bag {
		ranked_ = append(ranked_, ranked{cue: wc, length: idx.Len(wc.Cue)})
	}
	sort.SliceStable(ranked_, func(i, j int) bool {
		return ranked_[i].length < ranked_[j].length
	})

	for i, r := range ranked_ {
		if r.length == 0 {
			continue
		}
		rest := make([]WeightedCue, 0, len(ranked_)-1)
		for j, other := range ranked_ {
			if j == i {
				continue
			}
			rest = append(rest, other.cue)
		}
		return seedCue{Cue: r.cue.Cue, Weight: r.cue.Weight}, rest
	}
	return seedCue{}, nil
}

type candidate struct {
	id                   core.MemoryID
	intersectionWeighted float64
	intersectionCount    int
	minPosition          int
}

// intersect walks the seed cue's postings and keeps the ones also present
// in enough of the remaining cues.
func intersect(idx *cueindex.Index, seed seedCue, rest []WeightedCue, opts Options, tuning Tuning) []candidate {
	multiCue := len(rest) > 0
	var out []candidate

	scanned := 0
	idx.IterFrom(seed.Cue, 0, idx.Len(seed.Cue), func(id core.MemoryID, position int) bool {
		if opts.FastMode && scanned >= tuning.FastDepth {
			return false
		}
		scanned++

		weighted := seed.Weight
		count := 1
		minPos := position

		for _, rc := range rest {
			pos, ok := idx.PositionOf(rc.Cue, id)
			if !ok {
				continue
			}
			weighted += rc.Weight
			count++
			if pos < minPos {
				minPos = pos
			}
		}

		if multiCue && count == 1 {
			return true
		}

		out = append(out, candidate{
			id:                  id,
			intersectionWeighted: weighted,
			intersectionCount:   count,
			minPosition:         minPos,
		})
		return true
	})

	return out
}

// score computes the continuous gradient score for each candidate.
func score(store *memstore.Store, candidates []candidate, bag []WeightedCue, opts Options, tuning Tuning) []Result {
	out := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		m, ok := store.Get(c.id)
		if !ok {
			continue
		}

		recency := math.Exp(-math.Ln2 * float64(c.minPosition) / tuning.HalfLifePositions)
		frequency := math.Log10(1 + float64(m.ReinforcementCount))
		salience := 1.0
		if !opts.DisableSalienceBias {
			salience = m.SalienceScore
			if salience <= 0 {
				salience = 1.0
			}
		}

		total := c.intersectionWeighted * (1 + tuning.Alpha*recency + tuning.Beta*frequency) * salience
		if math.IsNaN(total) || math.IsInf(total, 0) {
			total = 0
		}

		out = append(out, Result{
			ID:                 c.id,
			Memory:             m,
			Score:              total,
			IntersectionCount:  c.intersectionCount,
			ReinforcementScore: frequency,
			SalienceScore:      salience,
			RecencyScore:       recency,
			Explain: &Explain{
				IntersectionWeighted: c.intersectionWeighted,
				IntersectionCount:    c.intersectionCount,
				MinPosition:          c.minPosition,
				Recency:              recency,
				Frequency:            frequency,
				Salience:             salience,
			},
		})
	}
	return out
}

func filterConsolidated(in []Result) []Result {
	out := in[:0]
	for _, r := range in {
		if r.Memory.IsConsolidatedSummary {
			continue
		}
		out = append(out, r)
	}
	return out
}

// rank sorts descending by score, ties broken by descending created_at,
// then ascending ID for a total deterministic order.
func rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Memory.CreatedAt != results[j].Memory.CreatedAt {
			return results[i].Memory.CreatedAt > results[j].Memory.CreatedAt
		}
		return results[i].ID < results[j].ID
	})
}

// computeIntegrity fills in MatchIntegrity for each result.
func computeIntegrity(results []Result, bag []WeightedCue) {
	if len(results) == 0 {
		return
	}

	queryCueCount := len(bag)
	maxFrequency := 0.0
	for _, r := range results {
		if r.ReinforcementScore > maxFrequency {
			maxFrequency = r.ReinforcementScore
		}
	}

	expanded := make(map[string]struct{}, len(bag))
	for _, wc := range bag {
		expanded[wc.Cue] = struct{}{}
	}

	for i := range results {
		r := &results[i]
		intersectionRatio := 0.0
		if queryCueCount > 0 {
			intersectionRatio = float64(r.IntersectionCount) / float64(queryCueCount)
		}
		frequencyRatio := 0.0
		if maxFrequency > 0 {
			frequencyRatio = r.ReinforcementScore / maxFrequency
		}
		hits := 0
		for _, c := range r.Memory.Cues {
			if _, ok := expanded[c]; ok {
				hits++
			}
		}
		contextAgreement := 0.0
		if len(r.Memory.Cues) > 0 {
			contextAgreement = float64(hits) / float64(len(r.Memory.Cues))
		}
		r.MatchIntegrity = 0.4*intersectionRatio + 0.3*frequencyRatio + 0.3*contextAgreement
	}
}
