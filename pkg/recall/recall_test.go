package recall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemap-dev/cuemap/pkg/cooccur"
	"github.com/cuemap-dev/cuemap/pkg/core"
	"github.com/cuemap-dev/cuemap/pkg/cueindex"
	"github.com/cuemap-dev/cuemap/pkg/memstore"
)

func newTestIndices() (Indices, func(content string, cues []string, createdAt int64) *core.Memory) {
	cues := cueindex.New(4)
	memos := memstore.New(4)
	cooc := cooccur.New(4)

	insert := func(content string, cueList []string, createdAt int64) *core.Memory {
		m := core.NewMemory(content, cueList, createdAt)
		memos.Insert(m)
		for _, c := range m.Cues {
			cues.Add(c, m.ID)
		}
		cooc.RecordCooccurrence(m.Cues)
		m.RecomputeSalience()
		return m
	}

	return Indices{Cues: cues, Memos: memos, Cooccur: cooc}, insert
}

func TestRunScenario1SingleCueExactMatch(t *testing.T) {
	idx, insert := newTestIndices()
	m1 := insert("italian food review", []string{"food", "italian"}, 100)
	insert("sky is blue", []string{"color", "blue"}, 101)
	insert("works as an engineer", []string{"work", "engineer"}, 102)

	results := Run(idx, []WeightedCue{{Cue: "food", Weight: 1.0}}, Options{Limit: 10}, DefaultTuning())
	require.Len(t, results, 1)
	assert.Equal(t, m1.ID, results[0].ID)
	assert.Equal(t, 1, results[0].IntersectionCount)
}

func TestRunEmptyQueryReturnsEmpty(t *testing.T) {
	idx, _ := newTestIndices()
	results := Run(idx, nil, Options{Limit: 10}, DefaultTuning())
	assert.Empty(t, results)
}

func TestRunZeroLimitReturnsEmpty(t *testing.T) {
	idx, insert := newTestIndices()
	insert("x", []string{"food"}, 1)
	results := Run(idx, []WeightedCue{{Cue: "food", Weight: 1}}, Options{Limit: 0}, DefaultTuning())
	assert.Empty(t, results)
}

func TestRunUnknownCueReturnsEmpty(t *testing.T) {
	idx, insert := newTestIndices()
	insert("x", []string{"food"}, 1)
	results := Run(idx, []WeightedCue{{Cue: "nonexistent", Weight: 1}}, Options{Limit: 10}, DefaultTuning())
	assert.Empty(t, results)
}

func TestRunMultiCueRanksBothHitsAbove(t *testing.T) {
	idx, insert := newTestIndices()
	m1 := insert("payment timed out", []string{"payment", "timeout"}, 100)
	insert("payment was slow", []string{"payment", "slow"}, 101)
	insert("database timeout", []string{"database", "timeout"}, 102)

	results := Run(idx, []WeightedCue{{Cue: "payment", Weight: 1}, {Cue: "timeout", Weight: 1}}, Options{Limit: 10}, DefaultTuning())
	require.NotEmpty(t, results)
	assert.Equal(t, m1.ID, results[0].ID)
}

func TestRunReinforcementChangesRanking(t *testing.T) {
	idx, insert := newTestIndices()
	m1 := insert("payment timed out", []string{"payment", "timeout"}, 100)
	m2 := insert("payment was slow", []string{"payment", "slow"}, 101)
	insert("database timeout", []string{"database", "timeout"}, 102)

	for i := 0; i < 15; i++ {
		idx.Memos.Reinforce(m2.ID, nil, memstore.ReinforceFunc{
			MoveToFront: idx.Cues.MoveToFront,
			Add:         idx.Cues.Add,
		})
	}

	results := Run(idx, []WeightedCue{{Cue: "payment", Weight: 1}, {Cue: "timeout", Weight: 1}}, Options{Limit: 10}, DefaultTuning())
	require.GreaterOrEqual(t, len(results), 2)

	var rank1, rank2 int
	for i, r := range results {
		if r.ID == m1.ID {
			rank1 = i
		}
		if r.ID == m2.ID {
			rank2 = i
		}
	}
	assert.Less(t, rank2, rank1)
}

func TestRunFastModeLimitsScan(t *testing.T) {
	idx, insert := newTestIndices()
	for i := 0; i < 20; i++ {
		insert("shared memory", []string{"common"}, int64(i))
	}
	tuning := DefaultTuning()
	tuning.FastDepth = 5
	results := Run(idx, []WeightedCue{{Cue: "common", Weight: 1}}, Options{Limit: 20, FastMode: true}, tuning)
	assert.LessOrEqual(t, len(results), 5)
}

func TestRunExplainPopulatesExpandedCues(t *testing.T) {
	idx, insert := newTestIndices()
	insert("x", []string{"food"}, 1)
	results := Run(idx, []WeightedCue{{Cue: "food", Weight: 1}}, Options{Limit: 10, Explain: true}, DefaultTuning())
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Explain)
	assert.Contains(t, results[0].Explain.ExpandedQueryCues, "food")
}

func TestRunWithoutExplainOmitsExplain(t *testing.T) {
	idx, insert := newTestIndices()
	insert("x", []string{"food"}, 1)
	results := Run(idx, []WeightedCue{{Cue: "food", Weight: 1}}, Options{Limit: 10}, DefaultTuning())
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Explain)
}

func TestRunDisableSystemsConsolidationFiltersSummaries(t *testing.T) {
	idx, insert := newTestIndices()
	insert("original", []string{"food"}, 1)
	summary := insert("gist", []string{"food"}, 2)
	summary.IsConsolidatedSummary = true

	results := Run(idx, []WeightedCue{{Cue: "food", Weight: 1}}, Options{Limit: 10, DisableSystemsConsolidation: true}, DefaultTuning())
	for _, r := range results {
		assert.False(t, r.Memory.IsConsolidatedSummary)
	}
}
