package consolidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemap-dev/cuemap/pkg/core"
	"github.com/cuemap-dev/cuemap/pkg/cueindex"
	"github.com/cuemap-dev/cuemap/pkg/memstore"
)

func setup() (*memstore.Store, *cueindex.Index) {
	memos := memstore.New(4)
	cues := cueindex.New(4)
	return memos, cues
}

func insert(memos *memstore.Store, cues *cueindex.Index, content string, cueList []string, createdAt int64) *core.Memory {
	m := core.NewMemory(content, cueList, createdAt)
	memos.Insert(m)
	for _, c := range m.Cues {
		cues.Add(c, m.ID)
	}
	return m
}

func TestRunMergesOverlappingCluster(t *testing.T) {
	memos, cues := setup()
	insert(memos, cues, "order 1 shipped late", []string{"order", "shipping", "delay"}, 1000)
	insert(memos, cues, "order 2 shipped late too", []string{"order", "shipping", "delay"}, 1010)

	c := New(memos, cues)
	report := c.Run(1020)
	assert.Equal(t, 1, report.SummariesAdded)

	found := false
	memos.Range(func(m *core.Memory) bool {
		if m.IsConsolidatedSummary {
			found = true
		}
		return true
	})
	assert.True(t, found)
}

func TestRunNeverDecreasesTotalMemories(t *testing.T) {
	memos, cues := setup()
	insert(memos, cues, "a", []string{"x", "y"}, 1)
	insert(memos, cues, "b", []string{"x", "y"}, 2)

	before := memos.Len()
	c := New(memos, cues)
	c.Run(3)
	assert.GreaterOrEqual(t, memos.Len(), before)
}

func TestRunIdempotentOnRerun(t *testing.T) {
	memos, cues := setup()
	insert(memos, cues, "a", []string{"x", "y", "z"}, 1)
	insert(memos, cues, "b", []string{"x", "y", "z"}, 2)

	c := New(memos, cues)
	first := c.Run(10)
	require.Equal(t, 1, first.SummariesAdded)

	second := c.Run(10)
	assert.Equal(t, 0, second.SummariesAdded)
}

func TestRunSkipsDissimilarMemories(t *testing.T) {
	memos, cues := setup()
	insert(memos, cues, "a", []string{"food"}, 1)
	insert(memos, cues, "b", []string{"engineering"}, 2)

	c := New(memos, cues)
	report := c.Run(3)
	assert.Equal(t, 0, report.SummariesAdded)
}

func TestRunRespectsTimeWindow(t *testing.T) {
	memos, cues := setup()
	insert(memos, cues, "a", []string{"x", "y"}, 1)
	insert(memos, cues, "b", []string{"x", "y"}, 100000)

	c := New(memos, cues)
	c.WindowSeconds = 10
	report := c.Run(100001)
	assert.Equal(t, 0, report.SummariesAdded)
}
