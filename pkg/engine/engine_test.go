package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemap-dev/cuemap/pkg/jobs"
	"github.com/cuemap-dev/cuemap/pkg/recall"
)

func newTestEngine(t *testing.T) *Engine {
	e := New(DefaultConfig(), nil)
	pipeline := jobs.New(100, 5*time.Millisecond, e.HandleJob)
	e.jobs = pipeline
	t.Cleanup(pipeline.Shutdown)
	return e
}

func TestWriteThenRecall(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Write("italian food review", []string{"food", "italian"}, 100, "s1")
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)

	results := e.Recall(RecallRequest{Cues: []string{"food"}, Options: recall.Options{Limit: 10}}, "s1")
	require.Len(t, results, 1)
	assert.Equal(t, res.ID, results[0].ID)
}

func TestWriteDerivesCuesWhenNoneGiven(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Write("quick brown fox", nil, 100, "s1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AcceptedCues)
}

func TestReinforceIncrementsCount(t *testing.T) {
	e := newTestEngine(t)
	res, _ := e.Write("x", []string{"a"}, 1, "s1")
	m, err := e.Reinforce(res.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.ReinforcementCount)
}

func TestReinforceUnknownIDReturnsNotFound(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Reinforce("nonexistent", nil)
	assert.Error(t, err)
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Get("nonexistent")
	assert.Error(t, err)
}

func TestRemoveDropsFromCueIndex(t *testing.T) {
	e := newTestEngine(t)
	res, _ := e.Write("x", []string{"a"}, 1, "s1")
	require.NoError(t, e.Remove(res.ID))
	assert.Equal(t, 0, e.CueIndex().Len("a"))
}

func TestRecallWithQueryTextUsesLexicon(t *testing.T) {
	e := newTestEngine(t)
	e.Write("the payment timed out", []string{"payment", "timeout"}, 100, "s1")
	e.AwaitQuiescence()

	results := e.Recall(RecallRequest{QueryText: "payment", Options: recall.Options{Limit: 10}}, "s1")
	assert.NotEmpty(t, results)
}

func TestWriteGroupsOverlappingMemoriesIntoSameEpisode(t *testing.T) {
	e := newTestEngine(t)
	e.cfg.EpisodeJaccard = 0.4

	first, err := e.Write("paid the invoice", []string{"pay", "invoice", "acme"}, 1000, "s1")
	require.NoError(t, err)

	second, err := e.Write("invoice receipt emailed", []string{"pay", "invoice", "email"}, 1010, "s1")
	require.NoError(t, err)

	m1, err := e.Get(first.ID)
	require.NoError(t, err)
	m2, err := e.Get(second.ID)
	require.NoError(t, err)

	require.NotEmpty(t, m2.EpisodeID)
	assert.Equal(t, m1.EpisodeID, m2.EpisodeID)
	assert.True(t, m1.HasCue("episode:"+m1.EpisodeID))
	assert.True(t, m2.HasCue("episode:"+m2.EpisodeID))
}

func TestWriteDoesNotGroupDistantOrDissimilarMemories(t *testing.T) {
	e := newTestEngine(t)
	e.cfg.EpisodeJaccard = 0.4
	e.cfg.EpisodeWindow = 300 * time.Second

	first, _ := e.Write("paid the invoice", []string{"pay", "invoice"}, 1000, "s1")
	tooDifferent, _ := e.Write("went for a run", []string{"exercise", "run"}, 1001, "s1")
	tooFar, _ := e.Write("paid the invoice again", []string{"pay", "invoice"}, 1000+3600, "s1")

	m1, err := e.Get(first.ID)
	require.NoError(t, err)
	mFar, err := e.Get(tooFar.ID)
	require.NoError(t, err)
	mDiff, err := e.Get(tooDifferent.ID)
	require.NoError(t, err)

	assert.Empty(t, m1.EpisodeID)
	assert.Empty(t, mFar.EpisodeID)
	assert.Empty(t, mDiff.EpisodeID)
}

func TestWriteEnqueuesProposeCuesJob(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Write("the quick brown fox jumps", []string{"fox"}, 1, "s1")
	require.NoError(t, err)
	e.AwaitQuiescence()

	m, err := e.Get(res.ID)
	require.NoError(t, err)
	assert.Greater(t, len(m.Cues), 1, "ProposeCues should have enriched the caller-supplied cue set")
}
