// Package engine implements the per-tenant Engine: the write-path and
// read-path control flow tying together the Memory Store, Cue
// Index, Co-occurrence Matrix, Lexicon, Alias Engine, and Job Pipeline
// a tenant owns.
package engine

import (
	"context"
	"time"

	"github.com/cuemap-dev/cuemap/pkg/alias"
	"github.com/cuemap-dev/cuemap/pkg/cooccur"
	"github.com/cuemap-dev/cuemap/pkg/core"
	"github.com/cuemap-dev/cuemap/pkg/cueindex"
	"github.com/cuemap-dev/cuemap/pkg/episode"
	"github.com/cuemap-dev/cuemap/pkg/jobs"
	"github.com/cuemap-dev/cuemap/pkg/lexicon"
	"github.com/cuemap-dev/cuemap/pkg/memstore"
	"github.com/cuemap-dev/cuemap/pkg/recall"
	"github.com/cuemap-dev/cuemap/pkg/tokenize"
)

// Config holds the per-tenant tunables that originate in pkg/config's
// four-level hierarchy.
type Config struct {
	ShardCount     int
	Tuning         recall.Tuning
	EpisodeJaccard float64
	EpisodeWindow  time.Duration
}

// DefaultConfig returns the defaults for a freshly constructed tenant.
func DefaultConfig() Config {
	return Config{
		ShardCount:     cueindex.DefaultShardCount,
		Tuning:         recall.DefaultTuning(),
		EpisodeJaccard: episode.DefaultJaccard,
		EpisodeWindow:  episode.DefaultWindow,
	}
}

// Engine is one tenant's full CueMap instance.
type Engine struct {
	memos    *memstore.Store
	cues     *cueindex.Index
	cooccur  *cooccur.Matrix
	lex      *lexicon.Lexicon
	aliases  *alias.Table
	episodes *episode.Tracker
	jobs     *jobs.Pipeline
	cfg      Config
}

// New builds a fresh tenant Engine. pipeline may be nil; the tenant
// Supervisor passes nil and then attaches a pipeline of this tenant's own
// via SetPipeline, with this Engine's HandleJob as its handler. Pipelines
// are not shared between tenants.
func New(cfg Config, pipeline *jobs.Pipeline) *Engine {
	e := &Engine{
		memos:    memstore.New(cfg.ShardCount),
		cues:     cueindex.New(cfg.ShardCount),
		cooccur:  cooccur.New(cfg.ShardCount),
		lex:      lexicon.New(cfg.ShardCount),
		aliases:  alias.New(),
		episodes: episode.New(cfg.EpisodeWindow),
		jobs:     pipeline,
		cfg:      cfg,
	}
	return e
}

// SetPipeline wires a Job Pipeline onto an already-constructed Engine,
// needed by callers (the tenant Supervisor) that must build the pipeline's
// handler from the very Engine it will be attached to.
func (e *Engine) SetPipeline(p *jobs.Pipeline) { e.jobs = p }

func (e *Engine) reinforceFunc() memstore.ReinforceFunc {
	return memstore.ReinforceFunc{MoveToFront: e.cues.MoveToFront, Add: e.cues.Add}
}

// WriteResult is returned by Write, matching the add_memory response
// shape minus the HTTP-layer latency_ms field (the API layer's job, not
// the engine's).
type WriteResult struct {
	ID           core.MemoryID
	AcceptedCues []string
	RejectedCues []string
}

// Write implements the write path: normalize → tokenize (if cues
// empty) → Memory Store.insert + Cue Index.prepend, then enqueues the
// deferred enrichment jobs (propose cues, train lexicon, update
// co-occurrence graph) onto the ingestion session identified by
// sessionID.
func (e *Engine) Write(content string, cues []string, now int64, sessionID string) (WriteResult, error) {
	normalized := make([]string, 0, len(cues))
	var rejected []string
	for _, c := range cues {
		n := core.Normalize(c)
		if n == "" {
			rejected = append(rejected, c)
			continue
		}
		normalized = append(normalized, n)
	}

	if len(normalized) == 0 {
		normalized = tokenize.Cues(content)
	}

	m := core.NewMemory(content, normalized, now)
	m.RecomputeSalience()

	if matchID, ok := e.episodes.Match(string(m.ID), m.Cues, now, e.cfg.EpisodeJaccard); ok {
		e.joinEpisode(m, core.MemoryID(matchID))
	}

	e.memos.Insert(m)
	for _, c := range m.Cues {
		e.cues.Add(c, m.ID)
	}

	if e.jobs != nil {
		e.jobs.Submit(sessionID, jobs.Job{Kind: jobs.UpdateGraph, Payload: graphPayload{Cues: m.Cues}})
		e.jobs.Submit(sessionID, jobs.Job{Kind: jobs.ProposeCues, Payload: proposePayload{ID: m.ID, Content: content}})
		for _, c := range m.Cues {
			e.jobs.Submit(sessionID, jobs.Job{Kind: jobs.TrainLexicon, Payload: trainPayload{Cue: c, Content: content, Now: now}})
		}
	}

	return WriteResult{ID: m.ID, AcceptedCues: m.Cues, RejectedCues: rejected}, nil
}

// joinEpisode groups the not-yet-inserted memory m with the already-stored
// matchID into a shared episode: matchID's existing episode ID if it has
// one, a freshly minted one otherwise. Both participants gain the cue
// episode:<id>. A no-op if matchID was removed between the Tracker match
// and here.
func (e *Engine) joinEpisode(m *core.Memory, matchID core.MemoryID) {
	episodeID, ok := e.memos.JoinEpisode(matchID, core.NewEpisodeID())
	if !ok {
		return
	}
	m.EpisodeID = episodeID
	cue := "episode:" + episodeID
	if !m.HasCue(cue) {
		m.Cues = append(m.Cues, cue)
	}
	e.memos.AddCue(matchID, cue, e.cues.Add)
}

type graphPayload struct{ Cues []string }
type trainPayload struct {
	Cue     string
	Content string
	Now     int64
}
type proposePayload struct {
	ID      core.MemoryID
	Content string
}

// HandleJob is this engine's jobs.Handler, dispatching on Kind. Re-running
// a ProposeCues job leaves the memory's cue set unchanged, but re-running
// UpdateGraph or TrainLexicon for the same payload does not converge:
// co-occurrence counts are bumped again (and TrainLexicon also bumps the
// lexicon row's reinforcement count).
func (e *Engine) HandleJob(j jobs.Job) {
	switch j.Kind {
	case jobs.UpdateGraph:
		p := j.Payload.(graphPayload)
		e.cooccur.RecordCooccurrence(p.Cues)
	case jobs.ProposeCues:
		p := j.Payload.(proposePayload)
		for _, c := range tokenize.Cues(p.Content) {
			e.memos.AddCue(p.ID, c, e.cues.Add)
		}
	case jobs.TrainLexicon:
		p := j.Payload.(trainPayload)
		e.lex.Train(p.Cue, p.Content, p.Now)
	case jobs.ReinforceMemories:
		p := j.Payload.(core.MemoryID)
		e.memos.Reinforce(p, nil, e.reinforceFunc())
	}
}

// Reinforce implements reinforce(id, extra_cues?): increments
// reinforcement_count, recomputes salience, appends new extra cues, and
// moves every current cue to the front of the Cue Index.
func (e *Engine) Reinforce(id core.MemoryID, extraCues []string) (*core.Memory, error) {
	normalized := make([]string, 0, len(extraCues))
	for _, c := range extraCues {
		if n := core.Normalize(c); n != "" {
			normalized = append(normalized, n)
		}
	}
	m, ok := e.memos.Reinforce(id, normalized, e.reinforceFunc())
	if !ok {
		return nil, core.ErrNotFound
	}
	return m, nil
}

// Get implements get_memory.
func (e *Engine) Get(id core.MemoryID) (*core.Memory, error) {
	m, ok := e.memos.Get(id)
	if !ok {
		return nil, core.ErrNotFound
	}
	return m, nil
}

// Remove deletes a memory and every cue-index/co-occurrence reference to
// it.
func (e *Engine) Remove(id core.MemoryID) error {
	m, ok := e.memos.Get(id)
	if !ok {
		return core.ErrNotFound
	}
	for _, c := range m.Cues {
		e.cues.Remove(c, id)
		if e.cues.Len(c) == 0 {
			e.cooccur.Remove(c)
		}
	}
	e.memos.Remove(id)
	return nil
}

// RecallRequest bundles the read-path inputs: either explicit cues
// or free text resolved through the lexicon, plus alias expansion and the
// recall option flags.
type RecallRequest struct {
	Cues      []string
	QueryText string
	Options   recall.Options
}

// Recall implements the read path: normalize → optional
// Lexicon.resolve(text) → Alias.expand → Recall Engine.run → optional
// reinforcement enqueue. Returns empty, non-error results for the failure
// cases (empty query, all-unknown cues, limit<=0).
func (e *Engine) Recall(req RecallRequest, sessionID string) []recall.Result {
	var cues []string
	if len(req.Cues) > 0 {
		for _, c := range req.Cues {
			if n := core.Normalize(c); n != "" {
				cues = append(cues, n)
			}
		}
	} else if req.QueryText != "" {
		for _, res := range e.lex.Resolve(req.QueryText, lexicon.DefaultResolveLimit) {
			cues = append(cues, res.CanonicalCue)
		}
	}
	if len(cues) == 0 {
		return nil
	}

	expanded := alias.Expand(e.aliases, cues)
	results := recall.Run(recall.Indices{Cues: e.cues, Memos: e.memos, Cooccur: e.cooccur}, expanded, req.Options, e.cfg.Tuning)

	if e.jobs != nil {
		for _, r := range results {
			e.jobs.Submit(sessionID, jobs.Job{Kind: jobs.ReinforceMemories, Payload: r.ID})
		}
	}
	return results
}

// Aliases exposes the alias table for the aliases.add/merge endpoints.
func (e *Engine) Aliases() *alias.Table { return e.aliases }

// Lexicon exposes the lexicon for the lexicon.inspect/wire endpoints.
func (e *Engine) Lexicon() *lexicon.Lexicon { return e.lex }

// Memories exposes the Memory Store, used by the Consolidator and the
// Snapshot Codec.
func (e *Engine) Memories() *memstore.Store { return e.memos }

// CueIndex exposes the Cue Index, used by the Consolidator, alias
// proposer, and Snapshot Codec.
func (e *Engine) CueIndex() *cueindex.Index { return e.cues }

// Cooccurrence exposes the Co-occurrence Matrix, used by the Snapshot
// Codec.
func (e *Engine) Cooccurrence() *cooccur.Matrix { return e.cooccur }

// AwaitQuiescence blocks until this tenant's background jobs drain,
// used as a test hook.
func (e *Engine) AwaitQuiescence() {
	if e.jobs != nil {
		e.jobs.AwaitQuiescence(context.Background())
	}
}
