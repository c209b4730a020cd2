// Package jobs implements the Job Pipeline: a bounded,
// single-consumer queue of deferred enrichment work, plus an
// ingestion-session buffer that batches ProposeCues/TrainLexicon/
// UpdateGraph jobs so bulk ingest doesn't head-of-line-block the worker.
//
// One dedicated goroutine drains a buffered channel over a typed operation
// enum, with a drain-on-shutdown loop. CueMap's jobs are deferred
// enrichment (cue proposal, lexicon training, co-occurrence/graph updates,
// reinforcement, alias proposal, consolidation), so the worker has no
// Result/Error reply channels — jobs are fire-and-forget by design: on
// failure the worker logs and drops the job; it never panics the engine.
package jobs

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultCapacity is the default bounded queue size.
const DefaultCapacity = 1000

// DefaultIdleTimeout is the default ingestion-session idle window: a
// session auto-closes after this much inactivity.
const DefaultIdleTimeout = 500 * time.Millisecond

// Kind enumerates the deferred job tags.
type Kind int

const (
	ProposeCues Kind = iota
	TrainLexicon
	UpdateGraph
	ReinforceMemories
	ReinforceLexicon
	ProposeAliases
	ExtractAndIngest
	VerifyFile
	ConsolidateMemories
)

func (k Kind) String() string {
	switch k {
	case ProposeCues:
		return "propose_cues"
	case TrainLexicon:
		return "train_lexicon"
	case UpdateGraph:
		return "update_graph"
	case ReinforceMemories:
		return "reinforce_memories"
	case ReinforceLexicon:
		return "reinforce_lexicon"
	case ProposeAliases:
		return "propose_aliases"
	case ExtractAndIngest:
		return "extract_and_ingest"
	case VerifyFile:
		return "verify_file"
	case ConsolidateMemories:
		return "consolidate_memories"
	default:
		return "unknown"
	}
}

// bufferable reports whether Kind is one of the three job types the
// ingestion-session buffer batches.
func bufferable(k Kind) bool {
	return k == ProposeCues || k == TrainLexicon || k == UpdateGraph
}

// Job is one unit of deferred work. Payload is handler-specific; Handler
// dispatches on Kind to decode it.
type Job struct {
	Kind    Kind
	Payload any
}

// Handler processes one Job. Handlers must be idempotent: re-running the
// same job must converge to the same engine state.
type Handler func(Job)

// Pipeline is the bounded queue plus its ingestion-session buffer and
// dedicated worker.
type Pipeline struct {
	queue   chan Job
	handler Handler

	mu          sync.Mutex
	sessionOpen bool
	sessionBuf  *orderedmap.OrderedMap[string, []Job]
	idleTimer   *time.Timer
	idleTimeout time.Duration

	stats stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type stats struct {
	writesTotal             atomic.Uint64
	proposeCuesCompleted    atomic.Uint64
	trainLexiconCompleted   atomic.Uint64
	updateGraphCompleted    atomic.Uint64
	reinforceCompleted      atomic.Uint64
	proposeAliasesCompleted atomic.Uint64
	consolidateCompleted    atomic.Uint64
	jobsDropped             atomic.Uint64
}

// New builds a Pipeline with the given capacity and idle timeout (pass <=0
// for either to use the package defaults) and starts its worker goroutine.
func New(capacity int, idleTimeout time.Duration, handler Handler) *Pipeline {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		queue:       make(chan Job, capacity),
		handler:     handler,
		idleTimeout: idleTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Pipeline) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			p.drain()
			return
		case job := <-p.queue:
			p.process(job)
		}
	}
}

func (p *Pipeline) drain() {
	for {
		select {
		case job := <-p.queue:
			p.process(job)
		default:
			return
		}
	}
}

func (p *Pipeline) process(job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("jobs: handler panicked on %s job: %v", job.Kind, r)
		}
	}()
	p.handler(job)
	p.count(job.Kind)
}

func (p *Pipeline) count(k Kind) {
	switch k {
	case ProposeCues:
		p.stats.proposeCuesCompleted.Add(1)
	case TrainLexicon:
		p.stats.trainLexiconCompleted.Add(1)
	case UpdateGraph:
		p.stats.updateGraphCompleted.Add(1)
	case ReinforceMemories, ReinforceLexicon:
		p.stats.reinforceCompleted.Add(1)
	case ProposeAliases:
		p.stats.proposeAliasesCompleted.Add(1)
	case ConsolidateMemories:
		p.stats.consolidateCompleted.Add(1)
	}
}

// Submit enqueues job for non-bufferable kinds immediately (blocking if
// the queue is full — bounded backpressure), or appends it to the
// current ingestion session's buffer for ProposeCues/TrainLexicon/
// UpdateGraph jobs, opening a session if none is active.
func (p *Pipeline) Submit(sessionID string, job Job) {
	p.stats.writesTotal.Add(1)
	if !bufferable(job.Kind) {
		p.enqueue(job)
		return
	}

	p.mu.Lock()
	if p.sessionBuf == nil {
		p.sessionBuf = orderedmap.New[string, []Job]()
	}
	existing, _ := p.sessionBuf.Get(sessionID)
	p.sessionBuf.Set(sessionID, append(existing, job))
	p.sessionOpen = true
	if p.idleTimer != nil {
		p.idleTimer.Stop()
	}
	p.idleTimer = time.AfterFunc(p.idleTimeout, p.flushSessions)
	p.mu.Unlock()
}

// enqueue sends job to the bounded channel, blocking the caller if full.
func (p *Pipeline) enqueue(job Job) {
	select {
	case p.queue <- job:
	case <-p.ctx.Done():
	}
}

// TryEnqueue is the non-blocking variant used when a caller opted out of
// backpressure; it returns core.ErrCapacity-equivalent false if the queue
// is full rather than blocking.
func (p *Pipeline) TryEnqueue(job Job) bool {
	select {
	case p.queue <- job:
		return true
	default:
		p.stats.jobsDropped.Add(1)
		return false
	}
}

// flushSessions closes the current ingestion session after its idle
// window elapses and enqueues every buffered job in one batch.
func (p *Pipeline) flushSessions() {
	p.mu.Lock()
	buf := p.sessionBuf
	p.sessionBuf = nil
	p.sessionOpen = false
	p.mu.Unlock()

	if buf == nil {
		return
	}
	for pair := buf.Oldest(); pair != nil; pair = pair.Next() {
		for _, job := range pair.Value {
			p.enqueue(job)
		}
	}
}

// Flush forces the current ingestion session closed immediately, used by
// tests and by await_quiescence-style helpers that need buffered jobs
// visible without waiting out the idle timeout.
func (p *Pipeline) Flush() {
	p.mu.Lock()
	if p.idleTimer != nil {
		p.idleTimer.Stop()
	}
	p.mu.Unlock()
	p.flushSessions()
}

// AwaitQuiescence blocks until the queue has drained. It is a test hook
// so assertions can run after the job worker catches
// up. It polls rather than synchronizing on a condition variable, since
// jobs can themselves enqueue further jobs (e.g. TrainLexicon triggering
// no further jobs, but ProposeAliases writing the result elsewhere).
func (p *Pipeline) AwaitQuiescence(ctx context.Context) {
	p.Flush()
	for {
		if len(p.queue) == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Millisecond):
		}
	}
}

// Stats returns read-only progress telemetry.
func (p *Pipeline) Stats() map[string]uint64 {
	return map[string]uint64{
		"writes_total":              p.stats.writesTotal.Load(),
		"propose_cues_completed":    p.stats.proposeCuesCompleted.Load(),
		"train_lexicon_completed":   p.stats.trainLexiconCompleted.Load(),
		"update_graph_completed":    p.stats.updateGraphCompleted.Load(),
		"reinforce_completed":       p.stats.reinforceCompleted.Load(),
		"propose_aliases_completed": p.stats.proposeAliasesCompleted.Load(),
		"consolidate_completed":     p.stats.consolidateCompleted.Load(),
		"jobs_dropped":              p.stats.jobsDropped.Load(),
	}
}

// Shutdown honors a shutdown signal after the current job finishes,
// draining any remaining queued jobs before returning.
func (p *Pipeline) Shutdown() {
	p.cancel()
	p.wg.Wait()
}
