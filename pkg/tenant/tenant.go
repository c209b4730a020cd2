// Package tenant implements the multi-tenant supervisor: the
// tenant-ID -> *engine.Engine mapping, one job pipeline (with its own
// worker) per tenant, optional tenant-ID registration, and idle-tenant
// eviction. Tenants are constructed lazily on first use, guarded by a
// create-mutex around the double-checked lookup, with a background
// eviction loop and an optional mutex-guarded tenant-ID allowlist.
package tenant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemap-dev/cuemap/pkg/alias"
	"github.com/cuemap-dev/cuemap/pkg/config"
	"github.com/cuemap-dev/cuemap/pkg/cooccur"
	"github.com/cuemap-dev/cuemap/pkg/core"
	"github.com/cuemap-dev/cuemap/pkg/cueindex"
	"github.com/cuemap-dev/cuemap/pkg/engine"
	"github.com/cuemap-dev/cuemap/pkg/jobs"
	"github.com/cuemap-dev/cuemap/pkg/memstore"
	"github.com/cuemap-dev/cuemap/pkg/persistence"
	"github.com/cuemap-dev/cuemap/pkg/recall"
)

// tracked pairs a tenant's engine with its last-touched timestamp for idle
// eviction.
type tracked struct {
	engine   *engine.Engine
	lastUsed time.Time
}

// Supervisor owns the mapping tenant-ID -> engine. GetOrCreate builds a
// separate Job Pipeline, with its own worker, for each tenant's Engine;
// tenants do not share a pipeline.
type Supervisor struct {
	cfg   *config.Config
	store *persistence.Store

	mu       sync.RWMutex
	createMu sync.Mutex
	tenants  map[core.TenantID]*tracked

	registry   map[core.TenantID]struct{} // nil when registration gate disabled
	registryMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	totalCreated uint64
	totalEvicted uint64
}

// New builds a Supervisor. store may be nil to disable persistence.
func New(cfg *config.Config, store *persistence.Store) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:     cfg,
		store:   store,
		tenants: make(map[core.TenantID]*tracked),
		ctx:     ctx,
		cancel:  cancel,
	}
	if cfg.Tenant.RegistryEnabled {
		s.registry = make(map[core.TenantID]struct{})
	}
	s.wg.Add(1)
	go s.evictionLoop()
	return s
}

// Register admits a tenant ID when the registry gate is enabled. It is a
// no-op when the gate is disabled (every tenant ID is implicitly allowed).
func (s *Supervisor) Register(id core.TenantID) {
	if s.registry == nil {
		return
	}
	s.registryMu.Lock()
	s.registry[id] = struct{}{}
	s.registryMu.Unlock()
}

// admitted reports whether id may obtain an engine.
func (s *Supervisor) admitted(id core.TenantID) bool {
	if s.registry == nil {
		return true
	}
	s.registryMu.RLock()
	_, ok := s.registry[id]
	s.registryMu.RUnlock()
	return ok
}

// GetOrCreate returns the tenant's engine, constructing and (if a Store is
// configured) restoring it from its last snapshot on first access.
// Uses a double-checked-lock shape to avoid holding the write lock during construction.
func (s *Supervisor) GetOrCreate(id core.TenantID) (*engine.Engine, error) {
	if !s.admitted(id) {
		return nil, fmt.Errorf("tenant %s is not registered", id)
	}

	s.mu.RLock()
	t, ok := s.tenants[id]
	s.mu.RUnlock()
	if ok {
		s.touch(t)
		return t.engine, nil
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	s.mu.RLock()
	t, ok = s.tenants[id]
	s.mu.RUnlock()
	if ok {
		s.touch(t)
		return t.engine, nil
	}

	eng := engine.New(engine.Config{
		ShardCount:     s.cfg.Index.ShardCount,
		Tuning:         recallTuning(s.cfg),
		EpisodeJaccard: s.cfg.Episode.Jaccard,
		EpisodeWindow:  s.cfg.Episode.Window,
	}, nil)
	eng.SetPipeline(jobs.New(s.cfg.Jobs.QueueCapacity, s.cfg.Jobs.IngestSessionIdle, eng.HandleJob))

	if s.store != nil {
		s.restore(id, eng)
	}

	t = &tracked{engine: eng, lastUsed: time.Now()}
	s.mu.Lock()
	s.tenants[id] = t
	s.totalCreated++
	s.mu.Unlock()

	return eng, nil
}

func (s *Supervisor) touch(t *tracked) {
	s.mu.Lock()
	t.lastUsed = time.Now()
	s.mu.Unlock()
}

func recallTuning(cfg *config.Config) recall.Tuning {
	return recall.Tuning{
		HalfLifePositions: cfg.Recall.HalfLifePositions,
		Alpha:             cfg.Recall.Alpha,
		Beta:              cfg.Recall.Beta,
		FastDepth:         cfg.Recall.FastDepth,
		CooccurTopK:       cfg.Recall.CooccurTopK,
		CooccurMinCount:   cfg.Recall.CooccurMinCount,
	}
}

// snapshot writes eng's main store, lexicon, and alias table to disk.
func (s *Supervisor) snapshot(id core.TenantID, eng *engine.Engine) error {
	if err := s.store.SaveEngine(id, buildSnapshot(eng.Memories(), eng.CueIndex(), eng.Cooccurrence())); err != nil {
		return err
	}
	lex := eng.Lexicon()
	if err := s.store.SaveLexicon(id, buildSnapshot(lex.Memories(), lex.CueIndexRef(), lex.Cooccurrence())); err != nil {
		return err
	}
	return s.store.SaveAliases(id, aliasEdges(eng.Aliases()))
}

// restore rehydrates eng's main store, lexicon, and alias table from disk,
// leaving eng untouched (a fresh no-op engine) when no snapshot exists.
func (s *Supervisor) restore(id core.TenantID, eng *engine.Engine) {
	if snap, ok, err := s.store.LoadEngine(id); err == nil && ok {
		applySnapshot(snap, eng.Memories(), eng.CueIndex(), eng.Cooccurrence())
	}
	if snap, ok, err := s.store.LoadLexicon(id); err == nil && ok {
		lex := eng.Lexicon()
		applySnapshot(snap, lex.Memories(), lex.CueIndexRef(), lex.Cooccurrence())
	}
	if edges, ok, err := s.store.LoadAliases(id); err == nil && ok {
		table := make(map[string][]alias.Edge, len(edges))
		for from, es := range edges {
			converted := make([]alias.Edge, 0, len(es))
			for _, e := range es {
				converted = append(converted, alias.Edge{To: e.To, Weight: e.Weight})
			}
			table[from] = converted
		}
		eng.Aliases().Merge(table)
	}
}

func buildSnapshot(memos *memstore.Store, cues *cueindex.Index, co *cooccur.Matrix) *persistence.EngineSnapshot {
	snap := &persistence.EngineSnapshot{
		CueOrder: make(map[string][]core.MemoryID),
		Cooccur:  co.Snapshot(),
	}
	memos.Range(func(m *core.Memory) bool {
		snap.Memories = append(snap.Memories, m)
		return true
	})
	cues.Snapshot(func(cue string, ids []core.MemoryID) {
		snap.CueOrder[cue] = ids
	})
	return snap
}

func applySnapshot(snap *persistence.EngineSnapshot, memos *memstore.Store, cues *cueindex.Index, co *cooccur.Matrix) {
	for _, m := range snap.Memories {
		memos.Insert(m)
	}
	for cue, ids := range snap.CueOrder {
		cues.Restore(cue, ids)
	}
	co.Restore(snap.Cooccur)
}

func aliasEdges(table *alias.Table) map[string][]persistence.AliasEdge {
	snap := table.Snapshot()
	out := make(map[string][]persistence.AliasEdge, len(snap))
	for from, edges := range snap {
		converted := make([]persistence.AliasEdge, 0, len(edges))
		for _, e := range edges {
			converted = append(converted, persistence.AliasEdge{To: e.To, Weight: e.Weight})
		}
		out[from] = converted
	}
	return out
}

// Evict persists (if a Store is configured) and removes a tenant's engine
// from memory.
func (s *Supervisor) Evict(id core.TenantID) error {
	s.mu.Lock()
	t, ok := s.tenants[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.tenants, id)
	s.totalEvicted++
	s.mu.Unlock()

	t.engine.AwaitQuiescence()
	if s.store != nil {
		return s.snapshot(id, t.engine)
	}
	return nil
}

// ListTenants returns every currently loaded tenant ID.
func (s *Supervisor) ListTenants() []core.TenantID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.TenantID, 0, len(s.tenants))
	for id := range s.tenants {
		out = append(out, id)
	}
	return out
}

// evictionLoop periodically evicts tenants idle past cfg.Tenant.IdleEvictAfter.
func (s *Supervisor) evictionLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.evictIdle()
		}
	}
}

func (s *Supervisor) evictIdle() {
	now := time.Now()
	var stale []core.TenantID
	s.mu.RLock()
	for id, t := range s.tenants {
		if now.Sub(t.lastUsed) > s.cfg.Tenant.IdleEvictAfter {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()
	for _, id := range stale {
		s.Evict(id)
	}
}

// PersistAll snapshots every loaded tenant, used on graceful shutdown.
func (s *Supervisor) PersistAll() error {
	if s.store == nil {
		return nil
	}
	s.mu.RLock()
	loaded := make(map[core.TenantID]*engine.Engine, len(s.tenants))
	for id, t := range s.tenants {
		loaded[id] = t.engine
	}
	s.mu.RUnlock()

	var lastErr error
	for id, eng := range loaded {
		if err := s.snapshot(id, eng); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Shutdown stops the eviction loop and persists every tenant.
func (s *Supervisor) Shutdown() error {
	s.cancel()
	s.wg.Wait()
	return s.PersistAll()
}

// Stats reports supervisor-level counters.
func (s *Supervisor) Stats() map[string]uint64 {
	s.mu.RLock()
	active := uint64(len(s.tenants))
	s.mu.RUnlock()
	return map[string]uint64{
		"active_tenants": active,
		"total_created":  s.totalCreated,
		"total_evicted":  s.totalEvicted,
	}
}
