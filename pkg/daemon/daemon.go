// Package daemon runs the periodic, cross-tenant background sweeps that
// sit outside any single tenant's job pipeline: consolidation, alias
// proposal, and snapshot persistence. Each sweep is its own ticker
// goroutine; all of them share one context and WaitGroup, so Stop ends
// every sweep together.
// Decay is continuous and already lives in pkg/memstore's reinforcement
// math, so it has no ticker here; capacity-based pruning is out of scope.
package daemon

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cuemap-dev/cuemap/pkg/alias"
	"github.com/cuemap-dev/cuemap/pkg/consolidate"
	"github.com/cuemap-dev/cuemap/pkg/core"
	"github.com/cuemap-dev/cuemap/pkg/tenant"
)

// Manager runs the consolidate, alias-proposal, and persist sweeps across
// every tenant currently loaded in a Supervisor.
type Manager struct {
	supervisor *tenant.Supervisor

	consolidateInterval time.Duration
	consolidateJaccard  float64
	aliasInterval       time.Duration
	aliasJaccard        float64
	snapshotInterval    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager builds a Manager. Any interval of zero disables that sweep.
func NewManager(sup *tenant.Supervisor, consolidateInterval time.Duration, consolidateJaccard float64, aliasInterval time.Duration, aliasJaccard float64, snapshotInterval time.Duration) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		supervisor:          sup,
		consolidateInterval: consolidateInterval,
		consolidateJaccard:  consolidateJaccard,
		aliasInterval:       aliasInterval,
		aliasJaccard:        aliasJaccard,
		snapshotInterval:    snapshotInterval,
		ctx:                 ctx,
		cancel:              cancel,
	}
}

// Start launches the enabled sweep goroutines.
func (m *Manager) Start() {
	if m.consolidateInterval > 0 {
		m.wg.Add(1)
		go m.consolidateDaemon()
	}
	if m.aliasInterval > 0 {
		m.wg.Add(1)
		go m.aliasDaemon()
	}
	if m.snapshotInterval > 0 {
		m.wg.Add(1)
		go m.persistDaemon()
	}
	log.Println("daemon manager started")
}

// Stop cancels every running sweep and waits for it to exit.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	log.Println("daemon manager stopped")
}

func (m *Manager) consolidateDaemon() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.consolidateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.runConsolidate()
		}
	}
}

func (m *Manager) runConsolidate() {
	now := time.Now().Unix()
	for _, id := range m.supervisor.ListTenants() {
		eng, err := m.supervisor.GetOrCreate(id)
		if err != nil {
			continue
		}
		c := consolidate.New(eng.Memories(), eng.CueIndex())
		if m.consolidateJaccard > 0 {
			c.MinJaccard = m.consolidateJaccard
		}
		report := c.Run(now)
		if report.SummariesAdded > 0 {
			log.Printf("tenant %s consolidation: %d clusters, %d summaries added", id, report.ClustersFound, report.SummariesAdded)
		}
	}
}

func (m *Manager) aliasDaemon() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.aliasInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.runProposeAliases()
		}
	}
}

// runProposeAliases snapshots each loaded tenant's Cue Index into
// memory-ID sets keyed by cue, runs alias.Propose over the snapshot, and
// installs every proposal directly into that tenant's alias table. A
// proposal already present at the same weight is a harmless no-op
// (Table.Add is an upsert), so re-running this sweep over an unchanged
// index converges rather than duplicating edges.
func (m *Manager) runProposeAliases() {
	minJaccard := m.aliasJaccard
	if minJaccard <= 0 {
		minJaccard = alias.DefaultJaccard
	}
	for _, id := range m.supervisor.ListTenants() {
		eng, err := m.supervisor.GetOrCreate(id)
		if err != nil {
			continue
		}
		cueSets := make(map[string]map[core.MemoryID]struct{})
		eng.CueIndex().Snapshot(func(cue string, ids []core.MemoryID) {
			set := make(map[core.MemoryID]struct{}, len(ids))
			for _, memID := range ids {
				set[memID] = struct{}{}
			}
			cueSets[cue] = set
		})
		proposals := alias.Propose(cueSets, minJaccard)
		for _, p := range proposals {
			eng.Aliases().Add(p.From, p.To, p.Weight)
		}
		if len(proposals) > 0 {
			log.Printf("tenant %s alias proposal: %d aliases installed", id, len(proposals))
		}
	}
}

func (m *Manager) persistDaemon() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if err := m.supervisor.PersistAll(); err != nil {
				log.Printf("periodic snapshot error: %v", err)
			}
		}
	}
}
