// Package memstore implements the Memory Store: a sharded map from memory
// ID to Memory, with reinforcement that recomputes salience and promotes
// every current cue to the front of the Cue Index.
package memstore

import (
	"hash/fnv"
	"sync"

	"github.com/cuemap-dev/cuemap/pkg/core"
)

// ShardCount mirrors the Cue Index's default; the two stores are sharded
// independently (a memory's shard and its cues' shards need not line up).
const ShardCount = 128

type shard struct {
	mu   sync.RWMutex
	byID map[core.MemoryID]*core.Memory
}

// Store is the sharded Memory Store.
type Store struct {
	shards []*shard
	mask   uint32
}

// New builds a Memory Store with shardCount shards (rounded up to a power
// of two).
func New(shardCount int) *Store {
	if shardCount <= 0 {
		shardCount = ShardCount
	}
	n := 1
	for n < shardCount {
		n <<= 1
	}
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{byID: make(map[core.MemoryID]*core.Memory)}
	}
	return &Store{shards: shards, mask: uint32(n - 1)}
}

func (s *Store) shardFor(id core.MemoryID) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()&s.mask]
}

// Insert adds m to the store. m.ID must not already be present.
func (s *Store) Insert(m *core.Memory) {
	sh := s.shardFor(m.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.byID[m.ID] = m
}

// Get returns the memory with the given ID, or (nil, false).
func (s *Store) Get(id core.MemoryID) (*core.Memory, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	m, ok := sh.byID[id]
	return m, ok
}

// Remove deletes the memory with the given ID.
func (s *Store) Remove(id core.MemoryID) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.byID, id)
}

// Len returns the total number of memories across all shards.
func (s *Store) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.byID)
		sh.mu.RUnlock()
	}
	return total
}

// Range calls visit for every memory in the store. Iteration order is
// unspecified and visit must not mutate the store.
func (s *Store) Range(visit func(*core.Memory) bool) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, m := range sh.byID {
			if !visit(m) {
				sh.mu.RUnlock()
				return
			}
		}
		sh.mu.RUnlock()
	}
}

// ReinforceFunc is called by Reinforce for every cue that must be promoted
// (moved to front) and, for newly added extra cues, added to the Cue Index.
// It decouples memstore from cueindex so the two packages have no import
// cycle; the caller (pkg/engine) supplies the index operations.
type ReinforceFunc struct {
	MoveToFront func(cue string, id core.MemoryID)
	Add         func(cue string, id core.MemoryID)
}

// Reinforce increments reinforcement_count, recomputes salience, appends any
// new extraCues to the memory's cue set, and moves every current cue
// (including newly-added ones) to the front of its Cue Index list.
func (s *Store) Reinforce(id core.MemoryID, extraCues []string, idx ReinforceFunc) (*core.Memory, bool) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	m, ok := sh.byID[id]
	if !ok {
		sh.mu.Unlock()
		return nil, false
	}

	for _, c := range extraCues {
		if c == "" || m.HasCue(c) {
			continue
		}
		m.Cues = append(m.Cues, c)
		if idx.Add != nil {
			idx.Add(c, id)
		}
	}
	m.ReinforcementCount++
	m.RecomputeSalience()
	cues := append([]string(nil), m.Cues...)
	sh.mu.Unlock()

	if idx.MoveToFront != nil {
		for _, c := range cues {
			idx.MoveToFront(c, id)
		}
	}

	return m, true
}

// JoinEpisode assigns episodeID to id's memory if it does not already
// belong to an episode, and returns the episode ID now in effect — the
// memory's existing one if it was already grouped, episodeID otherwise —
// along with whether id was found. Used to make two memories share one
// episode regardless of which one already had an ID.
func (s *Store) JoinEpisode(id core.MemoryID, episodeID string) (string, bool) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	m, ok := sh.byID[id]
	if !ok {
		return "", false
	}
	if m.EpisodeID == "" {
		m.EpisodeID = episodeID
	}
	return m.EpisodeID, true
}

// AddCue appends cue to id's memory if not already present, registering it
// in the caller's Cue Index via indexAdd (which may be nil). Unlike
// Reinforce it does not bump reinforcement_count or touch recency — it is
// for enrichment that happens beside, not because of, a reinforcement:
// the ProposeCues job and episode-tagging both add a cue to an
// already-inserted memory this way.
func (s *Store) AddCue(id core.MemoryID, cue string, indexAdd func(cue string, id core.MemoryID)) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	m, ok := sh.byID[id]
	if !ok {
		return false
	}
	if cue == "" || m.HasCue(cue) {
		return ok
	}
	m.Cues = append(m.Cues, cue)
	if indexAdd != nil {
		indexAdd(cue, id)
	}
	return true
}
