// Package cooccur implements the Co-occurrence Matrix: a symmetric
// cue-to-cue co-occurrence count used strictly for pattern completion, a
// recall modifier kept separate from primary scoring. A "cues that fire
// together, wire together" counter with no decay and no formation
// threshold, just counts.
package cooccur

import (
	"hash/fnv"
	"sort"
	"sync"
)

// DefaultShardCount matches the Cue Index so co-occurrence updates land on
// roughly the same shard count as the structures they accompany.
const DefaultShardCount = 128

// TopK is the default number of completion candidates returned per seed
// cue.
const TopK = 8

// MinCount is the minimum recorded co-occurrence count for a pair to be
// considered for pattern completion; pairs seen fewer times are noise.
const MinCount = 3

type shard struct {
	mu     sync.RWMutex
	counts map[string]map[string]uint32
}

// Matrix is the sharded, symmetric co-occurrence matrix.
type Matrix struct {
	shards []*shard
	mask   uint32
}

// New builds a Matrix with shardCount shards (rounded up to a power of
// two).
func New(shardCount int) *Matrix {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	n := 1
	for n < shardCount {
		n <<= 1
	}
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{counts: make(map[string]map[string]uint32)}
	}
	return &Matrix{shards: shards, mask: uint32(n - 1)}
}

func (m *Matrix) shardFor(cue string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(cue))
	return m.shards[h.Sum32()&m.mask]
}

// RecordCooccurrence bumps the symmetric count for every unordered pair in
// cues by one. Called once per ingested memory over its full cue set
// per ingested memory.
func (m *Matrix) RecordCooccurrence(cues []string) {
	for i := 0; i < len(cues); i++ {
		for j := i + 1; j < len(cues); j++ {
			m.bump(cues[i], cues[j])
			m.bump(cues[j], cues[i])
		}
	}
}

func (m *Matrix) bump(from, to string) {
	sh := m.shardFor(from)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	row, ok := sh.counts[from]
	if !ok {
		row = make(map[string]uint32)
		sh.counts[from] = row
	}
	row[to]++
}

// Count returns the recorded co-occurrence count between from and to (the
// matrix is symmetric by construction, so either order returns the same
// value).
func (m *Matrix) Count(from, to string) uint32 {
	sh := m.shardFor(from)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	row, ok := sh.counts[from]
	if !ok {
		return 0
	}
	return row[to]
}

// Completion is one pattern-completion candidate: a cue related to a seed
// cue, and the strength of that relation.
type Completion struct {
	Cue   string
	Count uint32
}

// TopCompletions returns up to topK cues most strongly co-occurring with
// seed, excluding any cue in exclude, filtered to counts >= minCount and
// ordered by count descending (ties broken lexicographically for
// determinism). A topK <= 0 or minCount == 0 falls back to the package
// defaults TopK/MinCount, so existing zero-value callers keep behaving as
// before a caller started passing tuned values.
func (m *Matrix) TopCompletions(seed string, exclude map[string]struct{}, topK int, minCount uint32) []Completion {
	if topK <= 0 {
		topK = TopK
	}
	if minCount == 0 {
		minCount = MinCount
	}

	sh := m.shardFor(seed)
	sh.mu.RLock()
	row, ok := sh.counts[seed]
	if !ok {
		sh.mu.RUnlock()
		return nil
	}
	out := make([]Completion, 0, len(row))
	for cue, count := range row {
		if count < minCount {
			continue
		}
		if _, skip := exclude[cue]; skip {
			continue
		}
		out = append(out, Completion{Cue: cue, Count: count})
	}
	sh.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Cue < out[j].Cue
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// Remove drops every recorded co-occurrence involving cue, used when a
// memory holding the last reference to a cue is removed.
func (m *Matrix) Remove(cue string) {
	sh := m.shardFor(cue)
	sh.mu.Lock()
	delete(sh.counts, cue)
	sh.mu.Unlock()

	for _, other := range m.shards {
		other.mu.Lock()
		for _, row := range other.counts {
			delete(row, cue)
		}
		other.mu.Unlock()
	}
}

// Snapshot returns the full matrix as a plain nested map, for the Snapshot
// Codec to serialize directly.
func (m *Matrix) Snapshot() map[string]map[string]uint32 {
	out := make(map[string]map[string]uint32)
	for _, sh := range m.shards {
		sh.mu.RLock()
		for from, row := range sh.counts {
			copied := make(map[string]uint32, len(row))
			for to, count := range row {
				copied[to] = count
			}
			out[from] = copied
		}
		sh.mu.RUnlock()
	}
	return out
}

// Restore replaces the matrix's contents with snap, used by the Snapshot
// Codec on load. Only valid against a freshly constructed Matrix.
func (m *Matrix) Restore(snap map[string]map[string]uint32) {
	for from, row := range snap {
		sh := m.shardFor(from)
		sh.mu.Lock()
		copied := make(map[string]uint32, len(row))
		for to, count := range row {
			copied[to] = count
		}
		sh.counts[from] = copied
		sh.mu.Unlock()
	}
}
