// Package cueindex implements the Cue Index: a sharded map from cue string
// to an ordered sequence of memory IDs supporting append, remove, O(1)
// move-to-front, and O(1) position/length lookups.
//
// The ordered sequence is backed by a doubly-linked list
// (github.com/bahlo/generic-list-go, a generic port of container/list) plus
// a map from memory ID to list element. Add, Remove, and MoveToFront
// are all true O(1): they splice a
// list node without touching any other node.
//
// PositionOf is exact for the front of the list (MoveToFront always makes
// its target the new front) and otherwise O(1) via a cached ordinal that is
// lazily renumbered in a single O(n) pass once enough Add, Remove, and
// MoveToFront calls have made the cache stale. A renumber is triggered only
// when the number of untracked changes exceeds len/4, keeping Add, Remove,
// and MoveToFront all O(1) amortized. IterFrom reports exact positions for
// the entries it walks without reading or updating the cache.
package cueindex

import (
	"fmt"
	"hash/fnv"
	"sync"

	list "github.com/bahlo/generic-list-go"
	"github.com/klauspost/cpuid/v2"

	"github.com/cuemap-dev/cuemap/pkg/core"
)

// DefaultShardCount is the floor of autoShardCount: the automatic default
// never picks fewer shards than this, even on a single-core machine. An
// explicit shardCount passed to New is used as given (rounded up to a power
// of two).
const DefaultShardCount = 128

// shardsPerCore scales the detected-core shard default; cue lookups are
// read-heavy and short-held, so favoring more shards over fewer costs little
// beyond map overhead.
const shardsPerCore = 16

// autoShardCount picks a default shard count from detected CPU topology:
// DefaultShardCount, or logical-core-count * shardsPerCore rounded up to a
// power of two, whichever is larger.
func autoShardCount() int {
	cores := cpuid.CPU.LogicalCores()
	if cores <= 0 {
		cores = 1
	}
	n := cores * shardsPerCore
	if n < DefaultShardCount {
		n = DefaultShardCount
	}
	return n
}

type entry struct {
	lst      *list.List[core.MemoryID]
	nodes    map[core.MemoryID]*list.Element[core.MemoryID]
	ordCache map[core.MemoryID]int
	dirty    int
}

func newEntry() *entry {
	return &entry{
		lst:      list.New[core.MemoryID](),
		nodes:    make(map[core.MemoryID]*list.Element[core.MemoryID]),
		ordCache: make(map[core.MemoryID]int),
	}
}

func (e *entry) renumber() {
	i := 0
	for el := e.lst.Front(); el != nil; el = el.Next() {
		e.ordCache[el.Value] = i
		i++
	}
	e.dirty = 0
}

// shard owns one slice of the cue keyspace behind a single RWMutex. Readers
// on one shard never block writers on another.
type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func newShard() *shard {
	return &shard{entries: make(map[string]*entry)}
}

// Index is the sharded Cue Index.
type Index struct {
	shards []*shard
	mask   uint32
}

// New builds a Cue Index with shardCount shards. shardCount is rounded up to
// the next power of two so shard selection can use a mask instead of a
// modulo. A shardCount <= 0 is replaced by autoShardCount's
// CPU-topology-derived default rather than a single fixed constant.
func New(shardCount int) *Index {
	if shardCount <= 0 {
		shardCount = autoShardCount()
	}
	n := 1
	for n < shardCount {
		n <<= 1
	}
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = newShard()
	}
	return &Index{shards: shards, mask: uint32(n - 1)}
}

func (idx *Index) shardFor(cue string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(cue))
	return idx.shards[h.Sum32()&idx.mask]
}

// Add appends id to the front of cue's sequence. No-op if id is already
// present (it is not moved).
func (idx *Index) Add(cue string, id core.MemoryID) {
	sh := idx.shardFor(cue)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[cue]
	if !ok {
		e = newEntry()
		sh.entries[cue] = e
	}
	if _, exists := e.nodes[id]; exists {
		return
	}
	el := e.lst.PushFront(id)
	e.nodes[id] = el
	e.ordCache[id] = 0
	e.dirty++
	if e.dirty > e.lst.Len()/4 {
		e.renumber()
	}
}

// Remove deletes id from cue's sequence. The cue entry itself is removed
// once empty: a cue-index entry exists only while at least one memory
// references the cue.
func (idx *Index) Remove(cue string, id core.MemoryID) {
	sh := idx.shardFor(cue)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[cue]
	if !ok {
		return
	}
	el, ok := e.nodes[id]
	if !ok {
		return
	}
	e.lst.Remove(el)
	delete(e.nodes, id)
	delete(e.ordCache, id)
	e.dirty++
	if e.lst.Len() == 0 {
		delete(sh.entries, cue)
		return
	}
	if e.dirty > e.lst.Len()/4 {
		e.renumber()
	}
}

// MoveToFront promotes id to position 0 of cue's sequence in O(1). No-op if
// id is not present.
func (idx *Index) MoveToFront(cue string, id core.MemoryID) {
	sh := idx.shardFor(cue)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[cue]
	if !ok {
		return
	}
	el, ok := e.nodes[id]
	if !ok {
		return
	}
	if e.lst.Front() == el {
		return
	}
	e.lst.MoveToFront(el)
	e.ordCache[id] = 0
	e.dirty++
	if e.dirty > e.lst.Len()/4 {
		e.renumber()
	}
}

// PositionOf returns the 0-based position of id within cue's sequence, and
// whether id is present at all. Position 0 is always exact (it is checked
// directly against the list's front node). Other positions are served from
// a cached ordinal that Add/Remove/MoveToFront keep within len/4 of exact by
// triggering a full O(n) renumber once that many unsynced moves accumulate
// — see the package doc for why this, not a per-call renumber, gives the
// right O(1)/amortized-O(1) split.
func (idx *Index) PositionOf(cue string, id core.MemoryID) (int, bool) {
	sh := idx.shardFor(cue)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[cue]
	if !ok {
		return 0, false
	}
	el, ok := e.nodes[id]
	if !ok {
		return 0, false
	}
	if e.lst.Front() == el {
		return 0, true
	}
	return e.ordCache[id], true
}

// Len returns the number of memory IDs currently indexed under cue.
func (idx *Index) Len(cue string) int {
	sh := idx.shardFor(cue)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entries[cue]
	if !ok {
		return 0
	}
	return e.lst.Len()
}

// IterFrom calls visit(id, position) for every memory ID in cue's sequence
// at positions [start, end), front-to-back, stopping early if visit returns
// false. It is also how the recall engine resolves exact positions for the
// seed cue in a single O(seed length) scan for selectivity scans.
func (idx *Index) IterFrom(cue string, start, end int, visit func(id core.MemoryID, position int) bool) {
	sh := idx.shardFor(cue)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[cue]
	if !ok {
		return
	}
	pos := 0
	for el := e.lst.Front(); el != nil; el = el.Next() {
		if pos >= end {
			return
		}
		if pos >= start {
			if !visit(el.Value, pos) {
				return
			}
		}
		pos++
	}
}

// Contains reports whether id is indexed under cue, without exposing its
// position.
func (idx *Index) Contains(cue string, id core.MemoryID) bool {
	sh := idx.shardFor(cue)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entries[cue]
	if !ok {
		return false
	}
	_, ok = e.nodes[id]
	return ok
}

// String is a debugging aid used by tests.
func (idx *Index) String() string {
	return fmt.Sprintf("cueindex.Index{shards=%d}", len(idx.shards))
}

// CueCount returns the number of distinct cues currently indexed, used by
// the stats endpoint.
func (idx *Index) CueCount() int {
	total := 0
	for _, sh := range idx.shards {
		sh.mu.RLock()
		total += len(sh.entries)
		sh.mu.RUnlock()
	}
	return total
}

// Snapshot calls visit once per cue currently indexed, with its full
// front-to-back memory-ID ordering. Used by the Snapshot Codec to dump
// exact recency order rather than replaying Add calls (which would lose
// the original insertion order relative to reinforcement history).
func (idx *Index) Snapshot(visit func(cue string, ids []core.MemoryID)) {
	for _, sh := range idx.shards {
		sh.mu.RLock()
		for cue, e := range sh.entries {
			ids := make([]core.MemoryID, 0, e.lst.Len())
			for el := e.lst.Front(); el != nil; el = el.Next() {
				ids = append(ids, el.Value)
			}
			visit(cue, ids)
		}
		sh.mu.RUnlock()
	}
}

// Restore rebuilds cue's sequence from ids, given already in front-to-back
// order, used by the Snapshot Codec on load. cue must not already have an
// entry (Restore is only valid against a freshly constructed Index).
func (idx *Index) Restore(cue string, ids []core.MemoryID) {
	if len(ids) == 0 {
		return
	}
	sh := idx.shardFor(cue)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e := newEntry()
	sh.entries[cue] = e
	for i, id := range ids {
		el := e.lst.PushBack(id)
		e.nodes[id] = el
		e.ordCache[id] = i
	}
}
