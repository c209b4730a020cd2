package core

import (
	"strings"
	"time"
)

// Memory is an immutable-content record with mutable rank and salience
// fields. After creation, reinforcement and salience recomputation update
// the rank fields, cues are only ever appended (on reinforcement, or by
// memstore.AddCue enrichment), and memstore.JoinEpisode may set EpisodeID;
// content and created_at never change.
type Memory struct {
	ID                    MemoryID  `msgpack:"id"`
	Content               string    `msgpack:"content"`
	Cues                  []string  `msgpack:"cues"`
	CreatedAt             int64     `msgpack:"created_at"`
	ReinforcementCount    uint64    `msgpack:"reinforcement_count"`
	SalienceScore         float64   `msgpack:"salience_score"`
	EpisodeID             string    `msgpack:"episode_id,omitempty"`
	IsConsolidatedSummary bool      `msgpack:"is_consolidated_summary"`
}

// NewMemory constructs a Memory with the invariant fields set. cues must
// already be normalized canonical cue strings.
func NewMemory(content string, cues []string, createdAt int64) *Memory {
	return &Memory{
		ID:        NewMemoryID(),
		Content:   content,
		Cues:      dedupeCues(cues),
		CreatedAt: createdAt,
	}
}

func dedupeCues(cues []string) []string {
	seen := make(map[string]struct{}, len(cues))
	out := make([]string, 0, len(cues))
	for _, c := range cues {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// HasCue reports whether the memory currently carries cue c.
func (m *Memory) HasCue(c string) bool {
	for _, existing := range m.Cues {
		if existing == c {
			return true
		}
	}
	return false
}

// WordCount returns the number of whitespace-delimited words in Content,
// used by salience's cue_density term.
func (m *Memory) WordCount() int {
	fields := strings.Fields(m.Content)
	return len(fields)
}

// RecomputeSalience recomputes the salience score:
//
//	cue_density = distinct_cues(m) / word_count(m.content), capped at 3.0
//	salience    = cue_density + (len(cues) > 5 ? 0.5 : 0) + 0.1*reinforcement_count
//
// It is called on write and on every reinforcement, never per query.
func (m *Memory) RecomputeSalience() {
	words := m.WordCount()
	density := 0.0
	if words > 0 {
		density = float64(len(m.Cues)) / float64(words)
		if density > 3.0 {
			density = 3.0
		}
	}
	bonus := 0.0
	if len(m.Cues) > 5 {
		bonus = 0.5
	}
	m.SalienceScore = density + bonus + 0.1*float64(m.ReinforcementCount)
}
