// Package lexicon implements the Lexicon Engine: a second instance
// of the same memory+cue-index+co-occurrence machinery as the main engine,
// except its "memories" are rows keyed by canonical cue string (content ==
// the cue itself) and its "cues" are token/bigram cues extracted from the
// content of every real memory tagged with that canonical cue. Training
// and resolution both reduce to ordinary recall.Run calls against this
// engine's own indices: resolution is literally a recall against the
// lexicon engine.
package lexicon

import (
	"github.com/cuemap-dev/cuemap/pkg/cooccur"
	"github.com/cuemap-dev/cuemap/pkg/core"
	"github.com/cuemap-dev/cuemap/pkg/cueindex"
	"github.com/cuemap-dev/cuemap/pkg/memstore"
	"github.com/cuemap-dev/cuemap/pkg/recall"
	"github.com/cuemap-dev/cuemap/pkg/tokenize"
)

// DefaultResolveLimit is the default limit for token-to-cue resolution.
const DefaultResolveLimit = 8

// Lexicon owns its own Memory Store, Cue Index, and Co-occurrence Matrix,
// independently of the main engine: an independently-owned engine
// instance, with no cycles in ownership, only in the schema.
type Lexicon struct {
	memos   *memstore.Store
	cues    *cueindex.Index
	cooccur *cooccur.Matrix
}

// New builds an empty Lexicon with the given shard counts.
func New(shardCount int) *Lexicon {
	return &Lexicon{
		memos:   memstore.New(shardCount),
		cues:    cueindex.New(shardCount),
		cooccur: cooccur.New(shardCount),
	}
}

func (l *Lexicon) indices() recall.Indices {
	return recall.Indices{Cues: l.cues, Memos: l.memos, Cooccur: l.cooccur}
}

// rowID derives a lexicon row's memory ID from its canonical cue by
// prefixing "lex:", so a row is addressable directly from the cue string
// while its content holds the bare cue.
func rowID(canonicalCue string) core.MemoryID {
	return core.MemoryID("lex:" + canonicalCue)
}

// Train implements the background training job: for canonicalCue, it
// ensures a lexicon row exists with content=canonicalCue, then extends its
// cue set with the token/bigram cues derived from content (the main
// memory's content that carried canonicalCue). Calling Train again with
// the same arguments leaves the row's cue set unchanged (tokens already
// present are not duplicated), but it bumps the row's reinforcement count
// and records the token co-occurrences again.
func (l *Lexicon) Train(canonicalCue, content string, now int64) {
	id := rowID(canonicalCue)
	tokenCues := tokenize.Cues(content)
	if len(tokenCues) == 0 {
		return
	}

	if _, ok := l.memos.Get(id); !ok {
		row := &core.Memory{
			ID:        id,
			Content:   canonicalCue,
			CreatedAt: now,
		}
		l.memos.Insert(row)
	}

	l.memos.Reinforce(id, tokenCues, memstore.ReinforceFunc{
		MoveToFront: l.cues.MoveToFront,
		Add:         l.cues.Add,
	})
	l.cooccur.RecordCooccurrence(tokenCues)
}

// Resolution is one canonical-cue candidate returned by Resolve.
type Resolution struct {
	CanonicalCue string
	Score        float64
}

// Resolve implements token-to-cue resolution: tokenize text, then
// run the identical recall algorithm against the lexicon's own indices
// (pattern completion disabled by default, since lexicon co-occurrence
// tracks token pairs, not the main engine's pattern-completion semantics),
// returning up to limit canonical cues ranked by the lexicon's own
// recency+reinforcement ordering.
func (l *Lexicon) Resolve(text string, limit int) []Resolution {
	tokenCues := tokenize.Cues(text)
	if len(tokenCues) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = DefaultResolveLimit
	}

	query := make([]recall.WeightedCue, len(tokenCues))
	for i, c := range tokenCues {
		query[i] = recall.WeightedCue{Cue: c, Weight: 1.0}
	}

	results := recall.Run(l.indices(), query, recall.Options{
		Limit:                    limit,
		DisablePatternCompletion: true,
	}, recall.DefaultTuning())

	out := make([]Resolution, len(results))
	for i, r := range results {
		out[i] = Resolution{CanonicalCue: r.Memory.Content, Score: r.Score}
	}
	return out
}

// ReinforceWinner bumps the reinforcement count of the winning row after a
// resolution, so future ambiguous resolutions favor whichever canonical
// cue has been used most recently: automatic disambiguation by
// recency and reinforcement ordering.
func (l *Lexicon) ReinforceWinner(canonicalCue string) {
	l.memos.Reinforce(rowID(canonicalCue), nil, memstore.ReinforceFunc{
		MoveToFront: l.cues.MoveToFront,
		Add:         l.cues.Add,
	})
}

// Wire manually attaches token as a cue of canonical's row, implementing
// the lexicon surgery API's lexicon.wire endpoint.
func (l *Lexicon) Wire(token, canonical string) {
	id := rowID(canonical)
	if _, ok := l.memos.Get(id); !ok {
		row := &core.Memory{ID: id, Content: canonical}
		l.memos.Insert(row)
	}
	l.memos.Reinforce(id, []string{token}, memstore.ReinforceFunc{
		MoveToFront: l.cues.MoveToFront,
		Add:         l.cues.Add,
	})
}

// Inspect returns the incoming/outgoing cue relationships for a canonical
// cue's lexicon row, backing the lexicon.inspect endpoint: outgoing is
// the row's own token/bigram cues, incoming is every other canonical
// cue's row that shares at least one of those cues.
func (l *Lexicon) Inspect(canonical string) (outgoing []string, incoming []string) {
	row, ok := l.memos.Get(rowID(canonical))
	if !ok {
		return nil, nil
	}
	outgoing = append(outgoing, row.Cues...)

	seen := make(map[string]struct{})
	for _, c := range row.Cues {
		l.cues.IterFrom(c, 0, l.cues.Len(c), func(id core.MemoryID, _ int) bool {
			if id == row.ID {
				return true
			}
			other, ok := l.memos.Get(id)
			if !ok {
				return true
			}
			if _, dup := seen[other.Content]; dup {
				return true
			}
			seen[other.Content] = struct{}{}
			incoming = append(incoming, other.Content)
			return true
		})
	}
	return outgoing, incoming
}

// Memories exposes the underlying Memory Store for the Snapshot Codec.
func (l *Lexicon) Memories() *memstore.Store { return l.memos }

// CueIndexRef exposes the underlying Cue Index for the Snapshot Codec.
func (l *Lexicon) CueIndexRef() *cueindex.Index { return l.cues }

// Cooccurrence exposes the underlying Co-occurrence Matrix for the
// Snapshot Codec.
func (l *Lexicon) Cooccurrence() *cooccur.Matrix { return l.cooccur }
