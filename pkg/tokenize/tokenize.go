// Package tokenize implements the Tokenizer: text to an ordered, deduped
// sequence of tok:<lemma> and phr:<lemma1>_<lemma2> cues, used both to
// auto-derive cues for ingested content and to resolve free-text queries
// through the Lexicon Engine.
//
// Splitting strips everything that is not a letter or number, lowercases,
// and splits on whitespace. A stopword filter and a fixed lemmatization
// table sit on top, since raw tokens are too noisy to use directly as
// cues.
package tokenize

import (
	"regexp"
	"strings"

	"github.com/cuemap-dev/cuemap/pkg/core"
)

var splitRegex = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// stopwords are dropped entirely; they never become tok: or phr: cues and
// never participate in a bigram (a stopword breaks bigram adjacency).
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "had": {}, "has": {},
	"have": {}, "he": {}, "her": {}, "his": {}, "i": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {},
	"our": {}, "she": {}, "so": {}, "that": {}, "the": {}, "their": {},
	"them": {}, "there": {}, "these": {}, "they": {}, "this": {}, "to": {},
	"was": {}, "we": {}, "were": {}, "will": {}, "with": {}, "you": {},
	"your": {},
}

// lemmas is a fixed irregular-form table; anything not listed falls through
// to the suffix-stripping rule in lemmatize.
var lemmas = map[string]string{
	"children": "child",
	"people":   "person",
	"men":      "man",
	"women":    "woman",
	"feet":     "foot",
	"teeth":    "tooth",
	"mice":     "mouse",
	"geese":    "goose",
	"went":     "go",
	"gone":     "go",
	"going":    "go",
	"was":      "be",
	"were":     "be",
	"been":     "be",
	"being":    "be",
	"is":       "be",
	"are":      "be",
	"am":       "be",
	"had":      "have",
	"has":      "have",
	"having":   "have",
	"did":      "do",
	"does":     "do",
	"doing":    "do",
	"better":   "good",
	"best":     "good",
	"worse":    "bad",
	"worst":    "bad",
}

// lemmatize reduces a lowercase token to a stable base form: an irregular
// table lookup first, then a small set of suffix-stripping rules.
func lemmatize(w string) string {
	if l, ok := lemmas[w]; ok {
		return l
	}
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "ing") && len(w) > 5:
		return strings.TrimSuffix(w, "ing")
	case strings.HasSuffix(w, "ed") && len(w) > 4:
		return strings.TrimSuffix(w, "ed")
	case strings.HasSuffix(w, "es") && len(w) > 4:
		return strings.TrimSuffix(w, "es")
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 3:
		return strings.TrimSuffix(w, "s")
	}
	return w
}

// words splits text into raw tokens (strip non-letters, lowercase, split
// on whitespace), keeping single-letter tokens so lemmatize/stopword
// filtering, not length, decides what survives.
func words(text string) []string {
	cleaned := splitRegex.ReplaceAllString(text, " ")
	return strings.Fields(strings.ToLower(cleaned))
}

// Cues tokenizes content into the ordered, deduplicated cue sequence:
// one tok:<lemma> cue per non-stopword word (first occurrence
// order), plus one phr:<lemma1>_<lemma2> cue for every adjacent pair of
// non-stopword words. Empty or all-stopword content yields an empty slice.
func Cues(content string) []string {
	ws := words(content)
	if len(ws) == 0 {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(cue string) {
		if _, ok := seen[cue]; ok {
			return
		}
		seen[cue] = struct{}{}
		out = append(out, cue)
	}

	var prevLemma string
	havePrev := false
	for _, w := range ws {
		if _, stop := stopwords[w]; stop {
			havePrev = false
			continue
		}
		lemma := lemmatize(w)
		lemma = core.Normalize(lemma)
		if lemma == "" {
			havePrev = false
			continue
		}
		add("tok:" + lemma)
		if havePrev {
			add("phr:" + prevLemma + "_" + lemma)
		}
		prevLemma = lemma
		havePrev = true
	}
	return out
}
