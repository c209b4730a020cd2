package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// allowedCueRune reports whether r survives normalization. The kept set is
// [a-z0-9_:./-], matching the cue grammar used by tok:/phr:/episode: prefixes.
func allowedCueRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == ':' || r == '.' || r == '/' || r == '-':
		return true
	}
	return false
}

// Normalize canonicalizes a cue or token string: NFKC fold, lowercase, collapse
// internal whitespace to single "-" separators is NOT performed — whitespace is
// simply stripped along with every other disallowed rune, so "Pay Ment"
// normalizes to "payment" while "Pay-Ment" keeps its hyphen as "pay-ment". Leading and
// trailing space is trimmed first so interior collapsing never invents a
// boundary character.
//
// Normalize is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	lastWasSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			lastWasSpace = true
			continue
		}
		if lastWasSpace && b.Len() > 0 {
			// Collapsed internal whitespace is dropped rather than kept as a
			// literal space, since " " is outside the allowed cue alphabet.
			lastWasSpace = false
		}
		if allowedCueRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
