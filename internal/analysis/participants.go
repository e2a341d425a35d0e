package analysis

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Thresholds for merging participant spellings. A pair whose Double Metaphone
// codes overlap needs phoneticThreshold Jaro-Winkler similarity; a pair
// without phonetic overlap needs the stricter fuzzyThreshold.
const (
	phoneticThreshold = 0.85
	fuzzyThreshold    = 0.92
)

// dedupeNames merges spelling variants of the same participant that speech
// recognition tends to produce ("Jon" and "John", "Sara" and "Sarah"). The
// first occurrence keeps its position; when two names merge the longer
// spelling wins since it usually carries the surname.
func dedupeNames(names []string) []string {
	type entry struct {
		display string
		lower   string
		tokens  []string
		codes   map[string]struct{}
	}
	var kept []entry

outer:
	for _, n := range names {
		n = strings.Join(strings.Fields(n), " ")
		if n == "" {
			continue
		}
		lower := strings.ToLower(n)
		tokens := strings.Fields(lower)
		codes := metaphoneCodes(tokens)

		for i := range kept {
			k := &kept[i]
			if k.lower == lower || sameParticipant(tokens, k.tokens, lower, k.lower, codes, k.codes) {
				if len(n) > len(k.display) {
					*k = entry{display: n, lower: lower, tokens: tokens, codes: codes}
				}
				continue outer
			}
		}
		kept = append(kept, entry{display: n, lower: lower, tokens: tokens, codes: codes})
	}

	out := make([]string, len(kept))
	for i, k := range kept {
		out[i] = k.display
	}
	return out
}

func sameParticipant(aTokens, bTokens []string, a, b string, aCodes, bCodes map[string]struct{}) bool {
	score := similarity(aTokens, bTokens, a, b)
	if overlaps(aCodes, bCodes) {
		return score >= phoneticThreshold
	}
	return score >= fuzzyThreshold
}

// metaphoneCodes returns the union of the primary and secondary Double
// Metaphone codes of every token.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the Jaro-Winkler score of the full names, or of the first
// tokens when both names have more than one token and share a surname
// spelling.
func similarity(aTokens, bTokens []string, a, b string) float64 {
	score := matchr.JaroWinkler(a, b, false)
	if len(aTokens) > 1 && len(bTokens) > 1 && aTokens[len(aTokens)-1] == bTokens[len(bTokens)-1] {
		if s := matchr.JaroWinkler(aTokens[0], bTokens[0], false); s > score {
			score = s
		}
	}
	return score
}
