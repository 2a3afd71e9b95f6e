// Package phonics scores a spoken transcript against the utterances a
// learner was asked to say.
package phonics

import (
	"slices"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type MatchStatus string

const (
	MatchNone  MatchStatus = "none"
	MatchClose MatchStatus = "close"
	MatchFull  MatchStatus = "match"
)

// maxDistanceRatio is the normalized edit distance still treated as a hit.
const maxDistanceRatio = 0.34

// letterAliases lists how children (and recognizers) tend to render a
// single letter when it is said aloud.
var letterAliases = map[string][]string{
	"a": {"a", "ay", "ah", "uh", "eh"},
	"b": {"b", "bee", "buh", "beh"},
	"c": {"c", "cee", "see", "kuh", "cuh"},
	"d": {"d", "dee", "duh"},
	"e": {"e", "ee", "eh", "ih"},
	"f": {"f", "ef", "eff"},
	"g": {"g", "jee", "geh", "guh"},
	"h": {"h", "aitch", "ha", "huh"},
	"i": {"i", "eye", "ih", "aye"},
	"j": {"j", "jay", "juh"},
	"k": {"k", "kay", "kuh"},
	"l": {"l", "el", "ell", "uhl"},
	"m": {"m", "em", "mmm", "um"},
	"n": {"n", "en", "nnn", "un"},
	"o": {"o", "oh", "aw", "ah"},
	"p": {"p", "pee", "puh"},
	"q": {"q", "cue", "coo", "kuh"},
	"r": {"r", "ar", "err"},
	"s": {"s", "ess", "sss"},
	"t": {"t", "tee", "tuh"},
	"u": {"u", "you", "uh", "oo"},
	"v": {"v", "vee", "vvv"},
	"w": {"w", "doubleyou", "dubya", "wuh"},
	"x": {"x", "ex", "cks"},
	"y": {"y", "why", "yee"},
	"z": {"z", "zee", "zed"},
}

// fold lowercases s and strips combining marks ("café" -> "cafe").
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

func canonicalize(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, fold(s))
}

// tokenize splits folded speech into ascii-letter words.
func tokenize(s string) []string {
	return strings.FieldsFunc(fold(s), func(r rune) bool {
		return r < 'a' || r > 'z'
	})
}

// aliasTargets returns the canonical expected forms plus letter aliases,
// deduplicated, in the order they were listed.
func aliasTargets(expected []string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if _, ok := seen[s]; ok || s == "" {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, u := range expected {
		c := canonicalize(u)
		add(c)
		for _, alias := range letterAliases[c] {
			add(canonicalize(alias))
		}
	}
	return out
}

// Evaluate reports how close spoken is to any of expected.
func Evaluate(spoken string, expected []string) MatchStatus {
	if spoken == "" || len(expected) == 0 {
		return MatchNone
	}
	tokens := tokenize(spoken)
	if len(tokens) == 0 {
		return MatchNone
	}

	candidates := []string{strings.Join(tokens, "")}
	seen := map[string]struct{}{candidates[0]: {}}
	for _, tok := range tokens {
		if _, ok := seen[tok]; !ok {
			seen[tok] = struct{}{}
			candidates = append(candidates, tok)
		}
	}

	targets := aliasTargets(expected)
	for _, c := range candidates {
		if slices.Contains(targets, c) {
			return MatchFull
		}
	}

	for _, c := range candidates {
		for _, target := range targets {
			if len(c) >= 2 && (strings.Contains(target, c) || strings.Contains(c, target)) {
				return MatchClose
			}
			longest := max(len(c), len(target))
			ratio := float64(levenshtein.ComputeDistance(c, target)) / float64(max(1, longest))
			if ratio <= maxDistanceRatio {
				// letters and CVC words are too short to be "close"
				if longest <= 3 {
					return MatchFull
				}
				return MatchClose
			}
		}
	}
	return MatchNone
}
