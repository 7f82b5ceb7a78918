package engine

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// maxOverlapWords is the longest word-sequence overlap the dedup search
	// tries. Candidates are checked from this length downward so the longest
	// exact match wins.
	maxOverlapWords = 10

	// minOverlapWords is the shortest overlap worth trimming. Single-word
	// matches are too likely to be coincidence.
	minOverlapWords = 2

	// nearMissSimilarity is the Jaro-Winkler score above which two boundary
	// word spans are considered the same speech transcribed differently.
	// Near misses are surfaced in logs and metrics but never trimmed: the
	// dedup only removes exact matches, so a disagreement between chunks is
	// visible in the transcript instead of being silently rewritten.
	nearMissSimilarity = 0.92
)

// mergeChunks concatenates consecutive chunk transcripts, stripping the
// duplicated word span at each boundary. For each pair of neighbours the
// longest suffix-of-previous / prefix-of-current word sequence that matches
// exactly (case-insensitive) is removed from the current chunk. When no exact
// match exists at any candidate length the chunks are concatenated untrimmed.
//
// onBoundary, when non-nil, is invoked once per boundary with the overlap
// length that was removed (0 when none matched) and whether a fuzzy match was
// detected in its place.
func mergeChunks(texts []string, onBoundary func(overlap int, nearMiss bool)) string {
	var merged []string
	for _, t := range texts {
		words := strings.Fields(t)
		if len(words) == 0 {
			continue
		}
		if len(merged) == 0 {
			merged = words
			continue
		}
		n := overlapLen(merged, words)
		near := false
		if n == 0 {
			near = boundaryNearMiss(merged, words)
		}
		if onBoundary != nil {
			onBoundary(n, near)
		}
		merged = append(merged, words[n:]...)
	}
	return strings.TrimSpace(strings.Join(merged, " "))
}

// overlapLen returns the length of the longest word sequence that is both a
// suffix of prev and a prefix of next, comparing case-insensitively and
// scanning candidate lengths from longest to shortest. Returns 0 when no
// candidate matches.
func overlapLen(prev, next []string) int {
	for n := maxOverlapWords; n >= minOverlapWords; n-- {
		if n > len(prev) || n > len(next) {
			continue
		}
		if wordsEqualFold(prev[len(prev)-n:], next[:n]) {
			return n
		}
	}
	return 0
}

func wordsEqualFold(a, b []string) bool {
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

// boundaryNearMiss reports whether any candidate boundary span scores above
// the similarity threshold without matching exactly. ASR output commonly
// disagrees with itself at chunk edges ("gonna" vs "going to"), which defeats
// the exact-match dedup; this gives the disagreement a signal without
// inventing a correction.
func boundaryNearMiss(prev, next []string) bool {
	for n := maxOverlapWords; n >= minOverlapWords; n-- {
		if n > len(prev) || n > len(next) {
			continue
		}
		a := strings.ToLower(strings.Join(prev[len(prev)-n:], " "))
		b := strings.ToLower(strings.Join(next[:n], " "))
		if matchr.JaroWinkler(a, b, false) >= nearMissSimilarity {
			return true
		}
	}
	return false
}
