// Package similarity scores how faithfully a transcript matches the original
// script, as a word-level accuracy percentage.
package similarity

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Words of at least this length tolerate a single-character spelling variance
// before counting as a substitution. Short words must match exactly, otherwise
// "to"/"too" style confusions would be forgiven.
const fuzzyMinWordLen = 4

// Scorer implements word-level transcript accuracy. Comparison is case- and
// punctuation-insensitive; near-matches on longer words are treated as equal to
// absorb transcription spelling variance.
type Scorer struct{}

// NewScorer creates a Scorer.
func NewScorer() Scorer {
	return Scorer{}
}

// Score returns the word-level accuracy of transcript against original as a
// percentage in [0, 100]. An empty original with an empty transcript scores
// 100; an empty original with spoken content scores 0.
func (Scorer) Score(original, transcript string) float64 {
	ref := Normalize(original)
	hyp := Normalize(transcript)

	if len(ref) == 0 {
		if len(hyp) == 0 {
			return 100.0
		}

		return 0.0
	}

	dist := wordEditDistance(ref, hyp)

	accuracy := (1.0 - float64(dist)/float64(len(ref))) * 100.0
	if accuracy < 0 {
		accuracy = 0
	}

	return accuracy
}

// Normalize lowercases the text, strips punctuation, and splits it into words.
func Normalize(text string) []string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		case r == '\'':
			// Keep apostrophes so contractions stay one word.
			return r
		default:
			return ' '
		}
	}, text)

	return strings.Fields(mapped)
}

// wordEditDistance is a Levenshtein distance over words, where two words match
// when equal or within one character edit for longer words.
func wordEditDistance(ref, hyp []string) int {
	prev := make([]int, len(hyp)+1)
	curr := make([]int, len(hyp)+1)

	for j := 0; j <= len(hyp); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ref); i++ {
		curr[0] = i

		for j := 1; j <= len(hyp); j++ {
			cost := 1
			if wordsMatch(ref[i-1], hyp[j-1]) {
				cost = 0
			}

			curr[j] = minOf(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}

		prev, curr = curr, prev
	}

	return prev[len(hyp)]
}

func wordsMatch(a, b string) bool {
	if a == b {
		return true
	}

	if len(a) < fuzzyMinWordLen || len(b) < fuzzyMinWordLen {
		return false
	}

	return levenshtein.ComputeDistance(a, b) <= 1
}

func minOf(a, b, c int) int {
	if b < a {
		a = b
	}

	if c < a {
		a = c
	}

	return a
}
