// Package eval measures extraction accuracy against ground truth: character
// and word error rates, per-field transaction accuracy and detection
// precision/recall.
package eval

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// EditDistance is the Levenshtein distance between two strings, counted in
// runes.
func EditDistance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// wordRuneBase starts the supplementary private use planes, which hold
// 131068 code points.
const wordRuneBase = 0xF0000

// WordEditDistance is the Levenshtein distance between two token sequences.
// Every distinct token is encoded as one private-use rune, so the rune
// distance of the encodings counts whole-word edits.
func WordEditDistance(a, b []string) int {
	codes := make(map[string]rune)
	encode := func(words []string) string {
		var sb strings.Builder
		for _, w := range words {
			r, ok := codes[w]
			if !ok {
				r = rune(wordRuneBase + len(codes))
				codes[w] = r
			}
			sb.WriteRune(r)
		}
		return sb.String()
	}
	return EditDistance(encode(a), encode(b))
}

// CER is the character error rate of hyp against ref: edits divided by the
// reference length in runes. An empty reference scores 0 against an empty
// hypothesis and 1 otherwise.
func CER(ref, hyp string) float64 {
	return errorRate(EditDistance(ref, hyp), utf8.RuneCountInString(ref))
}

// WER is the word error rate over whitespace-separated tokens.
func WER(ref, hyp string) float64 {
	refW := strings.Fields(ref)
	return errorRate(WordEditDistance(refW, strings.Fields(hyp)), len(refW))
}

func errorRate(edits, refLen int) float64 {
	if refLen == 0 {
		if edits == 0 {
			return 0
		}
		return 1
	}
	return float64(edits) / float64(refLen)
}

// CharacterAccuracy is 1 - CER, floored at 0.
func CharacterAccuracy(ref, hyp string) float64 {
	return max(0, 1-CER(ref, hyp))
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func f1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}
