package similarity

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Ratio returns 1 - distance/length for the raw strings:
// it only yields 1 for identical input
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// Words compares two strings word by word after normalization,
// pairing each word with its best still unpaired counterpart:
// it's tolerant to case, accents, punctuation and word order
func Words(a, b string) float64 {
	wordsA, wordsB := split(Normalize(a)), split(Normalize(b))
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	total := len(wordsA)
	if len(wordsB) > total {
		total = len(wordsB)
	}
	if len(wordsA) > len(wordsB) {
		wordsA, wordsB = wordsB, wordsA
	}

	var score float64
	for _, word := range wordsA {
		best, bestIndex := 0.0, -1
		for index, candidate := range wordsB {
			if ratio := Ratio(word, candidate); ratio > best {
				best, bestIndex = ratio, index
			}
		}
		if bestIndex >= 0 {
			score += best
			wordsB = append(wordsB[:bestIndex], wordsB[bestIndex+1:]...)
		}
	}
	return score / float64(total)
}

// Normalize lowercases and strips accents
func Normalize(value string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		value)
	if err != nil {
		folded = value
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

func split(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
