package knowledge

import (
	"math"
	"strings"
	"unicode"
)

// maxEntropyBits is the empirical ceiling for character-level Shannon entropy
// of natural-language text. Scores are normalized against it and clamped, so
// only relative ordering between texts is meaningful, not absolute values.
const maxEntropyBits = 6.6

// Score computes the information-density score for a text span: Shannon
// entropy over the case-folded character distribution, normalized to [0,1].
// Empty text and single-symbol text both score 0.
func Score(text string) float64 {
	runes := []rune(strings.ToLower(text))
	if len(runes) < 2 {
		return 0
	}

	counts := make(map[rune]int, len(runes))
	for _, r := range runes {
		counts[r]++
	}

	total := float64(len(runes))
	var h float64
	for _, n := range counts {
		p := float64(n) / total
		h -= p * math.Log2(p)
	}

	return math.Min(h/maxEntropyBits, 1)
}

// TextMetrics carries the word-level quality signals alongside the primary
// character-level score. Exposed for stats and inspection only; ranking uses
// Score exclusively.
type TextMetrics struct {
	EntropyScore  float64 `json:"entropy_score"`
	WordEntropy   float64 `json:"word_entropy"`
	WordDiversity float64 `json:"word_diversity"`
	WordCount     int     `json:"word_count"`
}

// Metrics computes character- and word-level entropy measures for text.
// Word entropy is normalized by the maximum possible entropy of the observed
// vocabulary, word diversity is the unique/total word ratio.
func Metrics(text string) TextMetrics {
	m := TextMetrics{EntropyScore: Score(text)}

	words := tokenizeWords(text)
	m.WordCount = len(words)
	if len(words) == 0 {
		return m
	}

	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}
	m.WordDiversity = float64(len(counts)) / float64(len(words))

	if len(counts) > 1 {
		total := float64(len(words))
		var h float64
		for _, n := range counts {
			p := float64(n) / total
			h -= p * math.Log2(p)
		}
		m.WordEntropy = math.Min(h/math.Log2(float64(len(counts))), 1)
	}
	return m
}

// tokenizeWords splits text into lowercase alphanumeric word tokens,
// skipping single characters.
func tokenizeWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) > 1 {
			words = append(words, f)
		}
	}
	return words
}
