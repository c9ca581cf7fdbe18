package knowledge

import (
	"math"
	"strings"
	"testing"
)

func TestScoreBounds(t *testing.T) {
	texts := []string{
		"a",
		"aa",
		"The quick brown fox jumps over the lazy dog",
		strings.Repeat("abcdefghijklmnopqrstuvwxyz0123456789 ", 10),
		"日本語のテキストもスコアが範囲内に収まる",
	}
	for _, text := range texts {
		s := Score(text)
		if s < 0 || s > 1 {
			t.Errorf("Score(%q) = %f, out of [0,1]", text, s)
		}
	}
}

func TestScoreEdgeCases(t *testing.T) {
	if s := Score(""); s != 0 {
		t.Errorf("empty text: got %f, want 0", s)
	}
	if s := Score("x"); s != 0 {
		t.Errorf("single symbol: got %f, want 0", s)
	}
	// Single-symbol distribution has zero entropy regardless of length.
	if s := Score("aaaaaaaa"); s != 0 {
		t.Errorf("repeated symbol: got %f, want 0", s)
	}
}

func TestScoreCaseFolded(t *testing.T) {
	if Score("AbAbAbAb") != Score("abababab") {
		t.Error("score must be case-insensitive")
	}
}

func TestScoreRelativeOrdering(t *testing.T) {
	low := Score("aaaaabbbbb")
	high := Score("the quick brown fox jumps over the lazy dog")
	if high <= low {
		t.Errorf("varied text (%f) should outscore repetitive text (%f)", high, low)
	}
}

// Pins the exact normalization so ranking regressions are caught: a uniform
// two-symbol distribution has exactly 1 bit of entropy.
func TestScorePinned(t *testing.T) {
	got := Score("abab")
	want := 1.0 / maxEntropyBits
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Score(abab) = %f, want %f", got, want)
	}
}

func TestMetrics(t *testing.T) {
	m := Metrics("alpha beta gamma alpha")
	if m.WordCount != 4 {
		t.Errorf("word count = %d, want 4", m.WordCount)
	}
	if math.Abs(m.WordDiversity-0.75) > 1e-9 {
		t.Errorf("diversity = %f, want 0.75", m.WordDiversity)
	}
	if m.WordEntropy <= 0 || m.WordEntropy > 1 {
		t.Errorf("word entropy = %f, out of (0,1]", m.WordEntropy)
	}

	empty := Metrics("")
	if empty.WordCount != 0 || empty.WordEntropy != 0 || empty.WordDiversity != 0 {
		t.Errorf("empty text metrics not zeroed: %+v", empty)
	}
}
