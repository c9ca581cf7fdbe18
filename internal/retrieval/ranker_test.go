package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/recall/internal/knowledge"
)

// fakeEmbedder returns a fixed vector, or fails when down.
type fakeEmbedder struct {
	down bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.down {
		return nil, fmt.Errorf("embedding: %w: connection refused", knowledge.ErrUnavailable)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

// fakeStore returns canned hits regardless of the query vector.
type fakeStore struct {
	hits []Hit
	err  error
}

func (f *fakeStore) Search(ctx context.Context, vector []float32, topM uint64, filter map[string]string, minScore float32) ([]Hit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

// hit builds a search hit with a hand-rolled payload so tests control the
// stored entropy score instead of recomputing it.
func hit(id, text string, similarity float32, entropy float64, meta map[string]string) Hit {
	payload := map[string]string{
		payloadChunkID:     id,
		payloadContent:     text,
		payloadFingerprint: knowledge.Fingerprint(text),
		payloadEntropy:     fmt.Sprintf("%g", entropy),
	}
	for k, v := range meta {
		payload[k] = v
	}
	return Hit{ID: id, Score: similarity, Payload: payload}
}

func newTestRanker(store SearchStore, opts Options) *Ranker {
	return NewRanker(&fakeEmbedder{}, store, opts, zap.NewNop())
}

func TestRetrieveValidation(t *testing.T) {
	r := newTestRanker(&fakeStore{}, Options{})
	if _, err := r.Retrieve(context.Background(), "  ", 3, nil); !errors.Is(err, knowledge.ErrValidation) {
		t.Errorf("empty query: got %v, want ErrValidation", err)
	}
	if _, err := r.Retrieve(context.Background(), "q", 0, nil); !errors.Is(err, knowledge.ErrValidation) {
		t.Errorf("k=0: got %v, want ErrValidation", err)
	}
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	r := newTestRanker(&fakeStore{}, Options{})
	results, err := r.Retrieve(context.Background(), "anything", 5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestRetrieveEmbedderDown(t *testing.T) {
	r := NewRanker(&fakeEmbedder{down: true}, &fakeStore{}, Options{}, zap.NewNop())
	if _, err := r.Retrieve(context.Background(), "q", 3, nil); !errors.Is(err, knowledge.ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
}

// Pins the exact ranking formula output for fixed inputs. The formula is a
// tunable heuristic; this guards against accidental drift, not correctness.
func TestFinalScorePinned(t *testing.T) {
	cases := []struct {
		sim, entropy, want float64
	}{
		{1.0, 1.0, 1.0},
		{0.8, 0.5, 0.6},
		{0.5, 0.0, 0.25},
		{0.0, 0.9, 0.0},
	}
	for _, c := range cases {
		if got := FinalScore(c.sim, c.entropy); math.Abs(got-c.want) > 1e-12 {
			t.Errorf("FinalScore(%g, %g) = %g, want %g", c.sim, c.entropy, got, c.want)
		}
	}
}

func TestRetrieveOrdering(t *testing.T) {
	// Dense text with lower similarity outranks sparse text with higher
	// similarity: 0.7*(1+0.9)/2 = 0.665 > 0.8*(1+0.1)/2 = 0.44.
	store := &fakeStore{hits: []Hit{
		hit("sparse", "aaa bbb aaa", 0.8, 0.1, nil),
		hit("dense", "the tide charts disagree", 0.7, 0.9, nil),
	}}
	r := newTestRanker(store, Options{})

	results, err := r.Retrieve(context.Background(), "tides", 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Chunk.ID != "dense" {
		t.Errorf("first result = %s, want dense", results[0].Chunk.ID)
	}
	if math.Abs(results[0].FinalScore-0.665) > 1e-6 {
		t.Errorf("final score = %g, want 0.665", results[0].FinalScore)
	}
}

func TestRetrieveTieBreakByID(t *testing.T) {
	// Identical similarity and stored entropy, so finalScore ties exactly.
	// Feed in descending-id order and expect ascending ids back.
	store := &fakeStore{hits: []Hit{
		hit("bbb", "second candidate text", 0.6, 0.4, nil),
		hit("aaa", "first candidate words", 0.6, 0.4, nil),
	}}
	r := newTestRanker(store, Options{})

	for i := 0; i < 5; i++ {
		results, err := r.Retrieve(context.Background(), "q", 2, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 2 || results[0].Chunk.ID != "aaa" || results[1].Chunk.ID != "bbb" {
			t.Fatalf("run %d: got unstable order %v", i, ids(results))
		}
	}
}

func TestRetrieveRedundancy(t *testing.T) {
	// Two near-identical restatements plus two unique candidates: at most
	// one of the pair may appear, and the stronger one wins.
	store := &fakeStore{hits: []Hit{
		hit("dup-weak", "the sky is blue", 0.5, 0.5, nil),
		hit("dup-strong", "The Sky is   BLUE", 0.9, 0.5, nil),
		hit("other-1", "grass tends toward green", 0.6, 0.5, nil),
		hit("other-2", "snow is certainly white", 0.55, 0.5, nil),
	}}
	r := newTestRanker(store, Options{})

	results, err := r.Retrieve(context.Background(), "colors", 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Chunk.ID != "dup-strong" {
		t.Errorf("strongest restatement should survive, got %v", ids(results))
	}
	for _, res := range results {
		if res.Chunk.ID == "dup-weak" {
			t.Errorf("duplicate leaked into results: %v", ids(results))
		}
	}
}

func TestRetrieveMinSimilarity(t *testing.T) {
	store := &fakeStore{hits: []Hit{
		hit("low", "barely related text", 0.1, 0.9, nil),
	}}
	r := newTestRanker(store, Options{MinSimilarity: 0.25})

	results, err := r.Retrieve(context.Background(), "q", 3, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("below-threshold candidates must be dropped, got %v", ids(results))
	}
}

func TestRetrieveMetadataFilter(t *testing.T) {
	store := &fakeStore{hits: []Hit{
		hit("fact", "water boils at one hundred", 0.9, 0.5, map[string]string{"category": "fact"}),
		hit("note", "random meeting notes here", 0.8, 0.5, map[string]string{"category": "note"}),
	}}
	r := newTestRanker(store, Options{})

	results, err := r.Retrieve(context.Background(), "q", 5, map[string]string{"category": "fact"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "fact" {
		t.Errorf("filter not applied, got %v", ids(results))
	}
}

func TestRetrieveTruncatesToK(t *testing.T) {
	var hits []Hit
	for i := 0; i < 10; i++ {
		hits = append(hits, hit(
			fmt.Sprintf("c%02d", i),
			fmt.Sprintf("unique candidate number %d with varied words", i),
			0.9-float32(i)*0.01, 0.5, nil))
	}
	r := newTestRanker(&fakeStore{hits: hits}, Options{})

	results, err := r.Retrieve(context.Background(), "q", 3, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestRetrieveHybridBoost(t *testing.T) {
	// "exact" has lower semantic score but contains the query words.
	store := &fakeStore{hits: []Hit{
		hit("semantic", "unrelated but cosine-close text", 0.9, 0.5, nil),
		hit("exact", "tide charts for the harbor", 0.6, 0.5, nil),
	}}
	r := newTestRanker(store, Options{})

	results, err := r.RetrieveHybrid(context.Background(), "tide charts", 2, nil, 0.6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 || results[0].Chunk.ID != "exact" {
		t.Errorf("keyword boost not applied, got %v", ids(results))
	}

	// boost=0 keeps pure semantic order.
	results, err = r.RetrieveHybrid(context.Background(), "tide charts", 2, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Chunk.ID != "semantic" {
		t.Errorf("zero boost changed ranking, got %v", ids(results))
	}
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Chunk.ID
	}
	return out
}
