package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nidhogg/recall/internal/embedding"
	"github.com/nidhogg/recall/internal/knowledge"
)

// Hit is a raw similarity-search result.
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]string
}

// SearchStore is the external similarity-search capability. Given a query
// vector it returns the top-M stored vectors with similarity scores.
type SearchStore interface {
	Search(ctx context.Context, vector []float32, topM uint64, filter map[string]string, minScore float32) ([]Hit, error)
}

// Result is produced per query and never persisted.
type Result struct {
	Chunk      *knowledge.Chunk `json:"chunk"`
	Similarity float64          `json:"similarity"`
	FinalScore float64          `json:"final_score"`
}

// Options tunes the ranking pipeline.
type Options struct {
	// Overfetch multiplies k to get the raw candidate count M, leaving room
	// for redundancy and metadata filtering.
	Overfetch int
	// MinSimilarity drops candidates below this raw similarity. Zero keeps
	// everything.
	MinSimilarity float32
}

// DefaultOptions returns the tuning used in production.
func DefaultOptions() Options {
	return Options{Overfetch: 3, MinSimilarity: 0.25}
}

// Ranker combines the similarity-search collaborator with entropy weighting
// and redundancy elimination to produce a deterministic, ordered result list.
type Ranker struct {
	embedder embedding.Provider
	store    SearchStore
	opts     Options
	logger   *zap.Logger
}

// NewRanker creates a Ranker. Zero-valued options fall back to defaults.
func NewRanker(embedder embedding.Provider, store SearchStore, opts Options, logger *zap.Logger) *Ranker {
	if opts.Overfetch < 2 {
		opts.Overfetch = DefaultOptions().Overfetch
	}
	return &Ranker{embedder: embedder, store: store, opts: opts, logger: logger}
}

// Retrieve returns the top-k chunks for the query, ranked by
// similarity * (1 + entropy) / 2 with near-duplicates suppressed.
//
// The entropy weighting is a tunable heuristic carried over from the original
// ranking design, not a proven optimal formula; its exact output is pinned by
// regression tests. For a fixed corpus state and query the returned order is
// identical across calls: ties on finalScore break by ascending chunk id.
//
// An empty corpus or nothing above the similarity floor yields an empty
// slice, not an error. Embedding failure propagates as ErrUnavailable so the
// caller can fall back to operating without retrieved context.
func (r *Ranker) Retrieve(ctx context.Context, query string, k int, filters map[string]string) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("retrieve: %w: empty query", knowledge.ErrValidation)
	}
	if k <= 0 {
		return nil, fmt.Errorf("retrieve: %w: k must be positive, got %d", knowledge.ErrValidation, k)
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("retrieve: %w: embedder returned no vector", knowledge.ErrUnavailable)
	}

	topM := uint64(k * r.opts.Overfetch)
	hits, err := r.store.Search(ctx, vectors[0], topM, filters, r.opts.MinSimilarity)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	results := r.rank(hits, k, filters)
	r.logger.Debug("retrieval complete",
		zap.Int("candidates", len(hits)),
		zap.Int("returned", len(results)))
	return results, nil
}

// rank scores, deduplicates, filters and orders candidates.
func (r *Ranker) rank(hits []Hit, k int, filters map[string]string) []Result {
	candidates := make([]Result, 0, len(hits))
	for _, h := range hits {
		sim := float64(h.Score)
		if r.opts.MinSimilarity > 0 && h.Score < r.opts.MinSimilarity {
			continue
		}
		c := DecodePayload(h.Payload)
		if c.ID == "" || c.Text == "" {
			continue
		}
		candidates = append(candidates, Result{
			Chunk:      c,
			Similarity: sim,
			FinalScore: FinalScore(sim, c.EntropyScore),
		})
	}

	sortResults(candidates)

	// Redundancy pass runs in final-score order so the strongest restatement
	// of a fact survives. The metadata filter is re-checked locally: a write
	// racing the query may surface points the store-side filter missed.
	dedup := knowledge.NewRedundancyFilter()
	out := make([]Result, 0, k)
	for _, cand := range candidates {
		if dedup.IsDuplicate(cand.Chunk.Fingerprint) {
			continue
		}
		if !matchesFilters(cand.Chunk.Metadata, filters) {
			continue
		}
		dedup.Accept(cand.Chunk.Fingerprint, cand.Chunk.ID)
		out = append(out, cand)
		if len(out) == k {
			break
		}
	}
	return out
}

// FinalScore blends raw similarity with information density.
func FinalScore(similarity, entropy float64) float64 {
	return similarity * (1 + entropy) / 2
}

// sortResults orders by finalScore descending, chunk id ascending on ties.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}

// matchesFilters reports whether metadata satisfies every filter entry.
func matchesFilters(metadata, filters map[string]string) bool {
	for k, v := range filters {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
