package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/recall/internal/embedding"
	"github.com/nidhogg/recall/internal/knowledge"
	"github.com/nidhogg/recall/internal/memory"
	"github.com/nidhogg/recall/internal/retrieval"
)

// pointNamespace seeds the UUIDv5 derivation of point ids from chunk ids.
// Changing it orphans every previously written point.
var pointNamespace = uuid.MustParse("8f0f7a52-3c6e-4b09-9d41-56b1a7c0de19")

// PointID derives the vector-store point id for a chunk. The derivation is
// deterministic, so re-ingesting a chunk overwrites its point in place.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// PointStore is the vector persistence surface the engine writes to.
type PointStore interface {
	Upsert(ctx context.Context, id string, vector []float32, payload map[string]string) error
	Count(ctx context.Context) (uint64, error)
}

// Engine is the facade over ingestion, retrieval and conversation memory.
// It implements memory.LongTermStore so promoted turns and summaries flow
// through the same idempotent ingest path as documents.
type Engine struct {
	embedder embedding.Provider
	points   PointStore
	ranker   *retrieval.Ranker
	mem      *memory.System
	logger   *zap.Logger

	mu    sync.Mutex
	dedup *knowledge.RedundancyFilter
}

var _ memory.LongTermStore = (*Engine)(nil)
var _ memory.Retriever = (*Engine)(nil)

// New wires an engine. Attach the memory system afterwards with AttachMemory;
// the memory system needs the engine as its long-term store, so the engine is
// constructed first.
func New(embedder embedding.Provider, points PointStore, ranker *retrieval.Ranker, logger *zap.Logger) *Engine {
	return &Engine{
		embedder: embedder,
		points:   points,
		ranker:   ranker,
		logger:   logger,
		dedup:    knowledge.NewRedundancyFilter(),
	}
}

// AttachMemory binds the conversation memory system.
func (e *Engine) AttachMemory(mem *memory.System) {
	e.mem = mem
}

// Ingest stores one piece of content. The returned id is deterministic for
// the text plus metadata. A near-duplicate of already accepted content is not
// written; the id of the first accepted chunk comes back with deduped set.
// Re-ingesting identical content is an idempotent overwrite.
func (e *Engine) Ingest(ctx context.Context, text string, metadata map[string]string) (string, bool, error) {
	chunk, err := knowledge.NewChunk(text, metadata)
	if err != nil {
		return "", false, fmt.Errorf("ingest: %w", err)
	}

	e.mu.Lock()
	if firstID, ok := e.dedup.FirstID(chunk.Fingerprint); ok && firstID != chunk.ID {
		e.mu.Unlock()
		e.logger.Debug("ingest deduplicated",
			zap.String("id", chunk.ID),
			zap.String("kept", firstID))
		return firstID, true, nil
	}
	e.mu.Unlock()

	vectors, err := e.embedder.Embed(ctx, []string{chunk.Text})
	if err != nil {
		return "", false, fmt.Errorf("ingest %s: embed: %w", chunk.ID, err)
	}
	if len(vectors) == 0 {
		return "", false, fmt.Errorf("ingest %s: %w: embedder returned no vector", chunk.ID, knowledge.ErrUnavailable)
	}

	payload := retrieval.EncodePayload(chunk)
	if err := e.points.Upsert(ctx, PointID(chunk.ID), vectors[0], payload); err != nil {
		return "", false, fmt.Errorf("ingest %s: %w", chunk.ID, err)
	}

	// Register only after the write lands so a failed ingest stays retryable.
	e.mu.Lock()
	e.dedup.Accept(chunk.Fingerprint, chunk.ID)
	e.mu.Unlock()

	e.logger.Debug("ingested chunk",
		zap.String("id", chunk.ID),
		zap.Float64("entropy", chunk.EntropyScore))
	return chunk.ID, false, nil
}

// Document is one batch-ingest input.
type Document struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IngestResult reports the outcome for one batch item.
type IngestResult struct {
	ID      string `json:"id,omitempty"`
	Deduped bool   `json:"deduped"`
	Error   string `json:"error,omitempty"`
}

// IngestBatch ingests documents in order. A failing item is recorded and does
// not stop the batch; the result slice is parallel to the input.
func (e *Engine) IngestBatch(ctx context.Context, docs []Document) []IngestResult {
	results := make([]IngestResult, len(docs))
	for i, d := range docs {
		id, deduped, err := e.Ingest(ctx, d.Text, d.Metadata)
		if err != nil {
			results[i] = IngestResult{Error: err.Error()}
			continue
		}
		results[i] = IngestResult{ID: id, Deduped: deduped}
	}
	return results
}

// Retrieve returns the top-k ranked chunks for a query.
func (e *Engine) Retrieve(ctx context.Context, query string, k int, filters map[string]string) ([]retrieval.Result, error) {
	results, err := e.ranker.Retrieve(ctx, query, k, filters)
	if err != nil {
		return nil, err
	}
	return e.verified(results), nil
}

// RetrieveHybrid blends keyword overlap into the ranking.
func (e *Engine) RetrieveHybrid(ctx context.Context, query string, k int, filters map[string]string, boost float64) ([]retrieval.Result, error) {
	results, err := e.ranker.RetrieveHybrid(ctx, query, k, filters, boost)
	if err != nil {
		return nil, err
	}
	return e.verified(results), nil
}

// verified drops results whose stored id no longer recomputes from their
// content. A mismatch means the point payload was edited after ingest; the
// corrupted chunk is excluded rather than served.
func (e *Engine) verified(results []retrieval.Result) []retrieval.Result {
	out := results[:0]
	for _, res := range results {
		if err := res.Chunk.Verify(); err != nil {
			e.logger.Warn("dropping corrupted chunk", zap.Error(err))
			continue
		}
		out = append(out, res)
	}
	return out
}

// AppendTurn records a conversation turn.
func (e *Engine) AppendTurn(ctx context.Context, sessionID, role, text string) error {
	return e.mem.AppendTurn(ctx, sessionID, role, text)
}

// GetContext assembles the model-call context for a session.
func (e *Engine) GetContext(ctx context.Context, sessionID, query string, useRetrieval bool) (*memory.Context, error) {
	return e.mem.GetContext(ctx, sessionID, query, useRetrieval)
}

// MaybeConsolidate runs threshold-triggered consolidation for a session.
func (e *Engine) MaybeConsolidate(ctx context.Context, sessionID string) (bool, error) {
	return e.mem.MaybeConsolidate(ctx, sessionID)
}

// DeleteSession removes a session's conversation memory.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	return e.mem.DeleteSession(ctx, sessionID)
}

// Sessions lists known session ids.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	return e.mem.Sessions(ctx)
}

// Stats summarizes the knowledge store.
type Stats struct {
	Chunks             uint64 `json:"chunks"`
	UniqueFingerprints int    `json:"unique_fingerprints"`
	Sessions           int    `json:"sessions"`
}

// Stats reports store-level counters.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	count, err := e.points.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	e.mu.Lock()
	unique := e.dedup.Len()
	e.mu.Unlock()

	s := &Stats{Chunks: count, UniqueFingerprints: unique}
	if e.mem != nil {
		sessions, err := e.mem.Sessions(ctx)
		if err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
		s.Sessions = len(sessions)
	}
	return s, nil
}
