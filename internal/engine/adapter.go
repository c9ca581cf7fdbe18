package engine

import (
	"context"

	"github.com/nidhogg/recall/internal/vectorstore"
)

// CollectionWriter binds a vectorstore client to a single collection,
// satisfying the PointStore interface consumed by the engine.
type CollectionWriter struct {
	client     *vectorstore.Client
	collection string
}

// NewCollectionWriter returns a PointStore over one collection.
func NewCollectionWriter(client *vectorstore.Client, collection string) *CollectionWriter {
	return &CollectionWriter{client: client, collection: collection}
}

func (w *CollectionWriter) Upsert(ctx context.Context, id string, vector []float32, payload map[string]string) error {
	return w.client.Upsert(ctx, w.collection, id, vector, payload)
}

func (w *CollectionWriter) Count(ctx context.Context) (uint64, error) {
	return w.client.Count(ctx, w.collection)
}
