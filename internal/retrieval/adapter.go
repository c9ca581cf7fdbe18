package retrieval

import (
	"context"

	"github.com/nidhogg/recall/internal/vectorstore"
)

// CollectionSearcher binds a vectorstore client to a single collection,
// satisfying the SearchStore interface consumed by the Ranker.
type CollectionSearcher struct {
	client     *vectorstore.Client
	collection string
}

// NewCollectionSearcher returns a SearchStore over one collection.
func NewCollectionSearcher(client *vectorstore.Client, collection string) *CollectionSearcher {
	return &CollectionSearcher{client: client, collection: collection}
}

// Search delegates to the qdrant client and converts results.
func (s *CollectionSearcher) Search(ctx context.Context, vector []float32, topM uint64, filter map[string]string, minScore float32) ([]Hit, error) {
	results, err := s.client.Search(ctx, s.collection, vector, topM, filter, minScore)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{ID: r.ID, Score: r.Score, Payload: r.Payload}
	}
	return hits, nil
}
