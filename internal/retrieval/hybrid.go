package retrieval

import (
	"context"
	"strings"
)

// RetrieveHybrid blends keyword overlap into the semantic ranking. boost is
// the weight of the keyword signal in [0,1]; 0 is pure semantic ranking.
// Determinism is preserved: the same tie-break applies after re-scoring.
func (r *Ranker) RetrieveHybrid(ctx context.Context, query string, k int, filters map[string]string, boost float64) ([]Result, error) {
	results, err := r.Retrieve(ctx, query, k, filters)
	if err != nil || boost <= 0 {
		return results, err
	}
	if boost > 1 {
		boost = 1
	}

	queryWords := wordSet(query)
	if len(queryWords) == 0 {
		return results, nil
	}

	for i := range results {
		overlap := keywordOverlap(queryWords, results[i].Chunk.Text)
		results[i].FinalScore = results[i].FinalScore*(1-boost) + overlap*boost
	}
	sortResults(results)
	return results, nil
}

// keywordOverlap is the fraction of query words present in the text.
func keywordOverlap(queryWords map[string]bool, text string) float64 {
	textWords := wordSet(text)
	matched := 0
	for w := range queryWords {
		if textWords[w] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryWords))
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = true
	}
	return set
}
