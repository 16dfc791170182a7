package memory

// SimilarityFromDistance converts a cosine distance reported by the store
// into a similarity score. Cosine distance is bounded to [0,2], so the
// similarity ranges [-1,1] and sits in [0,1] for normalized embeddings.
func SimilarityFromDistance(distance float64) float64 {
	return 1.0 - distance
}

// FilterMinScore drops results whose similarity is strictly below minScore.
// It runs after the store-side top-K cut: a candidate that would pass the
// threshold but ranks outside the top-K is never seen. Order is preserved.
func FilterMinScore(results []SearchResult, minScore float64) []SearchResult {
	filtered := results[:0]
	for _, r := range results {
		if r.Score >= minScore {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// FilterRecallMinScore is FilterMinScore for memory recall results.
func FilterRecallMinScore(results []RecallResult, minScore float64) []RecallResult {
	filtered := results[:0]
	for _, r := range results {
		if r.Score >= minScore {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
