// Package store holds the two read-only retrieval indices: an exact
// squared-L2 vector index and an Okapi BM25 lexical index, plus the
// readers and writers for their on-disk artifacts.
package store

import "context"

// Hit is one entry of a ranking. Score is a squared L2 distance for the
// vector index and a BM25 score for the lexical index.
type Hit struct {
	DocID int
	Score float64
}

// Ranking is an ordered list of hits, best first.
type Ranking []Hit

// DocIDs returns the doc ids in ranking order.
func (r Ranking) DocIDs() []int {
	ids := make([]int, len(r))
	for i, h := range r {
		ids[i] = h.DocID
	}
	return ids
}

// VectorSearcher is the read side of a vector index.
type VectorSearcher interface {
	Search(ctx context.Context, query []float32, k int) (Ranking, error)
	Len() int
	Dim() int
}

// LexicalSearcher is the read side of a lexical index.
type LexicalSearcher interface {
	TopK(ctx context.Context, queryTokens []string, k int) (Ranking, error)
	Len() int
}

// BM25Config configures Okapi BM25 scoring.
type BM25Config struct {
	// K1 controls term frequency saturation.
	K1 float64

	// B controls document length normalization (0 = none, 1 = full).
	B float64

	// Epsilon floors negative IDF values to Epsilon * mean IDF.
	Epsilon float64
}

// DefaultBM25Config returns k1=1.5, b=0.75, epsilon=0.25.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:      1.5,
		B:       0.75,
		Epsilon: 0.25,
	}
}

// ctxCheckInterval is how many documents or rows are scanned between context checks.
const ctxCheckInterval = 4096
