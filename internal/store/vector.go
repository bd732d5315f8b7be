package store

import (
	"context"
	"slices"
	"strconv"

	lerrors "github.com/Aman-CERP/lorerank/internal/errors"
)

// FlatL2Index is an exact nearest-neighbor index over squared L2 distance.
// Row i is the embedding of doc_id i. It is immutable after construction
// and safe for concurrent searches.
type FlatL2Index struct {
	dim  int
	n    int
	data []float32 // row-major, n*dim

	// modelName is the embedding model that produced the rows, if known.
	modelName string
}

// NewFlatL2Index builds an index from per-document embeddings.
// All embeddings must share one non-zero length.
func NewFlatL2Index(embeddings [][]float32) (*FlatL2Index, error) {
	if len(embeddings) == 0 {
		return &FlatL2Index{}, nil
	}
	dim := len(embeddings[0])
	if dim == 0 {
		return nil, lerrors.ValidationError("embeddings must have at least one dimension", nil)
	}

	data := make([]float32, 0, len(embeddings)*dim)
	for i, e := range embeddings {
		if len(e) != dim {
			return nil, lerrors.DimensionMismatch(dim, len(e)).WithDetail("doc_id", strconv.Itoa(i))
		}
		data = append(data, e...)
	}
	return &FlatL2Index{dim: dim, n: len(embeddings), data: data}, nil
}

// NewFlatL2IndexFromRows wraps an already flattened row-major matrix.
// The slice is retained, not copied.
func NewFlatL2IndexFromRows(dim int, data []float32) (*FlatL2Index, error) {
	if dim <= 0 {
		if len(data) == 0 {
			return &FlatL2Index{}, nil
		}
		return nil, lerrors.ValidationError("embeddings must have at least one dimension", nil)
	}
	if len(data)%dim != 0 {
		return nil, lerrors.DimensionMismatch(dim, len(data)%dim).
			WithDetail("reason", "row data is not a multiple of the dimension")
	}
	return &FlatL2Index{dim: dim, n: len(data) / dim, data: data}, nil
}

// WithModelName records the embedding model that produced the rows.
func (x *FlatL2Index) WithModelName(name string) *FlatL2Index {
	x.modelName = name
	return x
}

// ModelName returns the recorded embedding model, or "" if unknown.
func (x *FlatL2Index) ModelName() string { return x.modelName }

// Len returns the number of indexed vectors.
func (x *FlatL2Index) Len() int { return x.n }

// Dim returns the vector dimension, 0 for an index built from nothing.
func (x *FlatL2Index) Dim() int { return x.dim }

// Vector returns row id. The returned slice aliases index memory.
func (x *FlatL2Index) Vector(id int) []float32 {
	if id < 0 || id >= x.n {
		return nil
	}
	return x.data[id*x.dim : (id+1)*x.dim]
}

// Search returns the min(k, Len()) nearest rows to query by squared L2
// distance, ascending, with equal distances ordered by ascending doc_id.
func (x *FlatL2Index) Search(ctx context.Context, query []float32, k int) (Ranking, error) {
	if x.n == 0 {
		return nil, lerrors.EmptyIndex("vector")
	}
	if len(query) != x.dim {
		return nil, lerrors.DimensionMismatch(x.dim, len(query))
	}
	if k <= 0 {
		return Ranking{}, nil
	}

	hits := make(Ranking, x.n)
	for i := 0; i < x.n; i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		hits[i] = Hit{DocID: i, Score: squaredL2(query, x.data[i*x.dim:(i+1)*x.dim])}
	}

	slices.SortFunc(hits, compareAscending)
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func compareAscending(a, b Hit) int {
	switch {
	case a.Score < b.Score:
		return -1
	case a.Score > b.Score:
		return 1
	}
	return a.DocID - b.DocID
}

func compareDescending(a, b Hit) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	}
	return a.DocID - b.DocID
}

var _ VectorSearcher = (*FlatL2Index)(nil)
