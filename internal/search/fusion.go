// Package search answers passage queries by running a vector search and a
// BM25 search over the same corpus, fusing the two rankings with Reciprocal
// Rank Fusion (RRF) and re-weighting the fused scores by passage section.
package search

import (
	"cmp"
	"slices"

	"github.com/Aman-CERP/lorerank/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// FusedScores maps doc_id to its fused (and possibly section-weighted) score.
type FusedScores map[int]float64

// RRFFusion combines rankings with Reciprocal Rank Fusion:
//
//	RRF(d) = Σ 1 / (k + rank_i(d))
//
// where rank_i is the 1-indexed position of d in ranking i. A ranking that
// does not contain d contributes nothing. Raw scores are never read.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a fusion with k=60.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// NewRRFFusionWithK creates a fusion with a custom k. If k <= 0, defaults to 60.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse returns one entry per doc_id appearing in any ranking.
func (f *RRFFusion) Fuse(rankings ...store.Ranking) FusedScores {
	size := 0
	for _, r := range rankings {
		size += len(r)
	}
	scores := make(FusedScores, size)
	for _, r := range rankings {
		for i, h := range r {
			scores[h.DocID] += 1.0 / float64(f.K+i+1)
		}
	}
	return scores
}

// Sorted orders the scores descending, equal scores by ascending doc_id.
func (s FusedScores) Sorted() store.Ranking {
	out := make(store.Ranking, 0, len(s))
	for id, score := range s {
		out = append(out, store.Hit{DocID: id, Score: score})
	}
	slices.SortFunc(out, func(a, b store.Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.DocID, b.DocID)
	})
	return out
}
