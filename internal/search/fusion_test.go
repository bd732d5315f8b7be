package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/lorerank/internal/store"
)

func ranking(ids ...int) store.Ranking {
	r := make(store.Ranking, len(ids))
	for i, id := range ids {
		// Scores are deliberately unrelated to rank; fusion must ignore them.
		r[i] = store.Hit{DocID: id, Score: float64(100 * (i + 1))}
	}
	return r
}

// --- TS01: RRF arithmetic ---

func TestRRFFusion_CombinesRanks(t *testing.T) {
	// Given: A = [doc5, doc2] and B = [doc2, doc9]
	f := NewRRFFusion()

	// When: fusing with k=60
	fused := f.Fuse(ranking(5, 2), ranking(2, 9))

	// Then: each doc sums 1/(60+rank) over the lists it appears in
	require.Len(t, fused, 3)
	assert.InDelta(t, 1.0/61, fused[5], 1e-12)
	assert.InDelta(t, 1.0/62+1.0/61, fused[2], 1e-12)
	assert.InDelta(t, 1.0/62, fused[9], 1e-12)
	assert.InDelta(t, 0.016393, fused[5], 1e-6)
	assert.InDelta(t, 0.032522, fused[2], 1e-6)
	assert.InDelta(t, 0.016129, fused[9], 1e-6)

	assert.Equal(t, []int{2, 5, 9}, fused.Sorted().DocIDs())
}

func TestRRFFusion_AbsentDocsAreNotPenalized(t *testing.T) {
	// Given: a doc present only in the second, longer list
	fused := NewRRFFusion().Fuse(ranking(1), ranking(2, 3, 4))

	// Then: its score is exactly its one contribution
	assert.InDelta(t, 1.0/63, fused[3], 1e-12)
	assert.InDelta(t, 1.0/61, fused[1], 1e-12)
}

func TestRRFFusion_OutputIsUnionOfInputs(t *testing.T) {
	fused := NewRRFFusion().Fuse(ranking(7, 3, 1), ranking(3, 8), nil)

	ids := fused.Sorted().DocIDs()
	assert.ElementsMatch(t, []int{1, 3, 7, 8}, ids)
}

func TestRRFFusion_Empty(t *testing.T) {
	assert.Empty(t, NewRRFFusion().Fuse())
	assert.Empty(t, NewRRFFusion().Fuse(nil, store.Ranking{}))
}

func TestNewRRFFusionWithK(t *testing.T) {
	assert.Equal(t, 10, NewRRFFusionWithK(10).K)
	assert.Equal(t, DefaultRRFConstant, NewRRFFusionWithK(0).K)
	assert.Equal(t, DefaultRRFConstant, NewRRFFusionWithK(-5).K)

	fused := NewRRFFusionWithK(1).Fuse(ranking(4))
	assert.InDelta(t, 0.5, fused[4], 1e-12)
}

// --- TS02: Ordering ---

func TestFusedScores_SortedBreaksTiesByDocID(t *testing.T) {
	// Given: docs 9 and 4 at rank 1 of separate lists (equal scores)
	fused := NewRRFFusion().Fuse(ranking(9), ranking(4))

	// Then: ascending doc_id decides
	assert.Equal(t, []int{4, 9}, fused.Sorted().DocIDs())
}

func TestFusedScores_SortedIsDeterministic(t *testing.T) {
	fused := NewRRFFusion().Fuse(ranking(1, 2, 3, 4, 5), ranking(5, 4, 3, 2, 1))

	first := fused.Sorted()
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, fused.Sorted())
	}
	// Symmetric lists tie pairwise: 1/5, 2/4 and 3 alone in the middle.
	assert.Equal(t, []int{1, 5, 2, 4, 3}, first.DocIDs())
}
