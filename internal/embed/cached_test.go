package embed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder is a test double that counts calls.
type countingEmbedder struct {
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	dims       int
	model      string
	fail       error
	closed     atomic.Bool
}

func newCountingEmbedder(dims int) *countingEmbedder {
	return &countingEmbedder{dims: dims, model: "counting-model"}
}

func (m *countingEmbedder) vector(text string) []float32 {
	v := make([]float32, m.dims)
	v[len(text)%m.dims] = 1
	return v
}

func (m *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	if m.fail != nil {
		return nil, m.fail
	}
	return m.vector(text), nil
}

func (m *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *countingEmbedder) Dimensions() int                { return m.dims }
func (m *countingEmbedder) ModelName() string              { return m.model }
func (m *countingEmbedder) Available(context.Context) bool { return true }
func (m *countingEmbedder) Close() error {
	m.closed.Store(true)
	return nil
}

// TS01: Cache hit on repeated query
func TestCachedEmbedder_CacheHit_SkipsInner(t *testing.T) {
	// Given: a cached embedder
	inner := newCountingEmbedder(8)
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	// When: the same query is embedded twice
	first, err := cached.Embed(ctx, "who is diana burnwood")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "who is diana burnwood")
	require.NoError(t, err)

	// Then: inner ran once and results match
	assert.Equal(t, int64(1), inner.embedCalls.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cached.Len())
}

func TestCachedEmbedder_ErrorsAreNotCached(t *testing.T) {
	inner := newCountingEmbedder(8)
	inner.fail = errors.New("ollama down")
	cached := NewCachedEmbedder(inner, 10)

	_, err := cached.Embed(context.Background(), "q")
	require.Error(t, err)
	_, err = cached.Embed(context.Background(), "q")
	require.Error(t, err)

	assert.Equal(t, int64(2), inner.embedCalls.Load())
	assert.Equal(t, 0, cached.Len())
}

func TestCachedEmbedder_KeyIncludesModel(t *testing.T) {
	inner := newCountingEmbedder(8)
	cached := NewCachedEmbedder(inner, 10)

	_, _ = cached.Embed(context.Background(), "q")
	inner.model = "other-model"
	_, _ = cached.Embed(context.Background(), "q")

	assert.Equal(t, int64(2), inner.embedCalls.Load())
}

func TestCachedEmbedder_EmbedBatch_OnlySendsMisses(t *testing.T) {
	inner := newCountingEmbedder(8)
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "b")
	require.NoError(t, err)

	got, err := cached.EmbedBatch(ctx, []string{"a", "b", "ccc"})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, inner.vector("ccc"), got[2])
	assert.Equal(t, int64(1), inner.batchCalls.Load())
	assert.Equal(t, 3, cached.Len())

	// all cached now: no further batch call
	_, err = cached.EmbedBatch(ctx, []string{"a", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.batchCalls.Load())
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := newCountingEmbedder(16)
	cached := NewCachedEmbedder(inner, 0)

	assert.Equal(t, 16, cached.Dimensions())
	assert.Equal(t, "counting-model", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
	assert.Same(t, inner, cached.Inner())

	require.NoError(t, cached.Close())
	assert.True(t, inner.closed.Load())
}
