package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/lorerank/internal/corpus"
	"github.com/Aman-CERP/lorerank/internal/embed"
	lerrors "github.com/Aman-CERP/lorerank/internal/errors"
	"github.com/Aman-CERP/lorerank/internal/store"
	"github.com/Aman-CERP/lorerank/internal/telemetry"
)

// --- Test doubles ---

type fakeEmbedder struct {
	dims    int
	model   string
	vectors map[string][]float32
	err     error
	calls   atomic.Int32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return make([]float32, f.dims), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int                  { return f.dims }
func (f *fakeEmbedder) ModelName() string                { return f.model }
func (f *fakeEmbedder) Available(_ context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                     { return nil }

var _ embed.Embedder = (*fakeEmbedder)(nil)

// fixedVector returns a canned ranking, optionally blocking until ctx is done.
type fixedVector struct {
	n, dim int
	result store.Ranking
	err    error
	block  bool
}

func (f *fixedVector) Search(ctx context.Context, _ []float32, k int) (store.Ranking, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.result) {
		return f.result[:k], nil
	}
	return f.result, nil
}
func (f *fixedVector) Len() int { return f.n }
func (f *fixedVector) Dim() int { return f.dim }

type fixedLexical struct {
	n      int
	result store.Ranking
	err    error

	mu     sync.Mutex
	tokens []string
}

func (f *fixedLexical) TopK(_ context.Context, tokens []string, k int) (store.Ranking, error) {
	f.mu.Lock()
	f.tokens = tokens
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.result) {
		return f.result[:k], nil
	}
	return f.result, nil
}
func (f *fixedLexical) Len() int { return f.n }

// tenDocCorpus has doc2 under Controversy and doc9 under References.
func tenDocCorpus() *corpus.Corpus {
	docs := make([]corpus.Document, 10)
	for i := range docs {
		docs[i] = corpus.Document{PageTitle: "Hitman", Text: "passage", URL: "https://en.wikipedia.org/wiki/Hitman"}
	}
	docs[2].Section = "Controversy"
	docs[2].Text = "The barcode tattoo ad campaign drew criticism."
	docs[9].Section = "References"
	return corpus.New(docs)
}

type fixture struct {
	corpus   *corpus.Corpus
	vector   *fixedVector
	lexical  *fixedLexical
	embedder *fakeEmbedder
}

func newFixture() *fixture {
	return &fixture{
		corpus:   tenDocCorpus(),
		vector:   &fixedVector{n: 10, dim: 4, result: ranking(5, 2)},
		lexical:  &fixedLexical{n: 10, result: ranking(2, 9)},
		embedder: &fakeEmbedder{dims: 4, model: "all-mpnet-base-v2"},
	}
}

func (f *fixture) engine(t *testing.T, cfg EngineConfig, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(f.corpus, f.vector, f.lexical, f.embedder, cfg, opts...)
	require.NoError(t, err)
	return e
}

func exampleBias(t *testing.T) *SectionBias {
	t.Helper()
	b, err := NewSectionBias(map[string]float64{"Controversy": 1.3, "References": 0.3})
	require.NoError(t, err)
	return &b
}

// --- TS01: Construction ---

func TestNewEngine_NilDependencies(t *testing.T) {
	f := newFixture()

	_, err := NewEngine(nil, f.vector, f.lexical, f.embedder, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)
	_, err = NewEngine(f.corpus, nil, f.lexical, f.embedder, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)
	_, err = NewEngine(f.corpus, f.vector, nil, f.embedder, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)
	_, err = NewEngine(f.corpus, f.vector, f.lexical, nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestNewEngine_MisalignedArtifacts(t *testing.T) {
	// Given: a vector index with one row fewer than the corpus
	f := newFixture()
	f.vector.n = 9

	// When: constructing the engine
	_, err := NewEngine(f.corpus, f.vector, f.lexical, f.embedder, DefaultConfig())

	// Then: construction fails with a consistency error
	require.Error(t, err)
	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeIndexInconsistent))
	assert.True(t, lerrors.IsFatal(err))

	f = newFixture()
	f.lexical.n = 11
	_, err = NewEngine(f.corpus, f.vector, f.lexical, f.embedder, DefaultConfig())
	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeIndexInconsistent))
}

func TestNewEngine_ModelMismatch(t *testing.T) {
	// Given: a real vector index recorded as built with another model
	c := corpus.New([]corpus.Document{{Text: "a"}, {Text: "b"}})
	vec, err := store.NewFlatL2Index([][]float32{{0, 1}, {1, 0}})
	require.NoError(t, err)
	vec.WithModelName("text-embedding-3-small")
	lex := store.NewBM25Index(c.Texts(), store.DefaultBM25Config())

	// When: the embedder reports a different model
	_, err = NewEngine(c, vec, lex, &fakeEmbedder{dims: 2, model: "all-mpnet-base-v2"}, DefaultConfig())

	// Then: construction fails
	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeIndexInconsistent))
}

func TestNewEngine_DimensionMismatch(t *testing.T) {
	f := newFixture()
	f.embedder.dims = 768

	_, err := NewEngine(f.corpus, f.vector, f.lexical, f.embedder, DefaultConfig())

	require.Error(t, err)
	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeDimensionMismatch))
}

// --- TS02: Worked examples ---

func TestEngine_Search_FusesAndWeightsBySection(t *testing.T) {
	// Given: vector ranking [5,2], lexical ranking [2,9] and the example bias
	f := newFixture()
	cfg := DefaultConfig()
	cfg.Sections = exampleBias(t)
	e := f.engine(t, cfg)

	// When: searching
	results, err := e.Search(context.Background(), "barcode controversy", SearchOptions{})

	// Then: doc2 > doc5 > doc9 with weighted scores
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []int{2, 5, 9}, docIDs(results))
	assert.InDelta(t, 0.042279, results[0].Score, 1e-6)
	assert.InDelta(t, 0.016393, results[1].Score, 1e-6)
	assert.InDelta(t, 0.004839, results[2].Score, 1e-6)

	// And: metadata is attached
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, "Controversy", results[0].Section)
	assert.Equal(t, "The barcode tattoo ad campaign drew criticism.", results[0].Text)
	assert.Equal(t, "Hitman", results[0].PageTitle)

	// And: the query was encoded exactly once and tokenized for BM25
	assert.Equal(t, int32(1), f.embedder.calls.Load())
	assert.Equal(t, []string{"barcode", "controversy"}, f.lexical.tokens)
}

func TestEngine_Search_BiasCanFlipOrder(t *testing.T) {
	// Given: doc9 sits in a strongly promoted section
	f := newFixture()
	bias, err := NewSectionBias(map[string]float64{"References": 3})
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.Sections = &bias
	e := f.engine(t, cfg)

	// When: searching
	results, err := e.Search(context.Background(), "who", SearchOptions{})

	// Then: doc9 overtakes the otherwise best doc2
	require.NoError(t, err)
	assert.Equal(t, []int{9, 2, 5}, docIDs(results))
}

func TestEngine_Search_TruncatesAndNumbers(t *testing.T) {
	// Given: rankings covering every doc
	f := newFixture()
	f.vector.result = ranking(0, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	f.lexical.result = ranking(9, 7, 5, 3, 1)
	e := f.engine(t, DefaultConfig())

	for _, k := range []int{1, 3, 5, 10, 50} {
		results, err := e.Search(context.Background(), "agent", SearchOptions{FinalTopK: k})
		require.NoError(t, err)

		assert.LessOrEqual(t, len(results), k)
		inputs := map[int]bool{}
		for _, h := range append(f.vector.result, f.lexical.result...) {
			inputs[h.DocID] = true
		}
		for i, r := range results {
			assert.Equal(t, i+1, r.Rank)
			assert.True(t, inputs[r.DocID], "doc %d not in any input ranking", r.DocID)
			if i > 0 {
				assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
			}
		}
	}
}

func TestEngine_Search_SubSearchSizes(t *testing.T) {
	f := newFixture()
	f.vector.result = ranking(0, 1, 2, 3)
	f.lexical.result = ranking(4, 5, 6, 7)
	e := f.engine(t, DefaultConfig())

	results, err := e.Search(context.Background(), "agent", SearchOptions{VectorTopK: 1, LexicalTopK: 1, FinalTopK: 10})

	require.NoError(t, err)
	assert.Equal(t, []int{0, 4}, docIDs(results))
}

func TestEngine_Search_Deterministic(t *testing.T) {
	f := newFixture()
	f.vector.result = ranking(3, 1, 4, 6)
	f.lexical.result = ranking(4, 3, 8, 0)
	e := f.engine(t, DefaultConfig())

	first, err := e.Search(context.Background(), "silent assassin", SearchOptions{FinalTopK: 10})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := e.Search(context.Background(), "silent assassin", SearchOptions{FinalTopK: 10})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

// --- TS03: Validation and errors ---

func TestEngine_Search_EmptyQuery(t *testing.T) {
	f := newFixture()
	e := f.engine(t, DefaultConfig())

	_, err := e.Search(context.Background(), "   ", SearchOptions{})

	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeQueryEmpty))
	assert.Equal(t, int32(0), f.embedder.calls.Load())
}

func TestEngine_Search_NegativeOptions(t *testing.T) {
	e := newFixture().engine(t, DefaultConfig())

	for _, opts := range []SearchOptions{{VectorTopK: -1}, {LexicalTopK: -1}, {FinalTopK: -1}} {
		_, err := e.Search(context.Background(), "agent", opts)
		assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeInvalidInput), "%+v", opts)
	}
}

func TestEngine_Search_EncodingFailure(t *testing.T) {
	// Given: an embedder that fails with a transient network error
	f := newFixture()
	f.embedder.err = lerrors.New(lerrors.ErrCodeNetworkUnavailable, "connection refused", nil)
	e := f.engine(t, DefaultConfig())

	// When: searching
	_, err := e.Search(context.Background(), "agent", SearchOptions{})

	// Then: an encoding error naming the stage, still retryable
	var le *lerrors.LoreError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, lerrors.ErrCodeEmbeddingFailed, le.Code)
	assert.Equal(t, StageEncode, le.Details["stage"])
	assert.True(t, lerrors.IsRetryable(err))
}

func TestEngine_Search_EncodedVectorWrongSize(t *testing.T) {
	f := newFixture()
	f.embedder.vectors = map[string][]float32{"agent": {1, 2, 3}}
	e := f.engine(t, DefaultConfig())

	_, err := e.Search(context.Background(), "agent", SearchOptions{})

	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeEmbeddingFailed))
	assert.ErrorIs(t, err, lerrors.New(lerrors.ErrCodeDimensionMismatch, "", nil))
}

func TestEngine_Search_SubSearchFailureNamesStage(t *testing.T) {
	f := newFixture()
	f.lexical.err = errors.New("index file truncated")
	e := f.engine(t, DefaultConfig())

	_, err := e.Search(context.Background(), "agent", SearchOptions{})

	var le *lerrors.LoreError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, lerrors.ErrCodeSearchFailed, le.Code)
	assert.Equal(t, StageLexical, le.Details["stage"])
}

func TestEngine_Search_EmptyVectorIndex(t *testing.T) {
	c := corpus.New(nil)
	vec, err := store.NewFlatL2IndexFromRows(2, nil)
	require.NoError(t, err)
	lex := store.NewBM25Index(nil, store.DefaultBM25Config())
	e, err := NewEngine(c, vec, lex, &fakeEmbedder{dims: 2}, DefaultConfig())
	require.NoError(t, err)

	_, err = e.Search(context.Background(), "agent", SearchOptions{})
	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeEmptyIndex))

	_, err = e.Search(context.Background(), "agent", SearchOptions{LexicalOnly: true})
	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeEmptyIndex))
}

// --- TS04: Cancellation ---

func TestEngine_Search_CanceledBeforeEncoding(t *testing.T) {
	f := newFixture()
	e := f.engine(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := e.Search(ctx, "agent", SearchOptions{})

	assert.Nil(t, results)
	var le *lerrors.LoreError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, lerrors.ErrCodeSearchCanceled, le.Code)
	assert.Equal(t, StageEncode, le.Details["stage"])
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), f.embedder.calls.Load())
}

func TestEngine_Search_DeadlineExceeded(t *testing.T) {
	e := newFixture().engine(t, DefaultConfig())
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := e.Search(ctx, "agent", SearchOptions{})

	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeSearchTimeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngine_Search_TimeoutDuringSubSearch(t *testing.T) {
	// Given: a vector search that never finishes and a short engine timeout
	f := newFixture()
	f.vector.block = true
	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	e := f.engine(t, cfg)

	// When: searching
	results, err := e.Search(context.Background(), "agent", SearchOptions{})

	// Then: the search times out with no partial result
	assert.Nil(t, results)
	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeSearchTimeout))
}

// --- TS05: Lexical-only mode and explain ---

func TestEngine_Search_LexicalOnly(t *testing.T) {
	f := newFixture()
	f.vector.err = errors.New("must not be called")
	e := f.engine(t, DefaultConfig())

	results, err := e.Search(context.Background(), "agent", SearchOptions{LexicalOnly: true, Explain: true})

	require.NoError(t, err)
	assert.Equal(t, []int{2, 9}, docIDs(results))
	assert.Equal(t, int32(0), f.embedder.calls.Load())
	assert.True(t, results[0].Explain.LexicalOnly)
	assert.Zero(t, results[0].Explain.VectorRank)
}

func TestEngine_Search_Explain(t *testing.T) {
	f := newFixture()
	cfg := DefaultConfig()
	cfg.Sections = exampleBias(t)
	e := f.engine(t, cfg)

	results, err := e.Search(context.Background(), "agent", SearchOptions{Explain: true})
	require.NoError(t, err)

	top := results[0].Explain
	require.NotNil(t, top)
	assert.Equal(t, 2, top.VectorRank)
	assert.Equal(t, 200.0, top.VectorDistance)
	assert.Equal(t, 1, top.LexicalRank)
	assert.Equal(t, 100.0, top.LexicalScore)
	assert.InDelta(t, 1.0/61+1.0/62, top.FusedScore, 1e-12)
	assert.Equal(t, 1.3, top.SectionMultiplier)

	// doc9 appears only in the lexical ranking
	last := results[2].Explain
	assert.Zero(t, last.VectorRank)
	assert.Equal(t, 2, last.LexicalRank)

	withoutExplain, err := e.Search(context.Background(), "agent", SearchOptions{})
	require.NoError(t, err)
	assert.Nil(t, withoutExplain[0].Explain)
}

// --- TS06: End to end over real indices ---

func TestEngine_Search_RoundTripStaticEmbedder(t *testing.T) {
	// Given: real indices built from the static embedder
	docs := []corpus.Document{
		{PageTitle: "Agent 47", Text: "Agent 47 is a genetically engineered clone assassin"},
		{PageTitle: "Hitman: Blood Money", Section: "Reception", Text: "Blood Money received positive reviews from critics"},
		{PageTitle: "Diana Burnwood", Text: "Diana Burnwood is the handler who briefs 47 before contracts"},
		{PageTitle: "Hitman: Codename 47", Text: "The series began with Codename 47 in 2000"},
	}
	c := corpus.New(docs)
	emb := embed.NewStaticEmbedder(64)
	vectors, err := emb.EmbedBatch(context.Background(), c.Texts())
	require.NoError(t, err)
	vec, err := store.NewFlatL2Index(vectors)
	require.NoError(t, err)
	vec.WithModelName(emb.ModelName())
	lex := store.NewBM25Index(c.Texts(), store.DefaultBM25Config())

	metricsCollector := telemetry.NewQueryMetrics(nil, telemetry.Config{})
	e, err := NewEngine(c, vec, lex, emb, DefaultConfig(), WithMetrics(metricsCollector))
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// When: querying with a passage's own text
	results, err := e.Search(context.Background(), docs[2].Text, SearchOptions{Explain: true})

	// Then: that passage is first at vector distance 0
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, 2, results[0].DocID)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 1, results[0].Explain.VectorRank)
	assert.Zero(t, results[0].Explain.VectorDistance)
	assert.LessOrEqual(t, len(results), DefaultFinalTopK)

	// And: telemetry saw the query
	assert.Equal(t, int64(1), metricsCollector.Snapshot().ModeCounts[telemetry.ModeHybrid])

	stats := e.Stats()
	assert.Equal(t, 4, stats.Documents)
	assert.Equal(t, 64, stats.Dimensions)
	assert.Equal(t, embed.StaticModelName, stats.ModelName)
	assert.Positive(t, stats.VocabularySize)
}

func TestEngine_Search_Concurrent(t *testing.T) {
	f := newFixture()
	e := f.engine(t, DefaultConfig())

	done := make(chan []int, 8)
	for i := 0; i < 8; i++ {
		go func() {
			results, err := e.Search(context.Background(), "agent", SearchOptions{})
			if err != nil {
				done <- nil
				return
			}
			done <- docIDs(results)
		}()
	}
	for i := 0; i < 8; i++ {
		assert.Equal(t, []int{2, 5, 9}, <-done)
	}
}

func docIDs(results []*SearchResult) []int {
	ids := make([]int, len(results))
	for i, r := range results {
		ids[i] = r.DocID
	}
	return ids
}
