package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/lorerank/internal/corpus"
	"github.com/Aman-CERP/lorerank/internal/embed"
	lerrors "github.com/Aman-CERP/lorerank/internal/errors"
	"github.com/Aman-CERP/lorerank/internal/metrics"
	"github.com/Aman-CERP/lorerank/internal/store"
	"github.com/Aman-CERP/lorerank/internal/telemetry"
)

// Pipeline stages, used in error details, logs and metric labels.
const (
	StageEncode  = "encode"
	StageVector  = "vector"
	StageLexical = "lexical"
	StageFuse    = "fuse"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine runs hybrid passage search over a fixed corpus. All fields are
// read-only after construction, so Search is safe for concurrent use.
type Engine struct {
	corpus   *corpus.Corpus
	vector   store.VectorSearcher
	lexical  store.LexicalSearcher
	embedder embed.Embedder
	config   EngineConfig
	fusion   *RRFFusion
	bias     SectionBias
	metrics  *telemetry.QueryMetrics
	logger   *slog.Logger
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithMetrics sets an optional query telemetry collector.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger overrides slog.Default.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// modelNamer is implemented by vector indices that know which model built them.
type modelNamer interface {
	ModelName() string
}

// lexicalStats is implemented by *store.BM25Index.
type lexicalStats interface {
	Stats() store.IndexStats
}

// NewEngine validates that the corpus and both indices describe the same
// documents and that the embedder matches the vector index.
func NewEngine(
	c *corpus.Corpus,
	vector store.VectorSearcher,
	lexical store.LexicalSearcher,
	embedder embed.Embedder,
	config EngineConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: corpus is required", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}

	if vector.Len() != c.Len() || lexical.Len() != c.Len() {
		return nil, lerrors.Inconsistent(fmt.Sprintf(
			"corpus has %d passages but vector index has %d and lexical index has %d",
			c.Len(), vector.Len(), lexical.Len())).
			WithDetail("corpus", fmt.Sprint(c.Len())).
			WithDetail("vector", fmt.Sprint(vector.Len())).
			WithDetail("lexical", fmt.Sprint(lexical.Len()))
	}
	if named, ok := vector.(modelNamer); ok && named.ModelName() != "" && named.ModelName() != embedder.ModelName() {
		return nil, lerrors.Inconsistent(fmt.Sprintf(
			"vector index was built with model %q but the query embedder is %q",
			named.ModelName(), embedder.ModelName())).
			WithDetail("index_model", named.ModelName()).
			WithDetail("embedder_model", embedder.ModelName())
	}
	if embedder.Dimensions() != vector.Dim() {
		return nil, lerrors.DimensionMismatch(vector.Dim(), embedder.Dimensions()).
			WithSuggestion("Use the embedding model the vector index was built with")
	}

	def := DefaultSearchOptions()
	if config.Defaults.VectorTopK <= 0 {
		config.Defaults.VectorTopK = def.VectorTopK
	}
	if config.Defaults.LexicalTopK <= 0 {
		config.Defaults.LexicalTopK = def.LexicalTopK
	}
	if config.Defaults.FinalTopK <= 0 {
		config.Defaults.FinalTopK = def.FinalTopK
	}
	bias := DefaultSectionBias()
	if config.Sections != nil {
		bias = *config.Sections
	}

	e := &Engine{
		corpus:   c,
		vector:   vector,
		lexical:  lexical,
		embedder: embedder,
		config:   config,
		fusion:   NewRRFFusionWithK(config.RRFConstant),
		bias:     bias,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search returns at most FinalTopK passages for query, best first.
//
// The query is encoded once; the vector and BM25 searches then run
// concurrently, their rankings are fused with RRF, weighted by section,
// sorted (ties by ascending doc_id), truncated and numbered from 1.
// Cancellation is checked before encoding, before each sub-search and
// before fusion; a canceled search returns no partial result.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error) {
	start := time.Now()
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	mode := telemetry.ModeHybrid
	if opts.LexicalOnly {
		mode = telemetry.ModeLexical
	}

	results, err := e.search(ctx, query, opts)
	latency := time.Since(start)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(string(mode), "error").Inc()
		attrs := []any{slog.String("mode", string(mode)), slog.Duration("latency", latency)}
		for _, a := range lerrors.LogAttrs(err) {
			attrs = append(attrs, a)
		}
		e.logger.Warn("search_failed", attrs...)
		return nil, err
	}
	metrics.SearchesTotal.WithLabelValues(string(mode), "success").Inc()

	e.logger.Debug("search_complete",
		slog.String("mode", string(mode)),
		slog.Int("results", len(results)),
		slog.Duration("latency", latency))
	e.recordMetrics(query, mode, results, latency)
	return results, nil
}

func (e *Engine) search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, lerrors.New(lerrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	opts, err := e.resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	if err := lerrors.FromContext(ctx, StageEncode); err != nil {
		return nil, err
	}
	var queryVec []float32
	if !opts.LexicalOnly {
		queryVec, err = e.encode(ctx, query)
		if err != nil {
			return nil, err
		}
	} else {
		e.logger.Debug("lexical_only_search", slog.String("reason", "requested"))
	}
	tokens := store.Tokenize(query)

	vecRanking, lexRanking, err := e.parallelSearch(ctx, queryVec, tokens, opts)
	if err != nil {
		return nil, err
	}

	if err := lerrors.FromContext(ctx, StageFuse); err != nil {
		return nil, err
	}
	fuseStart := time.Now()
	fused := e.fusion.Fuse(vecRanking, lexRanking)
	biased := e.bias.Apply(fused, e.corpus)
	ranked := biased.Sorted()
	if len(ranked) > opts.FinalTopK {
		ranked = ranked[:opts.FinalTopK]
	}

	results := make([]*SearchResult, 0, len(ranked))
	for i, h := range ranked {
		doc, ok := e.corpus.Doc(h.DocID)
		if !ok {
			return nil, lerrors.InternalError(fmt.Sprintf("fused doc_id %d is not in the corpus", h.DocID), nil).
				WithDetail("stage", StageFuse)
		}
		results = append(results, &SearchResult{
			Rank:       i + 1,
			Score:      h.Score,
			DocID:      h.DocID,
			PageTitle:  doc.PageTitle,
			Section:    doc.Section,
			Subsection: doc.Subsection,
			Text:       doc.Text,
			URL:        doc.URL,
		})
	}
	if opts.Explain {
		e.attachExplainData(results, vecRanking, lexRanking, fused, opts.LexicalOnly)
	}
	metrics.ObserveStage(StageFuse, fuseStart)
	return results, nil
}

// encode embeds the query and checks its dimension against the vector index.
func (e *Engine) encode(ctx context.Context, query string) ([]float32, error) {
	started := time.Now()
	vec, err := e.embedder.Embed(ctx, query)
	metrics.ObserveStage(StageEncode, started)
	if err != nil {
		if cerr := lerrors.FromContext(ctx, StageEncode); cerr != nil {
			return nil, cerr
		}
		return nil, stageFailed(StageEncode, lerrors.EncodingError(err))
	}
	if len(vec) != e.vector.Dim() {
		return nil, stageFailed(StageEncode, lerrors.EncodingError(lerrors.DimensionMismatch(e.vector.Dim(), len(vec))))
	}
	return vec, nil
}

// parallelSearch runs the vector and lexical sub-searches concurrently.
// The first failure cancels the other and fails the whole search.
func (e *Engine) parallelSearch(
	ctx context.Context,
	queryVec []float32,
	tokens []string,
	opts SearchOptions,
) (store.Ranking, store.Ranking, error) {
	var vecRanking, lexRanking store.Ranking

	g, gctx := errgroup.WithContext(ctx)
	if !opts.LexicalOnly {
		g.Go(func() error {
			if err := lerrors.FromContext(gctx, StageVector); err != nil {
				return err
			}
			started := time.Now()
			r, err := e.vector.Search(gctx, queryVec, opts.VectorTopK)
			metrics.ObserveStage(StageVector, started)
			if err != nil {
				return subSearchFailed(gctx, StageVector, err)
			}
			vecRanking = r
			return nil
		})
	}
	g.Go(func() error {
		if err := lerrors.FromContext(gctx, StageLexical); err != nil {
			return err
		}
		if opts.LexicalOnly && e.lexical.Len() == 0 {
			return stageFailed(StageLexical, lerrors.EmptyIndex("lexical"))
		}
		started := time.Now()
		r, err := e.lexical.TopK(gctx, tokens, opts.LexicalTopK)
		metrics.ObserveStage(StageLexical, started)
		if err != nil {
			return subSearchFailed(gctx, StageLexical, err)
		}
		lexRanking = r
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return vecRanking, lexRanking, nil
}

// subSearchFailed maps a sub-search error to a LoreError naming the stage.
func subSearchFailed(ctx context.Context, stage string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if cerr := lerrors.FromContext(ctx, stage); cerr != nil {
			return cerr
		}
	}
	var le *lerrors.LoreError
	if errors.As(err, &le) {
		return stageFailed(stage, le)
	}
	return stageFailed(stage, lerrors.New(lerrors.ErrCodeSearchFailed, stage+" search failed", err))
}

func stageFailed(stage string, err *lerrors.LoreError) error {
	metrics.SearchStageErrors.WithLabelValues(stage, err.Code).Inc()
	return err.WithDetail("stage", stage)
}

// resolveOptions fills zero fields from the engine defaults.
func (e *Engine) resolveOptions(opts SearchOptions) (SearchOptions, error) {
	for name, v := range map[string]int{
		"vector_top_k":  opts.VectorTopK,
		"lexical_top_k": opts.LexicalTopK,
		"final_top_k":   opts.FinalTopK,
	} {
		if v < 0 {
			return opts, lerrors.ValidationError(fmt.Sprintf("%s must not be negative, got %d", name, v), nil).
				WithDetail("option", name)
		}
	}
	if opts.VectorTopK == 0 {
		opts.VectorTopK = e.config.Defaults.VectorTopK
	}
	if opts.LexicalTopK == 0 {
		opts.LexicalTopK = e.config.Defaults.LexicalTopK
	}
	if opts.FinalTopK == 0 {
		opts.FinalTopK = e.config.Defaults.FinalTopK
	}
	return opts, nil
}

// attachExplainData records where each result came from.
func (e *Engine) attachExplainData(results []*SearchResult, vec, lex store.Ranking, fused FusedScores, lexicalOnly bool) {
	vecPos := positions(vec)
	lexPos := positions(lex)
	for _, r := range results {
		ex := &ExplainData{
			FusedScore:        fused[r.DocID],
			SectionMultiplier: e.bias.Multiplier(r.Section),
			LexicalOnly:       lexicalOnly,
		}
		if i, ok := vecPos[r.DocID]; ok {
			ex.VectorRank = i + 1
			ex.VectorDistance = vec[i].Score
		}
		if i, ok := lexPos[r.DocID]; ok {
			ex.LexicalRank = i + 1
			ex.LexicalScore = lex[i].Score
		}
		r.Explain = ex
	}
}

func positions(r store.Ranking) map[int]int {
	m := make(map[int]int, len(r))
	for i, h := range r {
		m[h.DocID] = i
	}
	return m
}

// recordMetrics records query telemetry if a collector is configured.
func (e *Engine) recordMetrics(query string, mode telemetry.Mode, results []*SearchResult, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	sections := make([]string, len(results))
	for i, r := range results {
		sections[i] = r.Section
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		Mode:        mode,
		ResultCount: len(results),
		Sections:    sections,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}

// Stats describes the loaded indices.
func (e *Engine) Stats() *EngineStats {
	s := &EngineStats{
		Documents:   e.corpus.Len(),
		Dimensions:  e.vector.Dim(),
		ModelName:   e.embedder.ModelName(),
		RRFConstant: e.fusion.K,
	}
	if ls, ok := e.lexical.(lexicalStats); ok {
		st := ls.Stats()
		s.VocabularySize = st.VocabSize
		s.AvgDocLength = st.AvgDocLength
	}
	return s
}

// Corpus returns the passage collection the engine searches.
func (e *Engine) Corpus() *corpus.Corpus { return e.corpus }

// SectionBias returns the section weighting in effect.
func (e *Engine) SectionBias() SectionBias { return e.bias }

// Close releases the embedder and flushes telemetry.
func (e *Engine) Close() error {
	var errs []error
	if e.metrics != nil {
		errs = append(errs, e.metrics.Close())
	}
	errs = append(errs, e.embedder.Close())
	return errors.Join(errs...)
}
