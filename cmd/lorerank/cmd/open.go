package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Aman-CERP/lorerank/internal/config"
	"github.com/Aman-CERP/lorerank/internal/corpus"
	"github.com/Aman-CERP/lorerank/internal/embed"
	lerrors "github.com/Aman-CERP/lorerank/internal/errors"
	"github.com/Aman-CERP/lorerank/internal/search"
	"github.com/Aman-CERP/lorerank/internal/store"
	"github.com/Aman-CERP/lorerank/internal/telemetry"
)

// openOptions adjusts how the engine is assembled.
type openOptions struct {
	// offline replaces the configured embedder with a static one sized to
	// the vector index, so lexical-only runs never contact a provider.
	offline bool
}

// app bundles the engine with what must be closed after it.
type app struct {
	engine  *search.Engine
	metrics *telemetry.QueryMetrics
	store   telemetry.Store
}

// Close shuts the engine down, which flushes telemetry, then closes the
// telemetry store.
func (r *app) Close() error {
	err := r.engine.Close()
	if r.store != nil {
		err = errors.Join(err, r.store.Close())
	}
	return err
}

// loadCorpus reads the passage metadata in the configured format.
func loadCorpus(ctx context.Context, cfg *config.Config) (*corpus.Corpus, error) {
	switch cfg.Index.CorpusFormat {
	case config.CorpusFormatSQLite:
		return corpus.LoadSQLite(ctx, cfg.Index.MetadataPath)
	default:
		return corpus.LoadJSON(cfg.Index.MetadataPath)
	}
}

// loadVectors reads the vector index in the configured format.
func loadVectors(cfg *config.Config) (*store.FlatL2Index, error) {
	switch cfg.Index.VectorFormat {
	case config.VectorFormatSnapshot:
		return store.LoadSnapshot(cfg.Index.VectorPath)
	default:
		return store.LoadFaissFlat(cfg.Index.VectorPath)
	}
}

func newEmbedder(ctx context.Context, cfg *config.Config, dims int) (embed.Embedder, error) {
	ecfg := embed.Config{
		Provider:      embed.ParseProvider(cfg.Embeddings.Provider),
		Model:         cfg.Embeddings.Model,
		Dimensions:    cfg.Embeddings.Dimensions,
		OllamaHost:    cfg.Embeddings.OllamaHost,
		OpenAIBaseURL: cfg.Embeddings.OpenAIBaseURL,
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		CacheSize:     cfg.Embeddings.CacheSize,
	}
	if ecfg.Provider == embed.ProviderStatic && ecfg.Dimensions == 0 {
		ecfg.Dimensions = dims
	}
	return embed.NewEmbedder(ctx, ecfg)
}

// newTelemetry returns a nil collector when telemetry is disabled and a
// nil store when it is kept in memory.
func newTelemetry(cfg *config.Config) (*telemetry.QueryMetrics, telemetry.Store, error) {
	if !cfg.Telemetry.Enabled {
		return nil, nil, nil
	}
	if cfg.Telemetry.Path == "" {
		return telemetry.NewQueryMetrics(nil, telemetry.DefaultConfig()), nil, nil
	}
	st, err := telemetry.OpenSQLiteStore(cfg.Telemetry.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open telemetry store: %w", err)
	}
	return telemetry.NewQueryMetrics(st, telemetry.DefaultConfig()), st, nil
}

func engineConfig(cfg *config.Config) (search.EngineConfig, error) {
	timeout, err := cfg.SearchTimeout()
	if err != nil {
		return search.EngineConfig{}, err
	}
	bias, err := search.NewSectionBias(cfg.Sections)
	if err != nil {
		return search.EngineConfig{}, err
	}
	return search.EngineConfig{
		Defaults: search.SearchOptions{
			VectorTopK:  cfg.Search.VectorTopK,
			LexicalTopK: cfg.Search.LexicalTopK,
			FinalTopK:   cfg.Search.FinalTopK,
		},
		RRFConstant: cfg.Search.RRFConstant,
		Sections:    &bias,
		Timeout:     timeout,
	}, nil
}

// openEngine loads the artifacts named by cfg and assembles the engine.
func openEngine(ctx context.Context, cfg *config.Config, opts openOptions) (*app, error) {
	c, err := loadCorpus(ctx, cfg)
	if err != nil {
		return nil, err
	}
	vec, err := loadVectors(cfg)
	if err != nil {
		return nil, err
	}
	lex := store.NewBM25Index(c.Texts(), store.BM25Config{
		K1:      cfg.Search.BM25K1,
		B:       cfg.Search.BM25B,
		Epsilon: cfg.Search.BM25Epsilon,
	})

	var embedder embed.Embedder
	if opts.offline {
		vec.WithModelName("")
		embedder = embed.NewStaticEmbedder(vec.Dim())
	} else {
		embedder, err = newEmbedder(ctx, cfg, vec.Dim())
		if err != nil {
			return nil, err
		}
	}

	ecfg, err := engineConfig(cfg)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	qm, st, err := newTelemetry(cfg)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	engineOpts := []search.EngineOption{search.WithLogger(slog.Default())}
	if qm != nil {
		engineOpts = append(engineOpts, search.WithMetrics(qm))
	}
	engine, err := search.NewEngine(c, vec, lex, embedder, ecfg, engineOpts...)
	if err != nil {
		_ = embedder.Close()
		if qm != nil {
			_ = qm.Close()
		}
		if st != nil {
			_ = st.Close()
		}
		var le *lerrors.LoreError
		if errors.As(err, &le) && le.Code == lerrors.ErrCodeIndexInconsistent {
			return nil, le.WithSuggestion("Rebuild the vector index with the configured embedding model, or fix embeddings.model.")
		}
		return nil, err
	}

	slog.Info("engine_opened",
		slog.Int("documents", c.Len()),
		slog.Int("dimensions", vec.Dim()),
		slog.String("model", embedder.ModelName()),
		slog.Bool("offline", opts.offline))

	return &app{engine: engine, metrics: qm, store: st}, nil
}
