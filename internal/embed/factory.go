package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lerrors "github.com/Aman-CERP/lorerank/internal/errors"
)

// ProviderType names an embedding backend.
type ProviderType string

const (
	// ProviderOllama calls a local Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI calls an OpenAI-compatible embeddings API.
	ProviderOpenAI ProviderType = "openai"

	// ProviderStatic hashes text locally; for offline use and tests.
	ProviderStatic ProviderType = "static"
)

// Config selects and configures an embedder.
type Config struct {
	Provider   ProviderType
	Model      string
	Dimensions int

	OllamaHost    string
	OpenAIBaseURL string
	OpenAIAPIKey  string

	// CacheSize bounds the query cache; negative disables caching.
	CacheSize int
}

// NewEmbedder builds the configured embedder and wraps it with the query cache.
// There is no silent fallback between providers: a model mismatch would make
// every distance meaningless.
func NewEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	var (
		e   Embedder
		err error
	)

	switch ParseProvider(string(cfg.Provider)) {
	case ProviderOllama:
		e, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case ProviderOpenAI:
		e, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case ProviderStatic:
		e = NewStaticEmbedder(cfg.Dimensions)
	default:
		return nil, lerrors.ConfigError(fmt.Sprintf("unknown embedding provider %q", cfg.Provider), nil).
			WithSuggestion("Use one of: " + strings.Join(ValidProviders(), ", "))
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("embedder_created",
		slog.String("provider", string(cfg.Provider)),
		slog.String("model", e.ModelName()),
		slog.Int("dimensions", e.Dimensions()))

	if cfg.CacheSize < 0 {
		return e, nil
	}
	return NewCachedEmbedder(e, cfg.CacheSize), nil
}

// ParseProvider normalizes a provider name; unknown names are returned as given.
func ParseProvider(s string) ProviderType {
	return ProviderType(strings.ToLower(strings.TrimSpace(s)))
}

// ValidProviders lists the accepted provider names.
func ValidProviders() []string {
	return []string{string(ProviderOllama), string(ProviderOpenAI), string(ProviderStatic)}
}

// IsValidProvider reports whether s names a known provider.
func IsValidProvider(s string) bool {
	p := ParseProvider(s)
	for _, v := range ValidProviders() {
		if string(p) == v {
			return true
		}
	}
	return false
}
