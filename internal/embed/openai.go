package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	lerrors "github.com/Aman-CERP/lorerank/internal/errors"
	"github.com/Aman-CERP/lorerank/internal/metrics"
)

// OpenAIConfig configures an OpenAI-compatible embedding endpoint.
type OpenAIConfig struct {
	APIKey string
	// BaseURL points at any OpenAI-compatible server (default: api.openai.com).
	BaseURL    string
	Model      string
	Dimensions int
	// HTTPClient overrides the default client (for tests).
	HTTPClient *http.Client
}

// OpenAIEmbedder calls the /embeddings endpoint through go-openai.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dims   int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates the embedder. Dimensions must be known up front
// because the vector index dimension is checked at engine construction.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, lerrors.ConfigError("openai embedder requires an API key", nil).
			WithSuggestion("Set OPENAI_API_KEY or LORERANK_OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		return nil, lerrors.ConfigError("openai embedder requires a model name", nil)
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  openai.EmbeddingModel(cfg.Model),
		dims:   cfg.Dimensions,
	}, nil
}

// Embed generates the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in a single API call, preserving input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("openai", string(e.model), "error").Inc()
		return nil, parseAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues("openai", string(e.model), "error").Inc()
		return nil, lerrors.New(lerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedding API returned %d vectors for %d inputs", len(resp.Data), len(texts)), nil)
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues("openai", string(e.model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues("openai", string(e.model)).Observe(time.Since(start).Seconds())

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, lerrors.New(lerrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("embedding API returned out-of-range index %d", d.Index), nil)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// parseAPIError maps go-openai errors onto LoreError codes; 429 and 5xx stay retryable.
func parseAPIError(err error) error {
	status := 0
	msg := err.Error()

	var reqErr *openai.RequestError
	var apiErr *openai.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		msg = apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
		if detail := extractDetail(reqErr.Body); detail != "" {
			msg = detail
		} else if len(reqErr.Body) > 0 {
			msg = string(reqErr.Body)
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	default:
		return lerrors.New(lerrors.ErrCodeNetworkUnavailable, "embedding request failed", err)
	}

	code := lerrors.ErrCodeEmbeddingFailed
	if status == http.StatusTooManyRequests || status >= 500 {
		code = lerrors.ErrCodeNetworkUnavailable
	}
	return lerrors.New(code, fmt.Sprintf("embedding API error %d: %s", status, msg), err)
}

// extractDetail reads the "detail" field some compatible servers return.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Detail
	}
	return ""
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string { return string(e.model) }

// Available checks the API by listing models.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	_, err := e.client.ListModels(ctx)
	return err == nil
}

// Close is a no-op; the HTTP client is shared.
func (e *OpenAIEmbedder) Close() error { return nil }
