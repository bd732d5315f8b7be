package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lerrors "github.com/Aman-CERP/lorerank/internal/errors"
)

func newFakeOpenAI(t *testing.T, status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// answer in reverse order to check Index handling
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		var data []item
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Object: "embedding", Embedding: []float32{float32(i), 1}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "m"})
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOpenAIEmbedder_RequiresKeyAndModel(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{Model: "text-embedding-3-small"})
	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeConfigInvalid))

	_, err = NewOpenAIEmbedder(OpenAIConfig{APIKey: "k"})
	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeConfigInvalid))
}

func TestOpenAIEmbedder_EmbedBatch_OrdersByIndex(t *testing.T) {
	srv := newFakeOpenAI(t, http.StatusOK)
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "m", Dimensions: 2})
	require.NoError(t, err)

	got, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {2, 1}}, got)
	assert.Equal(t, 2, e.Dimensions())
	assert.Equal(t, "m", e.ModelName())
	assert.True(t, e.Available(context.Background()))
}

func TestOpenAIEmbedder_RateLimitIsRetryable(t *testing.T) {
	srv := newFakeOpenAI(t, http.StatusTooManyRequests)
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "m"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, lerrors.IsRetryable(err))
	assert.Contains(t, err.Error(), "slow down")
}

func TestOpenAIEmbedder_BadRequestIsNotRetryable(t *testing.T) {
	srv := newFakeOpenAI(t, http.StatusBadRequest)
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "m"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "q")
	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeEmbeddingFailed))
}
