package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_IsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestSearchesTotal_CountsByLabel(t *testing.T) {
	before := testutil.ToFloat64(SearchesTotal.WithLabelValues("lexical", "ok"))

	SearchesTotal.WithLabelValues("lexical", "ok").Inc()

	assert.Equal(t, before+1, testutil.ToFloat64(SearchesTotal.WithLabelValues("lexical", "ok")))
}

func TestObserveStage(t *testing.T) {
	ObserveStage("fuse", time.Now().Add(-time.Millisecond))

	assert.GreaterOrEqual(t, testutil.CollectAndCount(SearchStageDuration), 1)
}

func TestHandler_ExposesRegisteredCollectors(t *testing.T) {
	Register()
	EmbeddingCacheTotal.WithLabelValues("hit").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lorerank_embedding_cache_total")
}
