package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/Aman-CERP/lorerank/internal/store"
)

// StaticModelName identifies vectors produced by StaticEmbedder.
const StaticModelName = "static-hash"

// Weights for vector generation
const (
	unigramWeight = 0.6
	bigramWeight  = 0.25
	trigramWeight = 0.15
	charGramSize  = 3
)

// StaticEmbedder hashes word unigrams, word bigrams and character trigrams
// into a fixed-size vector. It needs no network or model and is fully
// deterministic, which makes it usable offline and in tests, but it only
// captures surface overlap.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a static embedder; dims <= 0 uses DefaultDimensions.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed generates the embedding for a single text. Blank text maps to the zero vector.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	vec := make([]float32, e.dims)
	words := store.Tokenize(text)
	if len(words) == 0 {
		return vec, nil
	}

	for i, w := range words {
		vec[hashToIndex(w, e.dims)] += unigramWeight
		if i > 0 {
			vec[hashToIndex(words[i-1]+" "+w, e.dims)] += bigramWeight
		}
	}
	for _, g := range charGrams(strings.Join(words, " "), charGramSize) {
		vec[hashToIndex("#"+g, e.dims)] += trigramWeight
	}
	return normalizeVector(vec), nil
}

// charGrams returns n-rune windows over the letters and digits of text.
func charGrams(text string, n int) []string {
	runes := make([]rune, 0, len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			runes = append(runes, r)
		}
	}
	if len(runes) < n {
		return nil
	}
	grams := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		grams = append(grams, string(runes[i:i+n]))
	}
	return grams
}

func hashToIndex(s string, size int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// EmbedBatch embeds each text in order.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int { return e.dims }

// ModelName returns StaticModelName.
func (e *StaticEmbedder) ModelName() string { return StaticModelName }

// Available is true until Close.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder closed.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
