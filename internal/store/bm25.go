package store

import (
	"context"
	"math"
	"slices"
)

// BM25Index scores documents with Okapi BM25 over Tokenize output.
// It is built once from the corpus texts in doc_id order and never mutated.
type BM25Index struct {
	config   BM25Config
	termFreq []map[string]int // per doc_id
	docLen   []int
	avgDL    float64
	idf      map[string]float64
}

// IndexStats summarizes a lexical index.
type IndexStats struct {
	DocumentCount int
	VocabSize     int
	AvgDocLength  float64
}

// NewBM25Index tokenizes texts and precomputes term statistics.
// cfg is used as given; start from DefaultBM25Config.
func NewBM25Index(texts []string, cfg BM25Config) *BM25Index {
	idx := &BM25Index{
		config:   cfg,
		termFreq: make([]map[string]int, len(texts)),
		docLen:   make([]int, len(texts)),
		idf:      make(map[string]float64),
	}

	docFreq := make(map[string]int)
	total := 0
	for i, text := range texts {
		tokens := Tokenize(text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for tok := range tf {
			docFreq[tok]++
		}
		idx.termFreq[i] = tf
		idx.docLen[i] = len(tokens)
		total += len(tokens)
	}
	if len(texts) > 0 {
		idx.avgDL = float64(total) / float64(len(texts))
	}

	idx.computeIDF(docFreq)
	return idx
}

// computeIDF uses ln((N-df+0.5)/(df+0.5)). Terms present in more than half
// the corpus get a negative value, which is replaced by Epsilon times the
// mean IDF so common terms still score slightly above absent ones.
func (x *BM25Index) computeIDF(docFreq map[string]int) {
	if len(docFreq) == 0 {
		return
	}
	n := float64(len(x.docLen))
	var sum float64
	var negative []string
	for term, df := range docFreq {
		v := math.Log(n-float64(df)+0.5) - math.Log(float64(df)+0.5)
		x.idf[term] = v
		sum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}
	floor := x.config.Epsilon * sum / float64(len(docFreq))
	for _, term := range negative {
		x.idf[term] = floor
	}
}

// Len returns the number of indexed documents.
func (x *BM25Index) Len() int { return len(x.docLen) }

// Config returns the scoring parameters.
func (x *BM25Index) Config() BM25Config { return x.config }

// Stats returns corpus-level statistics.
func (x *BM25Index) Stats() IndexStats {
	return IndexStats{
		DocumentCount: len(x.docLen),
		VocabSize:     len(x.idf),
		AvgDocLength:  x.avgDL,
	}
}

// IDF returns the inverse document frequency of term, 0 if unseen.
func (x *BM25Index) IDF(term string) float64 { return x.idf[term] }

// Score returns the BM25 relevance of docID for queryTokens. Repeated query
// tokens contribute once per occurrence; tokens outside the vocabulary
// contribute nothing. Out-of-range doc ids score 0.
func (x *BM25Index) Score(queryTokens []string, docID int) float64 {
	if docID < 0 || docID >= len(x.docLen) {
		return 0
	}
	tf := x.termFreq[docID]
	norm := 1.0
	if x.avgDL > 0 {
		norm = 1 - x.config.B + x.config.B*float64(x.docLen[docID])/x.avgDL
	}

	var score float64
	for _, tok := range queryTokens {
		f, ok := tf[tok]
		if !ok {
			continue
		}
		freq := float64(f)
		score += x.idf[tok] * freq * (x.config.K1 + 1) / (freq + x.config.K1*norm)
	}
	return score
}

// TopK scores every document and returns the min(k, Len()) best, descending,
// with equal scores ordered by ascending doc_id. Documents sharing no token
// with the query are kept with score 0 when fewer than k documents match.
func (x *BM25Index) TopK(ctx context.Context, queryTokens []string, k int) (Ranking, error) {
	if k <= 0 || len(x.docLen) == 0 {
		return Ranking{}, nil
	}

	hits := make(Ranking, len(x.docLen))
	for i := range x.docLen {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		hits[i] = Hit{DocID: i, Score: x.Score(queryTokens, i)}
	}

	slices.SortFunc(hits, compareDescending)
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

var _ LexicalSearcher = (*BM25Index)(nil)
