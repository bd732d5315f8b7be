package search

import (
	"time"
)

// Default sub-search and result sizes.
const (
	DefaultVectorTopK  = 50
	DefaultLexicalTopK = 50
	DefaultFinalTopK   = 5
)

// SearchOptions configures a single query. Zero values take the engine
// defaults; negative values are rejected.
type SearchOptions struct {
	// VectorTopK is how many nearest passages the vector index returns (default: 50).
	VectorTopK int

	// LexicalTopK is how many BM25 passages the lexical index returns (default: 50).
	LexicalTopK int

	// FinalTopK caps the returned results (default: 5).
	FinalTopK int

	// LexicalOnly skips query encoding and vector search entirely.
	LexicalOnly bool

	// Explain attaches per-result scoring details.
	Explain bool
}

// DefaultSearchOptions returns 50/50/5.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		VectorTopK:  DefaultVectorTopK,
		LexicalTopK: DefaultLexicalTopK,
		FinalTopK:   DefaultFinalTopK,
	}
}

// SearchResult is one ranked passage with its metadata.
type SearchResult struct {
	// Rank is the 1-indexed position in the result list.
	Rank int `json:"rank"`

	// Score is the fused score after section weighting.
	Score float64 `json:"score"`

	DocID      int    `json:"doc_id"`
	PageTitle  string `json:"page_title"`
	Section    string `json:"section,omitempty"`
	Subsection string `json:"subsection,omitempty"`
	Text       string `json:"text"`
	URL        string `json:"url"`

	// Explain is set only when SearchOptions.Explain is true.
	Explain *ExplainData `json:"explain,omitempty"`
}

// ExplainData shows how a result's score was assembled.
type ExplainData struct {
	// VectorRank is the 1-indexed position in the vector ranking, 0 if absent.
	VectorRank int `json:"vector_rank"`

	// VectorDistance is the squared L2 distance, meaningful only when VectorRank > 0.
	VectorDistance float64 `json:"vector_distance"`

	// LexicalRank is the 1-indexed position in the BM25 ranking, 0 if absent.
	LexicalRank int `json:"lexical_rank"`

	// LexicalScore is the BM25 score, meaningful only when LexicalRank > 0.
	LexicalScore float64 `json:"lexical_score"`

	// FusedScore is the RRF score before section weighting.
	FusedScore float64 `json:"fused_score"`

	// SectionMultiplier is the factor applied for the passage's section.
	SectionMultiplier float64 `json:"section_multiplier"`

	// LexicalOnly is true when vector search was skipped for this query.
	LexicalOnly bool `json:"lexical_only,omitempty"`
}

// EngineConfig configures the search engine.
type EngineConfig struct {
	// Defaults fill zero fields of SearchOptions.
	Defaults SearchOptions

	// RRFConstant is the RRF fusion constant k (default: 60).
	RRFConstant int

	// Sections is the section weighting table (default: DefaultSectionBias).
	Sections *SectionBias

	// Timeout bounds each Search call; 0 relies on the caller's context.
	Timeout time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() EngineConfig {
	bias := DefaultSectionBias()
	return EngineConfig{
		Defaults:    DefaultSearchOptions(),
		RRFConstant: DefaultRRFConstant,
		Sections:    &bias,
		Timeout:     10 * time.Second,
	}
}

// EngineStats describes the loaded indices.
type EngineStats struct {
	Documents      int     `json:"documents"`
	Dimensions     int     `json:"dimensions"`
	VocabularySize int     `json:"vocabulary_size"`
	AvgDocLength   float64 `json:"avg_doc_length"`
	ModelName      string  `json:"model_name"`
	RRFConstant    int     `json:"rrf_constant"`
}
