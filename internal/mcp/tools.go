package mcp

// SearchPassagesInput defines the input schema for the search_passages tool.
type SearchPassagesInput struct {
	Query       string `json:"query" jsonschema:"the natural language question or keywords"`
	TopK        int    `json:"top_k,omitempty" jsonschema:"number of passages to return, default 5, max 50"`
	LexicalOnly bool   `json:"lexical_only,omitempty" jsonschema:"skip semantic search and rank by BM25 only"`
	Explain     bool   `json:"explain,omitempty" jsonschema:"include per-result vector, BM25 and section scoring details"`
}

// SearchPassagesOutput defines the output schema for the search_passages tool.
type SearchPassagesOutput struct {
	Results    []PassageOutput `json:"results" jsonschema:"ranked passages, best first"`
	Context    string          `json:"context" jsonschema:"passages as [n] text lines for citation"`
	References []string        `json:"references" jsonschema:"numbered source list matching the [n] anchors"`
}

// PassageOutput is one ranked passage.
type PassageOutput struct {
	Rank       int            `json:"rank" jsonschema:"1-indexed rank, used as the citation anchor"`
	Score      float64        `json:"score" jsonschema:"fused score after section weighting"`
	DocID      int            `json:"doc_id"`
	PageTitle  string         `json:"page_title"`
	Section    string         `json:"section,omitempty"`
	Subsection string         `json:"subsection,omitempty"`
	Text       string         `json:"text"`
	URL        string         `json:"url"`
	Explain    *ExplainOutput `json:"explain,omitempty"`
}

// ExplainOutput mirrors search.ExplainData for the tool schema.
type ExplainOutput struct {
	VectorRank        int     `json:"vector_rank" jsonschema:"position in the semantic ranking, 0 if absent"`
	VectorDistance    float64 `json:"vector_distance"`
	LexicalRank       int     `json:"lexical_rank" jsonschema:"position in the BM25 ranking, 0 if absent"`
	LexicalScore      float64 `json:"lexical_score"`
	FusedScore        float64 `json:"fused_score"`
	SectionMultiplier float64 `json:"section_multiplier"`
	LexicalOnly       bool    `json:"lexical_only,omitempty"`
}

// CorpusInfoInput is the (empty) input of the corpus_info tool.
type CorpusInfoInput struct{}

// CorpusInfoOutput describes the loaded corpus and ranking configuration.
type CorpusInfoOutput struct {
	Documents      int           `json:"documents"`
	Dimensions     int           `json:"dimensions"`
	VocabularySize int           `json:"vocabulary_size"`
	AvgDocLength   float64       `json:"avg_doc_length"`
	ModelName      string        `json:"model_name,omitempty"`
	RRFConstant    int           `json:"rrf_constant"`
	Sections       []SectionInfo `json:"sections" jsonschema:"section names with passage counts and ranking multipliers"`
}

// SectionInfo is one section's passage count and multiplier.
type SectionInfo struct {
	Name       string  `json:"name"`
	Documents  int     `json:"documents"`
	Multiplier float64 `json:"multiplier"`
}
