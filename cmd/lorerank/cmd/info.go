package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/lorerank/internal/config"
	"github.com/Aman-CERP/lorerank/internal/output"
	"github.com/Aman-CERP/lorerank/internal/search"
	"github.com/Aman-CERP/lorerank/internal/store"
	"github.com/Aman-CERP/lorerank/internal/telemetry"
)

// infoReport is the JSON form of `lorerank info`.
type infoReport struct {
	MetadataPath   string                `json:"metadata_path"`
	VectorPath     string                `json:"vector_path"`
	Documents      int                   `json:"documents"`
	Dimensions     int                   `json:"dimensions"`
	IndexModel     string                `json:"index_model,omitempty"`
	Provider       string                `json:"provider"`
	Model          string                `json:"model"`
	VocabularySize int                   `json:"vocabulary_size"`
	AvgDocLength   float64               `json:"avg_doc_length"`
	RRFConstant    int                   `json:"rrf_constant"`
	Sections       []sectionReport       `json:"sections"`
	TopTerms       []telemetry.TermCount `json:"top_terms,omitempty"`
	ZeroResults    []string              `json:"zero_result_queries,omitempty"`
}

type sectionReport struct {
	Name       string  `json:"name"`
	Documents  int     `json:"documents"`
	Multiplier float64 `json:"multiplier"`
}

func newInfoCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show corpus, index and telemetry statistics",
		Long: `Load the configured artifacts and report their sizes, the embedding
model they were built with, section counts with ranking multipliers, and the
most frequent query terms recorded by telemetry.

No embedding provider is contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			report, err := buildInfo(cmd, cfg)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printInfo(output.New(cmd.OutOrStdout()), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func buildInfo(cmd *cobra.Command, cfg *config.Config) (*infoReport, error) {
	c, err := loadCorpus(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	vec, err := loadVectors(cfg)
	if err != nil {
		return nil, err
	}
	bias, err := search.NewSectionBias(cfg.Sections)
	if err != nil {
		return nil, err
	}
	lex := store.NewBM25Index(c.Texts(), store.BM25Config{
		K1:      cfg.Search.BM25K1,
		B:       cfg.Search.BM25B,
		Epsilon: cfg.Search.BM25Epsilon,
	}).Stats()

	report := &infoReport{
		MetadataPath:   cfg.Index.MetadataPath,
		VectorPath:     cfg.Index.VectorPath,
		Documents:      c.Len(),
		Dimensions:     vec.Dim(),
		IndexModel:     vec.ModelName(),
		Provider:       cfg.Embeddings.Provider,
		Model:          cfg.Embeddings.Model,
		VocabularySize: lex.VocabSize,
		AvgDocLength:   lex.AvgDocLength,
		RRFConstant:    cfg.Search.RRFConstant,
		Sections:       []sectionReport{},
	}
	for _, sc := range c.SectionCounts() {
		if sc.Section == "" {
			continue
		}
		report.Sections = append(report.Sections, sectionReport{
			Name:       sc.Section,
			Documents:  sc.Count,
			Multiplier: bias.Multiplier(sc.Section),
		})
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Path != "" && fileExists(cfg.Telemetry.Path) {
		st, err := telemetry.OpenSQLiteStore(cfg.Telemetry.Path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = st.Close() }()
		if report.TopTerms, err = st.GetTopTerms(10); err != nil {
			return nil, err
		}
		if report.ZeroResults, err = st.GetZeroResultQueries(5); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func printInfo(out *output.Writer, r *infoReport) {
	out.Header("Corpus")
	out.KeyValue("Metadata", r.MetadataPath)
	out.KeyValue("Vectors", r.VectorPath)
	out.KeyValue("Passages", r.Documents)
	out.KeyValue("Dimensions", r.Dimensions)
	if r.IndexModel != "" {
		out.KeyValue("Index model", r.IndexModel)
	}
	out.KeyValue("Embedder", fmt.Sprintf("%s/%s", r.Provider, r.Model))
	out.KeyValue("Vocabulary", r.VocabularySize)
	out.KeyValue("Avg length", fmt.Sprintf("%.1f tokens", r.AvgDocLength))
	out.KeyValue("RRF k", r.RRFConstant)

	if len(r.Sections) > 0 {
		out.Newline()
		out.Header("Sections")
		for _, s := range r.Sections {
			out.KeyValue(s.Name, fmt.Sprintf("%d passages  x%.2f", s.Documents, s.Multiplier))
		}
	}

	if len(r.TopTerms) > 0 {
		out.Newline()
		out.Header("Top query terms")
		for _, t := range r.TopTerms {
			out.KeyValue(t.Term, t.Count)
		}
	}
	if len(r.ZeroResults) > 0 {
		out.Newline()
		out.Header("Recent zero-result queries")
		for _, q := range r.ZeroResults {
			out.Status("", q)
		}
	}
}
