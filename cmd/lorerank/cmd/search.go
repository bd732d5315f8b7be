package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/lorerank/internal/output"
	"github.com/Aman-CERP/lorerank/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	topK        int
	vectorK     int
	lexicalK    int
	lexicalOnly bool
	explain     bool
	format      string // "text", "json", "context"
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the passage corpus",
		Long: `Search the passage corpus with hybrid retrieval.

Vector and BM25 rankings are fused with Reciprocal Rank Fusion and weighted
by section. Use --lexical-only to skip the embedding provider entirely.

Examples:
  lorerank search "who is diana burnwood"
  lorerank search "blood money reception" -k 10 --explain
  lorerank search "agent 47 origin" --format context
  lorerank search "silent assassin rating" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, g, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of passages to return (default from config)")
	cmd.Flags().IntVar(&opts.vectorK, "vector-k", 0, "Candidates from vector search (default from config)")
	cmd.Flags().IntVar(&opts.lexicalK, "lexical-k", 0, "Candidates from BM25 search (default from config)")
	cmd.Flags().BoolVar(&opts.lexicalOnly, "lexical-only", false, "Rank by BM25 only; no embedding provider is contacted")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show vector and BM25 ranks, fused score and section multiplier")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json, context")

	return cmd
}

func runSearch(cmd *cobra.Command, g *globalOptions, query string, opts searchOptions) error {
	switch opts.format {
	case "text", "json", "context":
	default:
		return fmt.Errorf("unknown format %q (supported: text, json, context)", opts.format)
	}

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := openEngine(ctx, cfg, openOptions{offline: opts.lexicalOnly})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	results, err := rt.engine.Search(ctx, query, search.SearchOptions{
		VectorTopK:  opts.vectorK,
		LexicalTopK: opts.lexicalK,
		FinalTopK:   opts.topK,
		LexicalOnly: opts.lexicalOnly,
		Explain:     opts.explain,
	})
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "context":
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, search.BuildContext(results))
		_, _ = fmt.Fprintln(out)
		for _, ref := range search.References(results) {
			_, _ = fmt.Fprintln(out, ref)
		}
		return nil
	default:
		printResults(output.New(cmd.OutOrStdout()), query, results)
		return nil
	}
}

func printResults(out *output.Writer, query string, results []*search.SearchResult) {
	if len(results) == 0 {
		out.Warningf("No passages found for %q", query)
		return
	}

	st := out.Styles()
	out.Header(fmt.Sprintf("%d passages for %q", len(results), query))
	out.Newline()
	for _, r := range results {
		title := r.PageTitle
		if r.Section != "" {
			title += " / " + st.Section.Render(r.Section)
		}
		out.Statusf(r.Anchor(), "%s  %s", title, st.Score.Render(fmt.Sprintf("%.6f", r.Score)))
		out.Status("", output.Truncate(r.Text, 200))
		if r.URL != "" {
			out.Status("", st.Dim.Render(r.URL))
		}
		if e := r.Explain; e != nil {
			out.Status("", st.Label.Render(fmt.Sprintf(
				"vector #%d (d=%.4f)  bm25 #%d (%.4f)  rrf %.6f  x%.2f",
				e.VectorRank, e.VectorDistance, e.LexicalRank, e.LexicalScore, e.FusedScore, e.SectionMultiplier)))
		}
		out.Newline()
	}
}
