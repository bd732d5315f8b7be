package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/lorerank/internal/search"
)

// FormatPassages renders results as markdown with [n] anchors and a
// reference list.
func FormatPassages(query string, results []*search.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No passages found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Passages for \"%s\"\n\n", query)
	for _, r := range results {
		fmt.Fprintf(&sb, "%s **%s**", r.Anchor(), r.PageTitle)
		if r.Section != "" {
			fmt.Fprintf(&sb, " / %s", r.Section)
		}
		if r.Subsection != "" {
			fmt.Fprintf(&sb, " / %s", r.Subsection)
		}
		fmt.Fprintf(&sb, " (score %.4f)\n\n%s\n\n", r.Score, r.Text)
	}

	sb.WriteString("### References\n\n")
	for _, ref := range search.References(results) {
		sb.WriteString(ref)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit > max {
		return max
	}
	return limit
}

// ToPassageOutput converts a search result to the tool output format.
func ToPassageOutput(r *search.SearchResult) PassageOutput {
	out := PassageOutput{
		Rank:       r.Rank,
		Score:      r.Score,
		DocID:      r.DocID,
		PageTitle:  r.PageTitle,
		Section:    r.Section,
		Subsection: r.Subsection,
		Text:       r.Text,
		URL:        r.URL,
	}
	if e := r.Explain; e != nil {
		out.Explain = &ExplainOutput{
			VectorRank:        e.VectorRank,
			VectorDistance:    e.VectorDistance,
			LexicalRank:       e.LexicalRank,
			LexicalScore:      e.LexicalScore,
			FusedScore:        e.FusedScore,
			SectionMultiplier: e.SectionMultiplier,
			LexicalOnly:       e.LexicalOnly,
		}
	}
	return out
}
