package search

import (
	"fmt"
	"strings"
)

// Anchor is the inline citation marker for the result, e.g. "[2]".
func (r *SearchResult) Anchor() string {
	return fmt.Sprintf("[%d]", r.Rank)
}

// BuildContext renders results as numbered passages, one per line, for a
// downstream answer generator to cite by anchor.
func BuildContext(results []*SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(r.Anchor())
		b.WriteByte(' ')
		b.WriteString(r.Text)
	}
	return b.String()
}

// References lists the source of each result as "1. Title [Section] - URL".
func References(results []*SearchResult) []string {
	refs := make([]string, len(results))
	for i, r := range results {
		if r.Section != "" {
			refs[i] = fmt.Sprintf("%d. %s [%s] - %s", r.Rank, r.PageTitle, r.Section, r.URL)
		} else {
			refs[i] = fmt.Sprintf("%d. %s - %s", r.Rank, r.PageTitle, r.URL)
		}
	}
	return refs
}
