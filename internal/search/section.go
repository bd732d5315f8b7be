package search

import (
	"fmt"
	"maps"
	"math"
	"slices"

	lerrors "github.com/Aman-CERP/lorerank/internal/errors"
)

// SectionLookup resolves a doc_id to its section title ("" when the passage
// has none). *corpus.Corpus implements it.
type SectionLookup interface {
	Section(docID int) string
}

// SectionBias multiplies fused scores by a per-section factor. Sections not
// in the table, and passages without a section, keep a factor of 1.0.
type SectionBias struct {
	multipliers map[string]float64
}

// DefaultSectionBias demotes navigational sections and promotes the ones
// that usually answer questions about a game.
func DefaultSectionBias() SectionBias {
	return SectionBias{multipliers: map[string]float64{
		"External links": 0.2,
		"References":     0.3,
		"See also":       0.4,
		"Reception":      1.2,
		"Development":    1.1,
		"Gameplay":       1.1,
		"Controversy":    1.3,
	}}
}

// NewSectionBias validates and copies a section table. Multipliers must be
// finite and positive. Section names match exactly (case-sensitive).
func NewSectionBias(multipliers map[string]float64) (SectionBias, error) {
	for name, m := range multipliers {
		if m <= 0 || math.IsNaN(m) || math.IsInf(m, 0) {
			return SectionBias{}, lerrors.ValidationError(
				fmt.Sprintf("section %q: multiplier must be a positive number, got %v", name, m), nil).
				WithDetail("section", name)
		}
	}
	return SectionBias{multipliers: maps.Clone(multipliers)}, nil
}

// Multiplier returns the factor for section.
func (b SectionBias) Multiplier(section string) float64 {
	if m, ok := b.multipliers[section]; ok && section != "" {
		return m
	}
	return 1.0
}

// Apply returns a new score map with every score multiplied by its
// passage's section factor. No document is added or dropped.
func (b SectionBias) Apply(fused FusedScores, sections SectionLookup) FusedScores {
	out := make(FusedScores, len(fused))
	for id, score := range fused {
		out[id] = score * b.Multiplier(sections.Section(id))
	}
	return out
}

// Sections lists the configured section names, sorted.
func (b SectionBias) Sections() []string {
	return slices.Sorted(maps.Keys(b.multipliers))
}

// Table returns a copy of the multiplier table.
func (b SectionBias) Table() map[string]float64 {
	return maps.Clone(b.multipliers)
}
