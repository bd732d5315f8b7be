package store

import "strings"

// Tokenize lowercases text and splits it on whitespace. Punctuation stays
// attached to its word and there is no stemming or stopword removal, so
// documents and queries must both go through this function.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
