// Package corpus holds the passage collection that both retrieval indices
// were built from. Position in the collection is the doc_id.
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	lerrors "github.com/Aman-CERP/lorerank/internal/errors"
)

// Document is one retrievable passage.
type Document struct {
	DocID      int    `json:"-"`
	PageTitle  string `json:"page_title"`
	Section    string `json:"section,omitempty"`
	Subsection string `json:"subsection,omitempty"`
	Text       string `json:"text"`
	URL        string `json:"url"`
}

// HasSection reports whether the passage came from a named section.
func (d Document) HasSection() bool { return d.Section != "" }

// Corpus is an immutable, doc_id-ordered passage list.
type Corpus struct {
	docs []Document
}

// New builds a corpus, assigning doc_id by position.
func New(docs []Document) *Corpus {
	c := &Corpus{docs: make([]Document, len(docs))}
	copy(c.docs, docs)
	for i := range c.docs {
		c.docs[i].DocID = i
	}
	return c
}

// Len returns the number of documents.
func (c *Corpus) Len() int { return len(c.docs) }

// Doc returns the document with the given id.
func (c *Corpus) Doc(id int) (Document, bool) {
	if id < 0 || id >= len(c.docs) {
		return Document{}, false
	}
	return c.docs[id], true
}

// Section returns the section of doc id, or "" when absent or out of range.
func (c *Corpus) Section(id int) string {
	if id < 0 || id >= len(c.docs) {
		return ""
	}
	return c.docs[id].Section
}

// Texts returns passage texts in doc_id order, the input of the lexical index.
func (c *Corpus) Texts() []string {
	texts := make([]string, len(c.docs))
	for i, d := range c.docs {
		texts[i] = d.Text
	}
	return texts
}

// Documents returns a copy of all documents.
func (c *Corpus) Documents() []Document {
	out := make([]Document, len(c.docs))
	copy(out, c.docs)
	return out
}

// SectionCount is the number of passages under one section name.
type SectionCount struct {
	Section string
	Count   int
}

// SectionCounts tallies passages per section, most common first.
// Passages without a section are counted under "".
func (c *Corpus) SectionCounts() []SectionCount {
	counts := make(map[string]int)
	for _, d := range c.docs {
		counts[d.Section]++
	}
	out := make([]SectionCount, 0, len(counts))
	for s, n := range counts {
		out = append(out, SectionCount{Section: s, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Section < out[j].Section
	})
	return out
}

// LoadJSON reads a metadata file: a JSON array of passage records in doc_id order.
func LoadJSON(path string) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lerrors.New(lerrors.ErrCodeFileNotFound, "metadata file not found: "+path, err)
		}
		return nil, lerrors.New(lerrors.ErrCodeFilePermission, "cannot open metadata file: "+path, err)
	}
	defer f.Close()

	c, err := ReadJSON(bufio.NewReader(f))
	if err != nil {
		return nil, lerrors.New(lerrors.ErrCodeCorruptCorpus, "invalid metadata file", err).WithDetail("path", path)
	}
	return c, nil
}

// ReadJSON decodes a JSON array of passage records.
func ReadJSON(r io.Reader) (*Corpus, error) {
	var docs []Document
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return New(docs), nil
}

// WriteJSON encodes the corpus in the format ReadJSON accepts.
func (c *Corpus) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c.docs)
}
