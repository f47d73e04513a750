package models

import "fmt"

// Book is one catalog record. Loaded once at startup and never mutated.
type Book struct {
	ID      string `bson:"_id" json:"id" yaml:"id"`
	Title   string `bson:"title" json:"title" yaml:"title"`
	Summary string `bson:"summary" json:"summary" yaml:"summary"`
}

// Document is the unit that gets embedded and indexed, derived 1:1 from a Book.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// IndexEntry is what a vector index holds for a single id.
type IndexEntry struct {
	ID        string
	Text      string
	Metadata  map[string]string
	Embedding []float32
}

// QueryHit is a single nearest-neighbor result. Snippet is filled in by the
// retrieval service, not by the index.
type QueryHit struct {
	ID       string
	Title    string
	Text     string
	Metadata map[string]string
	Distance float64
	Snippet  string
}

// SearchOutcome is the result of a search. Blocked outcomes carry the
// moderation message and no hits.
type SearchOutcome struct {
	Blocked bool
	Message string
	Hits    []QueryHit
}

const MetadataTitle = "title"

// ComposeDocumentText builds the text that is embedded for a book.
func ComposeDocumentText(title, summary string) string {
	return fmt.Sprintf("Title: %s\nSummary: %s", title, summary)
}

func NewDocument(b Book) Document {
	return Document{
		ID:       b.ID,
		Text:     ComposeDocumentText(b.Title, b.Summary),
		Metadata: map[string]string{MetadataTitle: b.Title},
	}
}

// CloneMetadata returns an independent copy of m.
func CloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
