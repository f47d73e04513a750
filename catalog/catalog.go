package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blavejr/bookmatch/models"

	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a catalog or banned-word document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the document format from the file extension.
// Anything that is not .yaml/.yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Catalog is the immutable, ordered set of books the service answers about.
type Catalog struct {
	books []models.Book
}

// New validates books and builds a catalog from an independent copy of them.
func New(books []models.Book) (*Catalog, error) {
	if len(books) == 0 {
		return nil, &models.CatalogLoadError{Err: errors.New("catalog contains no books")}
	}

	seen := make(map[string]int, len(books))
	owned := make([]models.Book, len(books))
	for i, b := range books {
		b.ID = strings.TrimSpace(b.ID)
		switch {
		case b.ID == "":
			return nil, &models.CatalogLoadError{Err: fmt.Errorf("book %d: missing id", i)}
		case strings.TrimSpace(b.Title) == "":
			return nil, &models.CatalogLoadError{Err: fmt.Errorf("book %d (id %s): missing title", i, b.ID)}
		case strings.TrimSpace(b.Summary) == "":
			return nil, &models.CatalogLoadError{Err: fmt.Errorf("book %d (id %s): missing summary", i, b.ID)}
		}
		if prev, dup := seen[b.ID]; dup {
			return nil, &models.CatalogLoadError{Err: fmt.Errorf("book %d: duplicate id %s (first seen at %d)", i, b.ID, prev)}
		}
		seen[b.ID] = i
		owned[i] = b
	}

	return &Catalog{books: owned}, nil
}

// LoadFile reads a catalog document from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.CatalogLoadError{Source: path, Err: err}
	}
	c, err := Parse(data, FormatFromPath(path))
	if err != nil {
		var le *models.CatalogLoadError
		if errors.As(err, &le) && le.Source == "" {
			le.Source = path
		}
		return nil, err
	}
	return c, nil
}

// Parse decodes a {"books": [...]} document and validates it.
func Parse(data []byte, format Format) (*Catalog, error) {
	var doc catalogDocument
	if err := decode(data, format, &doc); err != nil {
		return nil, &models.CatalogLoadError{Err: err}
	}
	if doc.Books == nil {
		return nil, &models.CatalogLoadError{Err: errors.New(`missing top-level "books" list`)}
	}

	books := make([]models.Book, len(doc.Books))
	for i, r := range doc.Books {
		books[i] = models.Book{ID: string(r.ID), Title: r.Title, Summary: r.Summary}
	}
	return New(books)
}

// Books returns a copy of the catalog in load order.
func (c *Catalog) Books() []models.Book {
	out := make([]models.Book, len(c.books))
	copy(out, c.books)
	return out
}

// Documents returns the indexable documents derived from the catalog.
func (c *Catalog) Documents() []models.Document {
	docs := make([]models.Document, len(c.books))
	for i, b := range c.books {
		docs[i] = models.NewDocument(b)
	}
	return docs
}

func (c *Catalog) Len() int { return len(c.books) }

// Marshal encodes the catalog as a {"books": [...]} document.
func (c *Catalog) Marshal(format Format) ([]byte, error) {
	doc := struct {
		Books []models.Book `json:"books" yaml:"books"`
	}{Books: c.books}

	if format == FormatYAML {
		return yaml.Marshal(doc)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile saves the catalog to path in the format its extension implies.
func (c *Catalog) WriteFile(path string) error {
	data, err := c.Marshal(FormatFromPath(path))
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	return nil
}

type catalogDocument struct {
	Books []bookRecord `json:"books" yaml:"books"`
}

type bookRecord struct {
	ID      bookID `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title"`
	Summary string `json:"summary" yaml:"summary"`
}

// bookID accepts either a string or a number in the source document.
type bookID string

func (id *bookID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = bookID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = bookID(n.String())
	return nil
}

func (id *bookID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: id must be a scalar", node.Line)
	}
	if node.Tag == "!!null" {
		*id = ""
		return nil
	}
	if node.Tag == "!!float" {
		if f, err := strconv.ParseFloat(node.Value, 64); err == nil && f == float64(int64(f)) {
			*id = bookID(strconv.FormatInt(int64(f), 10))
			return nil
		}
	}
	*id = bookID(node.Value)
	return nil
}

func decode(data []byte, format Format, out any) error {
	switch format {
	case FormatYAML:
		return yaml.Unmarshal(data, out)
	default:
		return json.Unmarshal(data, out)
	}
}
