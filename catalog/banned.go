package catalog

import (
	"errors"
	"os"
	"strings"

	"github.com/blavejr/bookmatch/models"
)

type bannedDocument struct {
	BadWords *[]string `json:"bad_words" yaml:"bad_words"`
}

// LoadBannedWords reads a {"bad_words": [...]} document from disk.
func LoadBannedWords(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.CatalogLoadError{Source: path, Err: err}
	}
	words, err := ParseBannedWords(data, FormatFromPath(path))
	if err != nil {
		var le *models.CatalogLoadError
		if errors.As(err, &le) {
			le.Source = path
		}
		return nil, err
	}
	return words, nil
}

// ParseBannedWords decodes a banned-word document. Tokens are lowercased and
// trimmed; blank entries are dropped.
func ParseBannedWords(data []byte, format Format) ([]string, error) {
	var doc bannedDocument
	if err := decode(data, format, &doc); err != nil {
		return nil, &models.CatalogLoadError{Err: err}
	}
	if doc.BadWords == nil {
		return nil, &models.CatalogLoadError{Err: errors.New(`missing top-level "bad_words" list`)}
	}

	words := make([]string, 0, len(*doc.BadWords))
	for _, w := range *doc.BadWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		words = append(words, w)
	}
	return words, nil
}
