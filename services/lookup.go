package services

import (
	"fmt"
	"strings"

	"github.com/blavejr/bookmatch/models"
)

// SummaryLookup resolves a title to its summary, tolerating case differences.
type SummaryLookup struct {
	summaries map[string]string
	titles    []string
}

func NewSummaryLookup(books []models.Book) *SummaryLookup {
	l := &SummaryLookup{
		summaries: make(map[string]string, len(books)),
		titles:    make([]string, 0, len(books)),
	}
	for _, b := range books {
		if _, dup := l.summaries[b.Title]; dup {
			continue
		}
		l.summaries[b.Title] = b.Summary
		l.titles = append(l.titles, b.Title)
	}
	return l
}

// Resolve tries an exact match first and then a case-insensitive scan in
// catalog order. It returns the canonical title alongside the summary.
func (l *SummaryLookup) Resolve(title string) (string, string, error) {
	if strings.TrimSpace(title) == "" {
		return "", "", fmt.Errorf("%w: title is required", models.ErrInvalidArgument)
	}
	if summary, ok := l.summaries[title]; ok {
		return title, summary, nil
	}
	for _, t := range l.titles {
		if strings.EqualFold(t, title) {
			return t, l.summaries[t], nil
		}
	}
	return "", "", &models.NotFoundError{Title: title}
}

func (l *SummaryLookup) Len() int { return len(l.titles) }
