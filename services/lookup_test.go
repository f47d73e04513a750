package services

import (
	"errors"
	"testing"

	"github.com/blavejr/bookmatch/models"
)

func testBooks() []models.Book {
	return []models.Book{
		{ID: "1", Title: "Dune", Summary: "Paul Atreides on Arrakis."},
		{ID: "2", Title: "Emma", Summary: "A matchmaker in Highbury."},
		{ID: "3", Title: "The Hobbit", Summary: "Bilbo goes there and back again."},
	}
}

func TestSummaryLookup_Resolve(t *testing.T) {
	l := NewSummaryLookup(testBooks())

	tests := []struct {
		query     string
		wantTitle string
	}{
		{"Dune", "Dune"},
		{"dune", "Dune"},
		{"DUNE", "Dune"},
		{"the hobbit", "The Hobbit"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			title, summary, err := l.Resolve(tt.query)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.query, err)
			}
			if title != tt.wantTitle {
				t.Errorf("title = %q, want %q", title, tt.wantTitle)
			}
			if summary == "" {
				t.Error("summary is empty")
			}
		})
	}
}

func TestSummaryLookup_NotFound(t *testing.T) {
	l := NewSummaryLookup(testBooks())

	_, _, err := l.Resolve("Nonexistent Book")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrNotFound", err)
	}
	want := "The title «Nonexistent Book» was not found."
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}

	if _, _, err := l.Resolve("   "); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("Resolve(blank) error = %v, want ErrInvalidArgument", err)
	}
}

func TestSummaryLookup_OwnsData(t *testing.T) {
	books := testBooks()
	l := NewSummaryLookup(books)
	books[0].Summary = "changed"

	_, summary, _ := l.Resolve("Dune")
	if summary != "Paul Atreides on Arrakis." {
		t.Errorf("summary = %q, lookup should not see caller edits", summary)
	}
	if l.Len() != 3 {
		t.Errorf("Len() = %d, want 3", l.Len())
	}
}
