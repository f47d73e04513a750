package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/blavejr/bookmatch/models"
	"github.com/blavejr/bookmatch/moderation"
	"github.com/blavejr/bookmatch/storage"
)

const (
	DefaultTopK = 3

	EmptyMessageReply = "Please type something."
	NoSummaryFound    = "No summary found."
	NoMatchReply      = "I couldn't find a matching book."
	UnavailableReply  = "Sorry, I couldn't reach the book index right now. Please try again."

	snippetMarker = "Summary:"
	snippetLimit  = 350
)

// Retrieval answers chat and search requests: moderate, embed, query the
// index and project the hits.
type Retrieval struct {
	gate     *moderation.Gate
	provider EmbeddingProvider
	index    storage.VectorIndex
	lookup   *SummaryLookup
}

func NewRetrieval(gate *moderation.Gate, provider EmbeddingProvider, index storage.VectorIndex, lookup *SummaryLookup) *Retrieval {
	return &Retrieval{
		gate:     gate,
		provider: provider,
		index:    index,
		lookup:   lookup,
	}
}

// Chat returns a reply for a free-text message. It never fails: provider
// and index errors are logged and turned into a fixed reply.
func (r *Retrieval) Chat(ctx context.Context, message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return EmptyMessageReply
	}
	if r.gate.IsBlocked(message) {
		return moderation.RedirectMessage
	}

	hits, err := r.nearest(ctx, message, 1)
	if err != nil {
		log.Printf("Chat retrieval failed: %v", err)
		return UnavailableReply
	}
	if len(hits) == 0 {
		return NoMatchReply
	}

	title := hits[0].Title
	summary := NoSummaryFound
	if canonical, s, err := r.lookup.Resolve(title); err == nil {
		title, summary = canonical, s
	} else {
		log.Printf("Summary lookup failed for %q: %v", title, err)
	}

	return fmt.Sprintf("Best match: %s\n\n%s", title, summary)
}

// Search returns up to k hits for query, each with a summary snippet.
// Distances are passed through as the index reports them.
func (r *Retrieval) Search(ctx context.Context, query string, k int) (*models.SearchOutcome, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", models.ErrInvalidArgument)
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: k must be >= 0", models.ErrInvalidArgument)
	}
	if r.gate.IsBlocked(query) {
		return &models.SearchOutcome{Blocked: true, Message: moderation.RedirectMessage}, nil
	}

	hits, err := r.nearest(ctx, query, k)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		hits[i].Snippet = ExtractSnippet(hits[i].Text)
	}
	return &models.SearchOutcome{Hits: hits}, nil
}

// Summary resolves a title to its canonical form and summary.
func (r *Retrieval) Summary(title string) (string, string, error) {
	return r.lookup.Resolve(title)
}

// Dimension reports the embedding length pinned by the provider, or 0 when
// the provider does not track it or has not embedded anything yet.
func (r *Retrieval) Dimension() int {
	if d, ok := r.provider.(interface{ Dimension() int }); ok {
		return d.Dimension()
	}
	return 0
}

func (r *Retrieval) nearest(ctx context.Context, text string, k int) ([]models.QueryHit, error) {
	vec, err := r.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	hits, err := r.index.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return hits, nil
}

// ExtractSnippet returns the text after the first "Summary:" marker, or the
// whole text without one, cut to 350 characters plus "..." when longer.
func ExtractSnippet(text string) string {
	snippet := text
	if _, after, found := strings.Cut(text, snippetMarker); found {
		snippet = strings.TrimSpace(after)
	}
	if utf8.RuneCountInString(snippet) <= snippetLimit {
		return snippet
	}
	runes := []rune(snippet)
	return string(runes[:snippetLimit]) + "..."
}
