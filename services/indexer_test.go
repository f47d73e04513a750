package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blavejr/bookmatch/models"
	"github.com/blavejr/bookmatch/storage"
)

// flakyProvider returns the same vector for every text, sleeps a little so
// workers finish out of order, and fails on texts containing failOn.
type flakyProvider struct {
	failOn string
	calls  atomic.Int32
}

func (p *flakyProvider) Model() string { return "flaky" }

func (p *flakyProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	n := p.calls.Add(1)
	time.Sleep(time.Duration(5-n%5) * time.Millisecond)
	if p.failOn != "" && strings.Contains(text, p.failOn) {
		return nil, fmt.Errorf("%w: connection reset", models.ErrProviderUnavailable)
	}
	return []float32{1, 1}, nil
}

func (p *flakyProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedSequential(ctx, p, texts)
}

func indexerDocs(n int) []models.Document {
	docs := make([]models.Document, n)
	for i := range docs {
		docs[i] = models.NewDocument(models.Book{
			ID:      fmt.Sprintf("b%d", i),
			Title:   fmt.Sprintf("Book %d", i),
			Summary: fmt.Sprintf("Summary number %d.", i),
		})
	}
	return docs
}

func TestIndexer_BuildKeepsCatalogOrder(t *testing.T) {
	docs := indexerDocs(12)
	idx := storage.NewMemoryIndex()

	if err := NewIndexer(&flakyProvider{}, idx, 4).Build(context.Background(), docs); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if idx.Count() != len(docs) {
		t.Fatalf("Count() = %d, want %d", idx.Count(), len(docs))
	}

	// every vector is equal, so ties come back in insertion order
	hits, err := idx.Query(context.Background(), []float32{1, 1}, len(docs))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	for i, hit := range hits {
		if hit.ID != docs[i].ID {
			t.Errorf("hits[%d].ID = %s, want %s", i, hit.ID, docs[i].ID)
		}
	}
}

func TestIndexer_BuildFailureLeavesIndexEmpty(t *testing.T) {
	docs := indexerDocs(8)
	idx := storage.NewMemoryIndex()
	provider := &flakyProvider{failOn: "Book 5"}

	err := NewIndexer(provider, idx, 3).Build(context.Background(), docs)
	if !errors.Is(err, models.ErrProviderUnavailable) {
		t.Fatalf("Build() error = %v, want ErrProviderUnavailable", err)
	}
	if !strings.Contains(err.Error(), "b5") {
		t.Errorf("error %q should name the failing document", err)
	}
	if idx.Count() != 0 {
		t.Errorf("Count() = %d, want 0 after a failed build", idx.Count())
	}
}

func TestIndexer_BuildRejectsEmpty(t *testing.T) {
	idx := storage.NewMemoryIndex()
	provider := &flakyProvider{}

	for _, docs := range [][]models.Document{nil, {}} {
		err := NewIndexer(provider, idx, 2).Build(context.Background(), docs)
		if !errors.Is(err, models.ErrInvalidArgument) {
			t.Errorf("Build(%v) error = %v, want ErrInvalidArgument", docs, err)
		}
	}
	if provider.calls.Load() != 0 {
		t.Errorf("provider calls = %d, want 0", provider.calls.Load())
	}
}

func TestIndexer_BuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	idx := storage.NewMemoryIndex()

	if err := NewIndexer(NewSimpleEmbedder(), idx, 2).Build(ctx, indexerDocs(3)); err == nil {
		t.Error("Build() error = nil, want error for cancelled context")
	}
	if idx.Count() != 0 {
		t.Errorf("Count() = %d, want 0", idx.Count())
	}
}
