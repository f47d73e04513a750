package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/blavejr/bookmatch/models"
	"github.com/blavejr/bookmatch/storage"

	"golang.org/x/sync/errgroup"
)

// Indexer embeds catalog documents and loads them into a vector index.
type Indexer struct {
	provider EmbeddingProvider
	index    storage.VectorIndex
	workers  int
}

func NewIndexer(provider EmbeddingProvider, index storage.VectorIndex, workers int) *Indexer {
	if workers <= 0 {
		workers = 1
	}
	return &Indexer{provider: provider, index: index, workers: workers}
}

// Build embeds every document with a bounded pool of workers and upserts
// them in catalog order. Any embedding failure aborts the whole build and
// nothing is written to the index.
func (ix *Indexer) Build(ctx context.Context, docs []models.Document) error {
	if len(docs) == 0 {
		return fmt.Errorf("%w: no documents to index", models.ErrInvalidArgument)
	}
	log.Printf("Indexing %d documents with %s (%d workers)...", len(docs), ix.provider.Model(), ix.workers)
	startTime := time.Now()

	embeddings := make([][]float32, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i, doc := range docs {
		g.Go(func() error {
			vec, err := ix.provider.Embed(gctx, doc.Text)
			if err != nil {
				return fmt.Errorf("failed to embed document %s: %w", doc.ID, err)
			}
			embeddings[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	embedTime := time.Since(startTime)

	ids := make([]string, len(docs))
	texts := make([]string, len(docs))
	metadatas := make([]map[string]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		texts[i] = doc.Text
		metadatas[i] = doc.Metadata
	}

	if err := ix.index.Upsert(ctx, ids, texts, metadatas, embeddings); err != nil {
		return fmt.Errorf("failed to upsert documents: %w", err)
	}

	log.Printf("Indexed %d documents in %v (embeddings: %v)", ix.index.Count(), time.Since(startTime), embedTime)
	return nil
}
