package storage

import (
	"context"
	"fmt"

	"github.com/blavejr/bookmatch/models"
)

// VectorIndex stores one entry per document id and answers k-nearest-neighbor
// queries. Smaller distances mean more similar.
type VectorIndex interface {
	// Upsert inserts or wholly replaces the entry for each id. All four
	// slices must have the same length.
	Upsert(ctx context.Context, ids, texts []string, metadatas []map[string]string, embeddings [][]float32) error
	// Query returns at most k hits sorted by ascending distance. An empty
	// index yields an empty result, not an error.
	Query(ctx context.Context, embedding []float32, k int) ([]models.QueryHit, error)
	// Count returns the number of stored entries.
	Count() int
}

func checkUpsertArgs(ids, texts []string, metadatas []map[string]string, embeddings [][]float32) error {
	n := len(ids)
	if len(texts) != n || len(metadatas) != n || len(embeddings) != n {
		return fmt.Errorf("%w: upsert lengths differ (ids=%d texts=%d metadatas=%d embeddings=%d)",
			models.ErrInvalidArgument, n, len(texts), len(metadatas), len(embeddings))
	}
	for i, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty id at position %d", models.ErrInvalidArgument, i)
		}
		if len(embeddings[i]) == 0 {
			return fmt.Errorf("%w: empty embedding for id %s", models.ErrInvalidArgument, id)
		}
	}
	return nil
}

func checkQueryArgs(embedding []float32, k int) error {
	if k < 0 {
		return fmt.Errorf("%w: k must be >= 0, got %d", models.ErrInvalidArgument, k)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty query embedding", models.ErrInvalidArgument)
	}
	return nil
}
