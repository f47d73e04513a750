package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/blavejr/bookmatch/models"

	"github.com/philippgille/chromem-go"
)

// ChromemIndex keeps entries in an in-process chromem-go collection. Distance
// is cosine distance (1 - cosine similarity). Tie order among equal
// distances is whatever chromem returns.
type ChromemIndex struct {
	collection *chromem.Collection

	mu        sync.Mutex
	dimension int
}

var errEmbeddingsRequired = errors.New("chromem collection is used with precomputed embeddings only")

// NewChromemIndex creates a non-persistent chromem collection with the given name.
func NewChromemIndex(name string) (*ChromemIndex, error) {
	db := chromem.NewDB()
	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, errEmbeddingsRequired
	}
	collection, err := db.GetOrCreateCollection(name, map[string]string{"hnsw:space": "cosine"}, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to create chromem collection: %w", err)
	}
	return &ChromemIndex{collection: collection}, nil
}

func (c *ChromemIndex) Upsert(ctx context.Context, ids, texts []string, metadatas []map[string]string, embeddings [][]float32) error {
	if err := checkUpsertArgs(ids, texts, metadatas, embeddings); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dim := c.dimension
	vecs := make([][]float32, len(embeddings))
	metas := make([]map[string]string, len(metadatas))
	for i, e := range embeddings {
		if dim == 0 {
			dim = len(e)
		}
		if len(e) != dim {
			return fmt.Errorf("%w: id %s has %d dimensions, index has %d",
				models.ErrDimensionMismatch, ids[i], len(e), dim)
		}
		vecs[i] = slices.Clone(e)
		metas[i] = models.CloneMetadata(metadatas[i])
		if metas[i] == nil {
			metas[i] = map[string]string{}
		}
	}

	if err := c.collection.Add(ctx, slices.Clone(ids), vecs, metas, slices.Clone(texts)); err != nil {
		return fmt.Errorf("chromem upsert failed: %w", err)
	}
	c.dimension = dim
	return nil
}

func (c *ChromemIndex) Query(ctx context.Context, embedding []float32, k int) ([]models.QueryHit, error) {
	if err := checkQueryArgs(embedding, k); err != nil {
		return nil, err
	}

	c.mu.Lock()
	dim := c.dimension
	c.mu.Unlock()

	count := c.collection.Count()
	if count == 0 || k == 0 {
		return []models.QueryHit{}, nil
	}
	if len(embedding) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			models.ErrDimensionMismatch, len(embedding), dim)
	}
	// chromem rejects nResults greater than the collection size
	if k > count {
		k = count
	}

	results, err := c.collection.QueryEmbedding(ctx, slices.Clone(embedding), k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query failed: %w", err)
	}

	hits := make([]models.QueryHit, len(results))
	for i, r := range results {
		hits[i] = models.QueryHit{
			ID:       r.ID,
			Title:    r.Metadata[models.MetadataTitle],
			Text:     r.Content,
			Metadata: models.CloneMetadata(r.Metadata),
			Distance: 1 - float64(r.Similarity),
		}
	}
	return hits, nil
}

func (c *ChromemIndex) Count() int {
	return c.collection.Count()
}
