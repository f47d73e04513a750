package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/blavejr/bookmatch/models"
)

// MemoryIndex is an exhaustive-scan vector index using squared Euclidean
// distance. Entries are immutable once stored; an upsert swaps the pointer
// for its id under the write lock, so readers never see a partial entry.
type MemoryIndex struct {
	mu        sync.RWMutex
	slots     map[string]int
	entries   []*models.IndexEntry
	dimension int
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{slots: make(map[string]int)}
}

// Upsert stores copies of the given data. A replaced id keeps its original
// insertion position for tie-breaking.
func (m *MemoryIndex) Upsert(ctx context.Context, ids, texts []string, metadatas []map[string]string, embeddings [][]float32) error {
	if err := checkUpsertArgs(ids, texts, metadatas, embeddings); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dim := m.dimension
	for i, e := range embeddings {
		if dim == 0 {
			dim = len(e)
		}
		if len(e) != dim {
			return fmt.Errorf("%w: id %s has %d dimensions, index has %d",
				models.ErrDimensionMismatch, ids[i], len(e), dim)
		}
	}
	m.dimension = dim

	for i, id := range ids {
		entry := &models.IndexEntry{
			ID:        id,
			Text:      texts[i],
			Metadata:  models.CloneMetadata(metadatas[i]),
			Embedding: slices.Clone(embeddings[i]),
		}
		if slot, ok := m.slots[id]; ok {
			m.entries[slot] = entry
			continue
		}
		m.slots[id] = len(m.entries)
		m.entries = append(m.entries, entry)
	}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, embedding []float32, k int) ([]models.QueryHit, error) {
	if err := checkQueryArgs(embedding, k); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 || k == 0 {
		return []models.QueryHit{}, nil
	}
	if len(embedding) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			models.ErrDimensionMismatch, len(embedding), m.dimension)
	}

	type scored struct {
		entry *models.IndexEntry
		dist  float64
	}
	all := make([]scored, len(m.entries))
	for i, e := range m.entries {
		all[i] = scored{entry: e, dist: squaredEuclidean(embedding, e.Embedding)}
	}
	// stable: equal distances keep insertion order
	slices.SortStableFunc(all, func(a, b scored) int { return cmp.Compare(a.dist, b.dist) })

	if k > len(all) {
		k = len(all)
	}
	hits := make([]models.QueryHit, k)
	for i := 0; i < k; i++ {
		e := all[i].entry
		hits[i] = models.QueryHit{
			ID:       e.ID,
			Title:    e.Metadata[models.MetadataTitle],
			Text:     e.Text,
			Metadata: models.CloneMetadata(e.Metadata),
			Distance: all[i].dist,
		}
	}
	return hits, nil
}

func (m *MemoryIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// get returns a copy of the entry stored for id.
func (m *MemoryIndex) get(id string) (models.IndexEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slot, ok := m.slots[id]
	if !ok {
		return models.IndexEntry{}, false
	}
	e := m.entries[slot]
	return models.IndexEntry{
		ID:        e.ID,
		Text:      e.Text,
		Metadata:  models.CloneMetadata(e.Metadata),
		Embedding: slices.Clone(e.Embedding),
	}, true
}

func squaredEuclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
