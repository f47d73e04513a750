package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/blavejr/bookmatch/models"
)

func TestChromemIndex_QueryNearest(t *testing.T) {
	idx, err := NewChromemIndex("books-test")
	if err != nil {
		t.Fatalf("NewChromemIndex error = %v", err)
	}
	upsertOne(t, idx, "x", "X", []float32{1, 0})
	upsertOne(t, idx, "y", "Y", []float32{0, 1})

	hits, err := idx.Query(context.Background(), []float32{0.1, 0.9}, 5)
	if err != nil {
		t.Fatalf("Query error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Query returned %d hits, want 2 (k clamped to size)", len(hits))
	}
	if hits[0].ID != "y" || hits[0].Title != "Y" {
		t.Errorf("nearest = %+v, want y", hits[0])
	}
	if hits[0].Distance > hits[1].Distance {
		t.Errorf("distances not ascending: %v, %v", hits[0].Distance, hits[1].Distance)
	}
}

func TestChromemIndex_UpsertReplaces(t *testing.T) {
	idx, err := NewChromemIndex("books-replace")
	if err != nil {
		t.Fatal(err)
	}
	upsertOne(t, idx, "1", "Dune", []float32{1, 0})
	upsertOne(t, idx, "1", "Emma", []float32{0, 1})

	if idx.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", idx.Count())
	}
	hits, err := idx.Query(context.Background(), []float32{0, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Title != "Emma" {
		t.Errorf("Title = %q, want Emma", hits[0].Title)
	}
}

func TestChromemIndex_EmptyAndInvalid(t *testing.T) {
	idx, err := NewChromemIndex("books-empty")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	hits, err := idx.Query(ctx, []float32{1, 0}, 3)
	if err != nil || len(hits) != 0 {
		t.Errorf("empty Query = %v, %v; want no hits, nil", hits, err)
	}

	upsertOne(t, idx, "1", "Dune", []float32{1, 0})
	if _, err := idx.Query(ctx, []float32{1, 0, 0}, 1); !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("Query error = %v, want ErrDimensionMismatch", err)
	}
	if err := idx.Upsert(ctx, []string{"1"}, nil, nil, nil); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("Upsert error = %v, want ErrInvalidArgument", err)
	}
}
