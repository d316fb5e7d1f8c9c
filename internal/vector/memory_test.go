package vector

import (
	"context"
	"math"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	ids := []string{"a", "b", "c"}
	if err := idx.Add(ctx, ids, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("got order %s, %s", results[0].ID, results[1].ID)
	}
	if math.Abs(results[0].Score-1) > 1e-6 {
		t.Errorf("self score = %v, want 1", results[0].Score)
	}
}

func TestMemoryIndex_cosineIgnoresMagnitude(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"long", "aligned"}, [][]float32{{10, 10}, {0.1, 0}})
	results, err := idx.Search(ctx, []float32{3, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].ID != "aligned" {
		t.Errorf("expected direction to win over magnitude, got %s", results[0].ID)
	}
}

func TestMemoryIndex_kLargerThanSize(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"x"}, [][]float32{{1, 0}})
	results, err := idx.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
	if results, _ := idx.Search(ctx, []float32{1, 0}, 0); len(results) != 0 {
		t.Errorf("k=0 should return nothing, got %d", len(results))
	}
}

func TestMemoryIndex_tiesKeepInsertionOrder(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"first", "second", "third"}, [][]float32{{1, 0}, {1, 0}, {1, 0}})
	results, _ := idx.Search(ctx, []float32{1, 0}, 3)
	for i, want := range []string{"first", "second", "third"} {
		if results[i].ID != want {
			t.Errorf("results[%d] = %s, want %s", i, results[i].ID, want)
		}
	}
}

func TestMemoryIndex_dimensionMismatch(t *testing.T) {
	idx, _ := NewMemoryIndex(3)
	ctx := context.Background()
	if err := idx.Add(ctx, []string{"a"}, [][]float32{{1, 2}}); err == nil {
		t.Error("expected error for wrong vector dimension")
	}
	if err := idx.Add(ctx, []string{"a", "b"}, [][]float32{{1, 2, 3}}); err == nil {
		t.Error("expected error for ids/vectors mismatch")
	}
	if idx.Size() != 0 {
		t.Errorf("failed Add must not insert, size=%d", idx.Size())
	}
	if _, err := idx.Search(ctx, []float32{1}, 1); err == nil {
		t.Error("expected error for wrong query dimension")
	}
}

func TestNewMemoryIndex_invalidDimensions(t *testing.T) {
	if _, err := NewMemoryIndex(0); err == nil {
		t.Error("expected error")
	}
}
