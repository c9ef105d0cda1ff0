package database

import (
	"testing"
)

func testRoster() []EnrolledStudent {
	return []EnrolledStudent{
		{
			ID:   "s1",
			Name: "Alice",
			Embeddings: []StoredEmbedding{
				{ID: 1, StudentID: "s1", Embedding: []float32{0, 0, 0}},
				{ID: 2, StudentID: "s1", Embedding: []float32{0.1, 0, 0}},
			},
		},
		{
			ID:   "s2",
			Name: "Bob",
			Embeddings: []StoredEmbedding{
				{ID: 3, StudentID: "s2", Embedding: []float32{5, 5, 5}},
			},
		},
		{ID: "s3", Name: "Carol"},
	}
}

func TestHNSWIndex_SearchUninitialized(t *testing.T) {
	idx := NewHNSWIndex()
	if !idx.IsEmpty() {
		t.Fatal("expected new index to be empty")
	}
	if _, err := idx.Search([]float32{0, 0, 0}, 1); err == nil {
		t.Error("expected error searching an uninitialized index")
	}
}

func TestHNSWIndex_BuildAndSearch(t *testing.T) {
	idx := NewHNSWIndex()
	idx.BuildFromRoster(testRoster())

	if idx.Count() != 3 {
		t.Fatalf("expected 3 indexed embeddings, got %d", idx.Count())
	}

	results, err := idx.Search([]float32{4.9, 5, 5}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Embedding.StudentID != "s2" || results[0].StudentName != "Bob" {
		t.Errorf("expected Bob, got %+v", results[0])
	}
	if results[0].Distance < 0.09 || results[0].Distance > 0.11 {
		t.Errorf("expected distance ~0.1, got %v", results[0].Distance)
	}
}

func TestHNSWIndex_DeleteStudent(t *testing.T) {
	idx := NewHNSWIndex()
	idx.BuildFromRoster(testRoster())
	idx.DeleteStudent("s1")

	if idx.Count() != 1 {
		t.Fatalf("expected 1 embedding after delete, got %d", idx.Count())
	}

	results, err := idx.Search([]float32{0, 0, 0}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range results {
		if r.Embedding.StudentID == "s1" {
			t.Errorf("deleted student returned from search: %+v", r)
		}
	}
}

func TestHNSWIndex_Add(t *testing.T) {
	idx := NewHNSWIndex()
	idx.Add("Dave", []StoredEmbedding{{ID: 10, StudentID: "s4", Embedding: []float32{1, 1, 1}}})

	results, err := idx.Search([]float32{1, 1, 1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].StudentName != "Dave" {
		t.Errorf("expected Dave, got %+v", results)
	}
}
