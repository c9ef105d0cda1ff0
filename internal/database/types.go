package database

import (
	"time"
)

// Student is a roster entry. Students exist independently of their embeddings.
type Student struct {
	ID        string
	Name      string
	ClassID   string
	CreatedAt time.Time
}

// StoredEmbedding represents a face embedding stored in the database
type StoredEmbedding struct {
	ID        int64
	StudentID string
	Embedding []float32
	Quality   float64 // quality score in [0, 1] computed at enrollment
	ImageRef  string  // archive reference of the face crop (empty if not archived)
	CreatedAt time.Time
}

// NewEmbedding is an embedding produced by enrollment, not yet persisted.
type NewEmbedding struct {
	Embedding []float32
	Quality   float64
	ImageRef  string
}

// EnrolledStudent is a student together with every reference embedding.
// A student may have zero embeddings, in which case it is never matched.
type EnrolledStudent struct {
	ID         string
	Name       string
	ClassID    string
	Embeddings []StoredEmbedding
}

// Neighbor is a single nearest-neighbour search hit.
type Neighbor struct {
	Embedding   StoredEmbedding
	StudentName string
	Distance    float64 // Euclidean distance to the query
}
