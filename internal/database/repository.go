package database

import (
	"context"
)

// RosterReader provides read-only access to the student roster
type RosterReader interface {
	// FetchEnrolled returns every student with their embeddings.
	// An empty classID returns the whole roster.
	FetchEnrolled(ctx context.Context, classID string) ([]EnrolledStudent, error)
	// GetStudent returns a student by ID, returns nil if not found
	GetStudent(ctx context.Context, studentID string) (*Student, error)
	// ListStudents returns students ordered by name, optionally filtered by class
	ListStudents(ctx context.Context, classID string) ([]Student, error)
}

// EmbeddingReader provides read-only access to stored face embeddings
type EmbeddingReader interface {
	// FetchEmbeddings returns all embeddings of a student, best quality first
	FetchEmbeddings(ctx context.Context, studentID string) ([]StoredEmbedding, error)
	// CountEmbeddings returns the number of embeddings of a student
	CountEmbeddings(ctx context.Context, studentID string) (int, error)
	// FindNearest finds the k embeddings closest to the query by Euclidean distance
	FindNearest(ctx context.Context, query []float32, k int) ([]Neighbor, error)
}

// EmbeddingWriter provides write access to face embeddings
type EmbeddingWriter interface {
	EmbeddingReader

	// UpsertStudent creates the student or updates name and class of an existing one.
	// Empty name or class keep the stored values.
	UpsertStudent(ctx context.Context, student Student) error

	// AppendEmbeddings adds embeddings for a student, creating the student if needed.
	// Existing embeddings are never replaced. Returns the new IDs in input order.
	AppendEmbeddings(ctx context.Context, studentID string, embeddings []NewEmbedding) ([]int64, error)

	// DeleteEmbeddings removes every embedding of a student and returns how many were removed.
	// Deleting a student without embeddings returns 0 and no error.
	DeleteEmbeddings(ctx context.Context, studentID string) (int, error)
}

// Store is the full roster and embedding store used by the recognition service
type Store interface {
	RosterReader
	EmbeddingWriter
}
