// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// MockStore is an in-memory implementation of database.Store
type MockStore struct {
	mu         sync.RWMutex
	students   map[string]*database.Student
	order      []string // student IDs in creation order
	embeddings map[string][]database.StoredEmbedding
	nextID     int64

	// Error injection
	FetchEnrolledError error
	AppendError        error
	DeleteError        error
	FetchError         error
	FindNearestError   error

	// FetchEnrolledCalls counts roster loads
	FetchEnrolledCalls int
}

var _ database.Store = (*MockStore)(nil)

// NewMockStore creates a new empty mock store
func NewMockStore() *MockStore {
	return &MockStore{
		students:   make(map[string]*database.Student),
		embeddings: make(map[string][]database.StoredEmbedding),
	}
}

func (m *MockStore) ensureStudentLocked(id string) *database.Student {
	s, ok := m.students[id]
	if !ok {
		s = &database.Student{ID: id, CreatedAt: time.Now()}
		m.students[id] = s
		m.order = append(m.order, id)
	}
	return s
}

// AddStudent adds a student with the given embeddings to the mock store
func (m *MockStore) AddStudent(student database.Student, vectors ...[]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.ensureStudentLocked(student.ID)
	s.Name = student.Name
	s.ClassID = student.ClassID
	for _, v := range vectors {
		m.nextID++
		m.embeddings[student.ID] = append(m.embeddings[student.ID], database.StoredEmbedding{
			ID:        m.nextID,
			StudentID: student.ID,
			Embedding: v,
			CreatedAt: time.Now(),
		})
	}
}

// UpsertStudent creates or updates a student
func (m *MockStore) UpsertStudent(ctx context.Context, student database.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.ensureStudentLocked(student.ID)
	if student.Name != "" {
		s.Name = student.Name
	}
	if student.ClassID != "" {
		s.ClassID = student.ClassID
	}
	return nil
}

// GetStudent returns a student by ID
func (m *MockStore) GetStudent(ctx context.Context, studentID string) (*database.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[studentID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// ListStudents returns students ordered by name
func (m *MockStore) ListStudents(ctx context.Context, classID string) ([]database.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.Student
	for _, id := range m.order {
		s := m.students[id]
		if classID == "" || s.ClassID == classID {
			result = append(result, *s)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// FetchEnrolled returns students in creation order with copies of their embeddings
func (m *MockStore) FetchEnrolled(ctx context.Context, classID string) ([]database.EnrolledStudent, error) {
	m.mu.Lock()
	m.FetchEnrolledCalls++
	m.mu.Unlock()

	if m.FetchEnrolledError != nil {
		return nil, m.FetchEnrolledError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.EnrolledStudent
	for _, id := range m.order {
		s := m.students[id]
		if classID != "" && s.ClassID != classID {
			continue
		}
		result = append(result, database.EnrolledStudent{
			ID:         s.ID,
			Name:       s.Name,
			ClassID:    s.ClassID,
			Embeddings: append([]database.StoredEmbedding(nil), m.embeddings[id]...),
		})
	}
	return result, nil
}

// FetchEmbeddings returns a student's embeddings, best quality first
func (m *MockStore) FetchEmbeddings(ctx context.Context, studentID string) ([]database.StoredEmbedding, error) {
	if m.FetchError != nil {
		return nil, m.FetchError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := append([]database.StoredEmbedding(nil), m.embeddings[studentID]...)
	sort.SliceStable(result, func(i, j int) bool { return result[i].Quality > result[j].Quality })
	return result, nil
}

// CountEmbeddings returns the number of embeddings of a student
func (m *MockStore) CountEmbeddings(ctx context.Context, studentID string) (int, error) {
	if m.FetchError != nil {
		return 0, m.FetchError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.embeddings[studentID]), nil
}

// AppendEmbeddings appends embeddings, creating the student if needed
func (m *MockStore) AppendEmbeddings(
	ctx context.Context, studentID string, embeddings []database.NewEmbedding,
) ([]int64, error) {
	if m.AppendError != nil {
		return nil, m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureStudentLocked(studentID)
	ids := make([]int64, 0, len(embeddings))
	for _, e := range embeddings {
		m.nextID++
		m.embeddings[studentID] = append(m.embeddings[studentID], database.StoredEmbedding{
			ID:        m.nextID,
			StudentID: studentID,
			Embedding: e.Embedding,
			Quality:   e.Quality,
			ImageRef:  e.ImageRef,
			CreatedAt: time.Now(),
		})
		ids = append(ids, m.nextID)
	}
	return ids, nil
}

// DeleteEmbeddings removes all embeddings of a student
func (m *MockStore) DeleteEmbeddings(ctx context.Context, studentID string) (int, error) {
	if m.DeleteError != nil {
		return 0, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.embeddings[studentID])
	delete(m.embeddings, studentID)
	return n, nil
}

// FindNearest performs a brute-force nearest neighbour search
func (m *MockStore) FindNearest(ctx context.Context, query []float32, k int) ([]database.Neighbor, error) {
	if m.FindNearestError != nil {
		return nil, m.FindNearestError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []database.Neighbor
	for _, id := range m.order {
		for _, e := range m.embeddings[id] {
			results = append(results, database.Neighbor{
				Embedding:   e,
				StudentName: m.students[id].Name,
				Distance:    database.EuclideanDistance(query, e.Embedding),
			})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
