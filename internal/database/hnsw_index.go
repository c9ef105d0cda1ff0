package database

import (
	"errors"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex wraps the HNSW graph for nearest-neighbour search over enrolled embeddings.
type HNSWIndex struct {
	graph       *hnsw.Graph[int64]
	idToEntry   map[int64]*StoredEmbedding // Maps HNSW node ID to embedding
	studentName map[string]string
	mu          sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToEntry:   make(map[int64]*StoredEmbedding),
		studentName: make(map[string]string),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// BuildFromRoster builds the index from every embedding of the given students.
func (h *HNSWIndex) BuildFromRoster(students []EnrolledStudent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = nil
	h.idToEntry = make(map[int64]*StoredEmbedding)
	h.studentName = make(map[string]string, len(students))

	for i := range students {
		h.studentName[students[i].ID] = students[i].Name
		for j := range students[i].Embeddings {
			h.addLocked(&students[i].Embeddings[j])
		}
	}
}

func (h *HNSWIndex) addLocked(emb *StoredEmbedding) {
	if len(emb.Embedding) == 0 {
		return
	}
	if h.graph == nil {
		h.graph = newGraph()
	}
	h.graph.Add(hnsw.MakeNode(emb.ID, emb.Embedding))
	h.idToEntry[emb.ID] = emb
}

// Add adds embeddings of a single student to the index.
func (h *HNSWIndex) Add(studentName string, embeddings []StoredEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range embeddings {
		emb := embeddings[i]
		if studentName != "" {
			h.studentName[emb.StudentID] = studentName
		}
		h.addLocked(&emb)
	}
}

// DeleteStudent removes every embedding of a student from search results.
// HNSW doesn't support true deletion, removed nodes are filtered on lookup.
func (h *HNSWIndex) DeleteStudent(studentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, emb := range h.idToEntry {
		if emb.StudentID == studentID {
			delete(h.idToEntry, id)
		}
	}
}

// Search finds the k nearest live embeddings to the query, closest first.
func (h *HNSWIndex) Search(query []float32, k int) ([]Neighbor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, errors.New("index not initialized")
	}
	if k <= 0 {
		return nil, nil
	}

	nodes := h.graph.Search(query, k*HNSWSearchMultiplier)

	results := make([]Neighbor, 0, k)
	for _, n := range nodes {
		emb, ok := h.idToEntry[n.Key]
		if !ok {
			continue
		}
		results = append(results, Neighbor{
			Embedding:   *emb,
			StudentName: h.studentName[emb.StudentID],
			Distance:    EuclideanDistance(query, n.Value),
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of indexed embeddings.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToEntry)
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil
}
