package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/pgvector/pgvector-go"
)

// RosterRepository provides PostgreSQL-backed student and embedding storage
// with an optional in-memory HNSW index for nearest-neighbour search.
type RosterRepository struct {
	pool        *Pool
	hnswIndex   *database.HNSWIndex
	hnswEnabled bool
	hnswMu      sync.RWMutex
}

var _ database.Store = (*RosterRepository)(nil)

// NewRosterRepository creates a new PostgreSQL roster repository.
func NewRosterRepository(pool *Pool) *RosterRepository {
	return &RosterRepository{pool: pool}
}

// UpsertStudent creates or updates a student row.
func (r *RosterRepository) UpsertStudent(ctx context.Context, student database.Student) error {
	_, err := r.pool.Exec(ctx, upsertStudentSQL, student.ID, student.Name, student.ClassID)
	if err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}

const upsertStudentSQL = `
	INSERT INTO students (id, name, class_id)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET
		name = COALESCE(NULLIF(EXCLUDED.name, ''), students.name),
		class_id = COALESCE(NULLIF(EXCLUDED.class_id, ''), students.class_id)
`

// GetStudent returns a student by ID, or nil if it doesn't exist.
func (r *RosterRepository) GetStudent(ctx context.Context, studentID string) (*database.Student, error) {
	var s database.Student
	err := r.pool.QueryRow(ctx,
		"SELECT id, name, class_id, created_at FROM students WHERE id = $1", studentID,
	).Scan(&s.ID, &s.Name, &s.ClassID, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return &s, nil
}

// ListStudents returns students ordered by name.
func (r *RosterRepository) ListStudents(ctx context.Context, classID string) ([]database.Student, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, class_id, created_at
		FROM students
		WHERE $1 = '' OR class_id = $1
		ORDER BY name, id
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		var s database.Student
		if err := rows.Scan(&s.ID, &s.Name, &s.ClassID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// FetchEnrolled loads the roster with every embedding in a single query.
// Students are returned ordered by name, embeddings in insertion order.
func (r *RosterRepository) FetchEnrolled(ctx context.Context, classID string) ([]database.EnrolledStudent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.name, s.class_id,
		       e.id, e.embedding, e.quality_score, e.image_ref, e.created_at
		FROM students s
		LEFT JOIN face_embeddings e ON e.student_id = s.id
		WHERE $1 = '' OR s.class_id = $1
		ORDER BY s.name, s.id, e.id
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("query enrolled students: %w", err)
	}
	defer rows.Close()

	var students []database.EnrolledStudent
	for rows.Next() {
		var (
			id, name, class string
			embID           sql.NullInt64
			vec             nullVector
			quality         sql.NullFloat64
			imageRef        sql.NullString
			createdAt       sql.NullTime
		)
		if err := rows.Scan(&id, &name, &class, &embID, &vec, &quality, &imageRef, &createdAt); err != nil {
			return nil, fmt.Errorf("scan enrolled student: %w", err)
		}

		if len(students) == 0 || students[len(students)-1].ID != id {
			students = append(students, database.EnrolledStudent{ID: id, Name: name, ClassID: class})
		}
		if !embID.Valid {
			continue
		}
		cur := &students[len(students)-1]
		cur.Embeddings = append(cur.Embeddings, database.StoredEmbedding{
			ID:        embID.Int64,
			StudentID: id,
			Embedding: vec.Vector.Slice(),
			Quality:   quality.Float64,
			ImageRef:  imageRef.String,
			CreatedAt: createdAt.Time,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrolled students: %w", err)
	}
	return students, nil
}

// nullVector scans a possibly NULL vector column from a LEFT JOIN.
type nullVector struct {
	Vector pgvector.Vector
	Valid  bool
}

func (n *nullVector) Scan(src any) error {
	if src == nil {
		n.Valid = false
		return nil
	}
	n.Valid = true
	if err := n.Vector.Scan(src); err != nil {
		return fmt.Errorf("scan vector: %w", err)
	}
	return nil
}

// FetchEmbeddings returns a student's embeddings, best quality first.
func (r *RosterRepository) FetchEmbeddings(ctx context.Context, studentID string) ([]database.StoredEmbedding, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, student_id, embedding, quality_score, image_ref, created_at
		FROM face_embeddings
		WHERE student_id = $1
		ORDER BY quality_score DESC, id
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	return scanEmbeddings(rows)
}

// CountEmbeddings returns the number of embeddings stored for a student.
func (r *RosterRepository) CountEmbeddings(ctx context.Context, studentID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_embeddings WHERE student_id = $1", studentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// scanEmbeddingRow scans a single row into a StoredEmbedding, with optional extra scan destinations
// appended after the six embedding columns (e.g., a distance column).
func scanEmbeddingRow(scanner interface{ Scan(...any) error }, extraDest ...any) (database.StoredEmbedding, error) {
	var emb database.StoredEmbedding
	var vec pgvector.Vector
	var imageRef sql.NullString

	dest := append([]any{&emb.ID, &emb.StudentID, &vec, &emb.Quality, &imageRef, &emb.CreatedAt}, extraDest...)
	if err := scanner.Scan(dest...); err != nil {
		return emb, fmt.Errorf("scan embedding: %w", err)
	}

	emb.Embedding = vec.Slice()
	if imageRef.Valid {
		emb.ImageRef = imageRef.String
	}
	return emb, nil
}

func scanEmbeddings(rows *sql.Rows) ([]database.StoredEmbedding, error) {
	var embeddings []database.StoredEmbedding
	for rows.Next() {
		emb, err := scanEmbeddingRow(rows)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return embeddings, nil
}

// AppendEmbeddings inserts new embeddings for a student inside one transaction.
// The student row is created when missing. Existing embeddings are untouched.
func (r *RosterRepository) AppendEmbeddings(
	ctx context.Context, studentID string, embeddings []database.NewEmbedding,
) ([]int64, error) {
	if len(embeddings) == 0 {
		return nil, nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO students (id) VALUES ($1) ON CONFLICT (id) DO NOTHING", studentID,
	); err != nil {
		return nil, fmt.Errorf("ensure student: %w", err)
	}

	var name string
	if err := tx.QueryRowContext(ctx, "SELECT name FROM students WHERE id = $1", studentID).Scan(&name); err != nil {
		return nil, fmt.Errorf("read student name: %w", err)
	}

	stored := make([]database.StoredEmbedding, 0, len(embeddings))
	for i, e := range embeddings {
		var imageRef sql.NullString
		if e.ImageRef != "" {
			imageRef = sql.NullString{String: e.ImageRef, Valid: true}
		}
		s := database.StoredEmbedding{
			StudentID: studentID,
			Embedding: e.Embedding,
			Quality:   e.Quality,
			ImageRef:  e.ImageRef,
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO face_embeddings (student_id, embedding, quality_score, image_ref)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`, studentID, pgvector.NewVector(e.Embedding), e.Quality, imageRef).Scan(&s.ID, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert embedding %d: %w", i, err)
		}
		stored = append(stored, s)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit embeddings: %w", err)
	}

	r.hnswMu.RLock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.Add(name, stored)
	}
	r.hnswMu.RUnlock()

	ids := make([]int64, len(stored))
	for i := range stored {
		ids[i] = stored[i].ID
	}
	return ids, nil
}

// DeleteEmbeddings removes every embedding of a student. The student row is kept.
func (r *RosterRepository) DeleteEmbeddings(ctx context.Context, studentID string) (int, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM face_embeddings WHERE student_id = $1", studentID)
	if err != nil {
		return 0, fmt.Errorf("delete embeddings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	r.hnswMu.RLock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.DeleteStudent(studentID)
	}
	r.hnswMu.RUnlock()

	return int(n), nil
}

// FindNearest finds the k closest embeddings by Euclidean distance.
// Uses the in-memory HNSW index if enabled, otherwise falls back to PostgreSQL.
func (r *RosterRepository) FindNearest(ctx context.Context, query []float32, k int) ([]database.Neighbor, error) {
	r.hnswMu.RLock()
	idx := r.hnswIndex
	enabled := r.hnswEnabled && idx != nil && !idx.IsEmpty()
	r.hnswMu.RUnlock()

	if enabled {
		results, err := idx.Search(query, k)
		if err != nil {
			return nil, fmt.Errorf("HNSW search: %w", err)
		}
		return results, nil
	}

	return r.findNearestPostgres(ctx, query, k)
}

// findNearestPostgres uses the pgvector HNSW index with ef_search optimization.
func (r *RosterRepository) findNearestPostgres(ctx context.Context, query []float32, k int) ([]database.Neighbor, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // read-only

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT e.id, e.student_id, e.embedding, e.quality_score, e.image_ref, e.created_at,
		       s.name, e.embedding <-> $1::vector AS distance
		FROM face_embeddings e
		JOIN students s ON s.id = e.student_id
		ORDER BY e.embedding <-> $1::vector
		LIMIT $2
	`, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("query nearest embeddings: %w", err)
	}
	defer rows.Close()

	var results []database.Neighbor
	for rows.Next() {
		var n database.Neighbor
		emb, err := scanEmbeddingRow(rows, &n.StudentName, &n.Distance)
		if err != nil {
			return nil, err
		}
		n.Embedding = emb
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest embeddings: %w", err)
	}
	return results, nil
}

// EnableHNSW builds an in-memory HNSW index over every stored embedding.
// This should be called once at startup.
func (r *RosterRepository) EnableHNSW(ctx context.Context) error {
	students, err := r.FetchEnrolled(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to load roster: %w", err)
	}

	idx := database.NewHNSWIndex()
	idx.BuildFromRoster(students)

	r.hnswMu.Lock()
	r.hnswIndex = idx
	r.hnswEnabled = true
	r.hnswMu.Unlock()
	return nil
}

// DisableHNSW disables the in-memory HNSW index, falling back to PostgreSQL queries.
func (r *RosterRepository) DisableHNSW() {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswEnabled = false
	r.hnswIndex = nil
}

// HNSWCount returns the number of embeddings in the HNSW index.
func (r *RosterRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}
