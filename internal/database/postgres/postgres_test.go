//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := Open(ctx, logs.NewTestingLog(t), cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open database: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

// vectorAt returns a 512-dim vector with every component set to v.
func vectorAt(v float32) []float32 {
	vec := make([]float32, 512)
	for i := range vec {
		vec[i] = v
	}
	return vec
}

func TestRosterRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewRosterRepository(pool)

	t.Run("MigrationsRecorded", func(t *testing.T) {
		versions, err := pool.MigrationsApplied(ctx)
		if err != nil {
			t.Fatalf("Failed to list migrations: %v", err)
		}
		if len(versions) != 2 {
			t.Errorf("Expected 2 applied migrations, got %v", versions)
		}
	})

	t.Run("UpsertAndGetStudent", func(t *testing.T) {
		if err := repo.UpsertStudent(ctx, database.Student{ID: "s1", Name: "Alice", ClassID: "c1"}); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		// Empty fields keep stored values.
		if err := repo.UpsertStudent(ctx, database.Student{ID: "s1"}); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		s, err := repo.GetStudent(ctx, "s1")
		if err != nil {
			t.Fatalf("Failed to get student: %v", err)
		}
		if s == nil || s.Name != "Alice" || s.ClassID != "c1" {
			t.Errorf("Unexpected student: %+v", s)
		}

		missing, err := repo.GetStudent(ctx, "nobody")
		if err != nil || missing != nil {
			t.Errorf("Expected nil student without error, got %+v, %v", missing, err)
		}
	})

	t.Run("AppendIsMonotonic", func(t *testing.T) {
		ids, err := repo.AppendEmbeddings(ctx, "s1", []database.NewEmbedding{
			{Embedding: vectorAt(0.1), Quality: 0.5, ImageRef: "faces/s1/a.jpg"},
			{Embedding: vectorAt(0.2), Quality: 0.9},
		})
		if err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
		if len(ids) != 2 {
			t.Fatalf("Expected 2 ids, got %d", len(ids))
		}

		if _, err := repo.AppendEmbeddings(ctx, "s1", []database.NewEmbedding{{Embedding: vectorAt(0.3), Quality: 0.1}}); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}

		count, err := repo.CountEmbeddings(ctx, "s1")
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 3 {
			t.Errorf("Expected 3 embeddings, got %d", count)
		}

		embs, err := repo.FetchEmbeddings(ctx, "s1")
		if err != nil {
			t.Fatalf("Failed to fetch: %v", err)
		}
		if embs[0].Quality != 0.9 {
			t.Errorf("Expected best quality first, got %v", embs[0].Quality)
		}
	})

	t.Run("AppendCreatesStudent", func(t *testing.T) {
		if _, err := repo.AppendEmbeddings(ctx, "s2", []database.NewEmbedding{{Embedding: vectorAt(0.9), Quality: 0.7}}); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
		s, err := repo.GetStudent(ctx, "s2")
		if err != nil || s == nil {
			t.Fatalf("Expected student s2 to exist, got %+v, %v", s, err)
		}
	})

	t.Run("FetchEnrolledIncludesEmptyStudents", func(t *testing.T) {
		if err := repo.UpsertStudent(ctx, database.Student{ID: "s3", Name: "Carol", ClassID: "c1"}); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		roster, err := repo.FetchEnrolled(ctx, "c1")
		if err != nil {
			t.Fatalf("Failed to fetch roster: %v", err)
		}
		if len(roster) != 2 {
			t.Fatalf("Expected 2 students in class c1, got %d", len(roster))
		}
		if roster[0].ID != "s1" || len(roster[0].Embeddings) != 3 {
			t.Errorf("Unexpected first student: %+v", roster[0].ID)
		}
		if roster[1].ID != "s3" || len(roster[1].Embeddings) != 0 {
			t.Errorf("Expected Carol without embeddings, got %+v", roster[1])
		}
	})

	t.Run("FindNearestPostgres", func(t *testing.T) {
		results, err := repo.FindNearest(ctx, vectorAt(0.88), 1)
		if err != nil {
			t.Fatalf("Failed to search: %v", err)
		}
		if len(results) != 1 || results[0].Embedding.StudentID != "s2" {
			t.Errorf("Expected s2 nearest, got %+v", results)
		}
	})

	t.Run("FindNearestHNSW", func(t *testing.T) {
		if err := repo.EnableHNSW(ctx); err != nil {
			t.Fatalf("Failed to enable HNSW: %v", err)
		}
		defer repo.DisableHNSW()

		if repo.HNSWCount() != 4 {
			t.Errorf("Expected 4 indexed embeddings, got %d", repo.HNSWCount())
		}
		results, err := repo.FindNearest(ctx, vectorAt(0.11), 1)
		if err != nil {
			t.Fatalf("Failed to search: %v", err)
		}
		if len(results) != 1 || results[0].StudentName != "Alice" {
			t.Errorf("Expected Alice nearest, got %+v", results)
		}
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		n, err := repo.DeleteEmbeddings(ctx, "s1")
		if err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		if n != 3 {
			t.Errorf("Expected 3 deleted, got %d", n)
		}
		n, err = repo.DeleteEmbeddings(ctx, "s1")
		if err != nil {
			t.Fatalf("Failed to delete again: %v", err)
		}
		if n != 0 {
			t.Errorf("Expected 0 on second delete, got %d", n)
		}
	})
}
