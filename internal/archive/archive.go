// Package archive stores enrollment face crops in a blob store.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Backend names recorded in a Ref.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
)

// ErrInvalidKey is returned for student IDs that can't be used as a path segment.
var ErrInvalidKey = errors.New("invalid archive key")

// Ref identifies a stored crop and the backend that holds it.
type Ref struct {
	Backend string
	Path    string
}

// String encodes the ref as "<backend>:<path>" for persistence.
func (r Ref) String() string {
	if r.Path == "" {
		return ""
	}
	return r.Backend + ":" + r.Path
}

// ParseRef decodes a ref produced by Ref.String. A bare path is treated as local.
func ParseRef(s string) Ref {
	if backend, p, ok := strings.Cut(s, ":"); ok && (backend == BackendLocal || backend == BackendGCS) {
		return Ref{Backend: backend, Path: p}
	}
	return Ref{Backend: BackendLocal, Path: s}
}

// Archive is a blob store for face crops.
type Archive interface {
	// Save stores one JPEG crop of a student. index is the position of the
	// source image within its enrollment batch.
	Save(ctx context.Context, studentID string, data []byte, index int) (Ref, error)
	// Delete removes a single crop. A crop that is already gone is not an error.
	Delete(ctx context.Context, ref Ref) error
	// DeleteAll removes every crop of a student and returns how many were removed.
	DeleteAll(ctx context.Context, studentID string) (int, error)
	// URL returns a URL at which the crop can be fetched, or "" if it has none.
	URL(ref Ref) string
}

// studentPrefix returns the directory holding a student's crops.
func studentPrefix(studentID string) (string, error) {
	if studentID == "" || strings.ContainsAny(studentID, `/\`) || strings.Contains(studentID, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, studentID)
	}
	return path.Join("faces", studentID) + "/", nil
}

// objectKey builds faces/<student>/<student>_<yyyymmdd_hhmmss>_<index>_<unique>.jpg.
// unique keeps two batches saved within the same second apart.
func objectKey(studentID string, at time.Time, index int, unique string) (string, error) {
	prefix, err := studentPrefix(studentID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s_%s_%d_%s.jpg", prefix, studentID, at.Format("20060102_150405"), index, unique), nil
}

func shortID() string {
	return uuid.NewString()[:8]
}

// checkRef rejects refs that point outside the faces/ tree.
func checkRef(ref Ref) error {
	if !strings.HasPrefix(ref.Path, "faces/") || strings.Contains(ref.Path, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, ref.Path)
	}
	return nil
}
