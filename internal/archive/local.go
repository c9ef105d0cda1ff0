package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/logs"
)

// Local is a filesystem-based archive
type Local struct {
	Root string
	log   logs.Log
	now   func() time.Time
	newID func() string
}

var _ Archive = (*Local)(nil)

func NewLocal(log logs.Log, root string) (*Local, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve archive root %v: %w", root, err)
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory %v (relative path %v): %w", absRoot, root, err)
	}
	return &Local{
		Root: absRoot,
		log:   log,
		now:   time.Now,
		newID: shortID,
	}, nil
}

func (l *Local) Save(ctx context.Context, studentID string, data []byte, index int) (Ref, error) {
	key, err := objectKey(studentID, l.now(), index, l.newID())
	if err != nil {
		return Ref{}, err
	}
	fullPath := filepath.Join(l.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return Ref{}, fmt.Errorf("create student directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0600); err != nil {
		return Ref{}, fmt.Errorf("write face crop: %w", err)
	}
	l.log.Debugf("Archived face crop %v", key)
	return Ref{Backend: BackendLocal, Path: key}, nil
}

func (l *Local) Delete(ctx context.Context, ref Ref) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(l.Root, filepath.FromSlash(ref.Path)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete face crop: %w", err)
	}
	return nil
}

func (l *Local) DeleteAll(ctx context.Context, studentID string) (int, error) {
	prefix, err := studentPrefix(studentID)
	if err != nil {
		return 0, err
	}
	dir := filepath.Join(l.Root, filepath.FromSlash(prefix))

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list face crops: %w", err)
	}

	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			count++
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("delete face crops: %w", err)
	}
	l.log.Infof("Deleted %v face crops of student %v", count, studentID)
	return count, nil
}

// URL returns the path under which the web server exposes the local archive.
func (l *Local) URL(ref Ref) string {
	if ref.Path == "" {
		return ""
	}
	return "/storage/" + ref.Path
}
