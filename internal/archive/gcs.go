package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/cyclopcam/logs"
	"google.golang.org/api/iterator"
)

// GCS is a Google Cloud Storage-based archive
type GCS struct {
	bucketName string
	bucket     *gcs.BucketHandle
	isPublic   bool
	log        logs.Log
	now        func() time.Time
	newID      func() string
}

var _ Archive = (*GCS)(nil)

func NewGCS(ctx context.Context, log logs.Log, bucketName string, isPublic bool) (*GCS, error) {
	if bucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCS{
		bucketName: bucketName,
		bucket:     client.Bucket(bucketName),
		isPublic:   isPublic,
		log:        log,
		now:        time.Now,
		newID:      shortID,
	}, nil
}

func (s *GCS) Save(ctx context.Context, studentID string, data []byte, index int) (Ref, error) {
	key, err := objectKey(studentID, s.now(), index, s.newID())
	if err != nil {
		return Ref{}, err
	}
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = "image/jpeg"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return Ref{}, fmt.Errorf("upload face crop: %w", err)
	}
	if err := w.Close(); err != nil {
		return Ref{}, fmt.Errorf("finalize face crop upload: %w", err)
	}
	return Ref{Backend: BackendGCS, Path: key}, nil
}

func (s *GCS) Delete(ctx context.Context, ref Ref) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	err := s.bucket.Object(ref.Path).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("delete %v: %w", ref.Path, err)
	}
	return nil
}

func (s *GCS) DeleteAll(ctx context.Context, studentID string) (int, error) {
	prefix, err := studentPrefix(studentID)
	if err != nil {
		return 0, err
	}

	count := 0
	it := s.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("list face crops: %w", err)
		}
		if err := s.bucket.Object(attrs.Name).Delete(ctx); err != nil {
			return count, fmt.Errorf("delete %v: %w", attrs.Name, err)
		}
		count++
	}
	s.log.Infof("Deleted %v face crops of student %v from gs://%v", count, studentID, s.bucketName)
	return count, nil
}

func (s *GCS) URL(ref Ref) string {
	return gcsURL(s.bucketName, s.isPublic, ref)
}

func gcsURL(bucket string, public bool, ref Ref) string {
	if ref.Path == "" {
		return ""
	}
	if !public {
		// Private objects have no direct URL without signing.
		return "gs://" + bucket + "/" + ref.Path
	}
	return "https://storage.googleapis.com/" + bucket + "/" + ref.Path
}
