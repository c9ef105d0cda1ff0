package archive

import (
	"context"
	"errors"

	"github.com/cyclopcam/logs"
)

// Fallback writes to a remote archive and falls back to a local one when the
// remote write fails. The returned Ref names the backend that actually served.
type Fallback struct {
	remote Archive
	local  *Local
	log    logs.Log
}

var _ Archive = (*Fallback)(nil)

func NewFallback(log logs.Log, remote Archive, local *Local) *Fallback {
	return &Fallback{remote: remote, local: local, log: log}
}

func (f *Fallback) Save(ctx context.Context, studentID string, data []byte, index int) (Ref, error) {
	ref, err := f.remote.Save(ctx, studentID, data, index)
	if err == nil {
		return ref, nil
	}
	if errors.Is(err, ErrInvalidKey) {
		return Ref{}, err
	}
	f.log.Warnf("Remote archive failed for student %v, storing crop locally: %v", studentID, err)
	return f.local.Save(ctx, studentID, data, index)
}

func (f *Fallback) Delete(ctx context.Context, ref Ref) error {
	if ref.Backend == BackendLocal {
		return f.local.Delete(ctx, ref)
	}
	return f.remote.Delete(ctx, ref)
}

// DeleteAll removes crops from both backends, since earlier saves may have fallen back.
func (f *Fallback) DeleteAll(ctx context.Context, studentID string) (int, error) {
	remoteCount, remoteErr := f.remote.DeleteAll(ctx, studentID)
	localCount, localErr := f.local.DeleteAll(ctx, studentID)
	return remoteCount + localCount, errors.Join(remoteErr, localErr)
}

func (f *Fallback) URL(ref Ref) string {
	if ref.Backend == BackendLocal {
		return f.local.URL(ref)
	}
	return f.remote.URL(ref)
}
