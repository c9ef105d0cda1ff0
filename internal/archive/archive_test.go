package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *Local {
	l, err := NewLocal(logs.NewTestingLog(t), t.TempDir())
	require.NoError(t, err)
	l.now = func() time.Time { return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC) }
	l.newID = func() string { return "abcd1234" }
	return l
}

func TestObjectKey(t *testing.T) {
	key, err := objectKey("stu42", time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC), 2, "abcd1234")
	require.NoError(t, err)
	require.Equal(t, "faces/stu42/stu42_20240305_140709_2_abcd1234.jpg", key)

	for _, bad := range []string{"", "a/b", "..", `a\b`} {
		_, err := objectKey(bad, time.Now(), 0, "x")
		require.ErrorIs(t, err, ErrInvalidKey, "student id %q", bad)
	}
}

func TestRefRoundTrip(t *testing.T) {
	ref := Ref{Backend: BackendGCS, Path: "faces/s/s_1.jpg"}
	require.Equal(t, ref, ParseRef(ref.String()))
	require.Equal(t, Ref{Backend: BackendLocal, Path: "faces/s/x.jpg"}, ParseRef("faces/s/x.jpg"))
	require.Equal(t, "", Ref{}.String())
}

func TestLocal_SaveAndDeleteAll(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	ref, err := l.Save(ctx, "s1", []byte("jpeg-0"), 0)
	require.NoError(t, err)
	require.Equal(t, BackendLocal, ref.Backend)
	require.Equal(t, "/storage/faces/s1/s1_20240305_140709_0_abcd1234.jpg", l.URL(ref))

	data, err := os.ReadFile(filepath.Join(l.Root, filepath.FromSlash(ref.Path)))
	require.NoError(t, err)
	require.Equal(t, []byte("jpeg-0"), data)

	_, err = l.Save(ctx, "s1", []byte("jpeg-1"), 1)
	require.NoError(t, err)

	n, err := l.DeleteAll(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = l.DeleteAll(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestLocal_SameSecondSavesDoNotCollide(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(logs.NewTestingLog(t), t.TempDir())
	require.NoError(t, err)
	l.now = func() time.Time { return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC) }

	first, err := l.Save(ctx, "s1", []byte("first"), 0)
	require.NoError(t, err)
	second, err := l.Save(ctx, "s1", []byte("second"), 0)
	require.NoError(t, err)
	require.NotEqual(t, first.Path, second.Path)

	data, err := os.ReadFile(filepath.Join(l.Root, filepath.FromSlash(first.Path)))
	require.NoError(t, err)
	require.Equal(t, []byte("first"), data)
}

func TestLocal_Delete(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	keep, err := l.Save(ctx, "s1", []byte("keep"), 0)
	require.NoError(t, err)
	drop, err := l.Save(ctx, "s1", []byte("drop"), 1)
	require.NoError(t, err)

	require.NoError(t, l.Delete(ctx, drop))
	require.NoFileExists(t, filepath.Join(l.Root, filepath.FromSlash(drop.Path)))
	require.FileExists(t, filepath.Join(l.Root, filepath.FromSlash(keep.Path)))

	// Already gone.
	require.NoError(t, l.Delete(ctx, drop))

	for _, bad := range []string{"", "other/x.jpg", "faces/../../etc/passwd"} {
		require.ErrorIs(t, l.Delete(ctx, Ref{Backend: BackendLocal, Path: bad}), ErrInvalidKey, bad)
	}
}

func TestGCSURL(t *testing.T) {
	ref := Ref{Backend: BackendGCS, Path: "faces/s1/a.jpg"}
	require.Equal(t, "https://storage.googleapis.com/bucket/faces/s1/a.jpg", gcsURL("bucket", true, ref))
	require.Equal(t, "gs://bucket/faces/s1/a.jpg", gcsURL("bucket", false, ref))
	require.Equal(t, "", gcsURL("bucket", true, Ref{}))
}

// stubRemote is a remote archive that fails on demand.
type stubRemote struct {
	saveErr   error
	saved     int
	deleted   int
	deleteErr error
	removed   []Ref
}

func (s *stubRemote) Save(ctx context.Context, studentID string, data []byte, index int) (Ref, error) {
	if s.saveErr != nil {
		return Ref{}, s.saveErr
	}
	s.saved++
	return Ref{Backend: BackendGCS, Path: "faces/" + studentID + "/remote.jpg"}, nil
}

func (s *stubRemote) Delete(ctx context.Context, ref Ref) error {
	s.removed = append(s.removed, ref)
	return s.deleteErr
}

func (s *stubRemote) DeleteAll(ctx context.Context, studentID string) (int, error) {
	return s.deleted, s.deleteErr
}

func (s *stubRemote) URL(ref Ref) string { return "remote://" + ref.Path }

func TestFallback_RemoteHealthy(t *testing.T) {
	remote := &stubRemote{}
	f := NewFallback(logs.NewTestingLog(t), remote, newTestLocal(t))

	ref, err := f.Save(context.Background(), "s1", []byte("x"), 0)
	require.NoError(t, err)
	require.Equal(t, BackendGCS, ref.Backend)
	require.Equal(t, 1, remote.saved)
	require.Equal(t, "remote://faces/s1/remote.jpg", f.URL(ref))
}

func TestFallback_RemoteFailureIsObservable(t *testing.T) {
	remote := &stubRemote{saveErr: errors.New("bucket unavailable")}
	local := newTestLocal(t)
	f := NewFallback(logs.NewTestingLog(t), remote, local)

	ref, err := f.Save(context.Background(), "s1", []byte("x"), 3)
	require.NoError(t, err)
	require.Equal(t, BackendLocal, ref.Backend)
	require.Equal(t, "/storage/"+ref.Path, f.URL(ref))

	remote.deleted = 2
	n, err := f.DeleteAll(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestFallback_DeleteRoutesByBackend(t *testing.T) {
	ctx := context.Background()
	remote := &stubRemote{}
	local := newTestLocal(t)
	f := NewFallback(logs.NewTestingLog(t), remote, local)

	localRef, err := local.Save(ctx, "s1", []byte("x"), 0)
	require.NoError(t, err)
	remoteRef := Ref{Backend: BackendGCS, Path: "faces/s1/remote.jpg"}

	require.NoError(t, f.Delete(ctx, localRef))
	require.NoError(t, f.Delete(ctx, remoteRef))
	require.NoFileExists(t, filepath.Join(local.Root, filepath.FromSlash(localRef.Path)))
	require.Equal(t, []Ref{remoteRef}, remote.removed)
}

func TestFallback_InvalidKeyNotRetried(t *testing.T) {
	remote := &stubRemote{saveErr: ErrInvalidKey}
	f := NewFallback(logs.NewTestingLog(t), remote, newTestLocal(t))

	_, err := f.Save(context.Background(), "../x", []byte("x"), 0)
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestFallback_DeleteErrorsJoined(t *testing.T) {
	remote := &stubRemote{deleteErr: errors.New("permission denied")}
	f := NewFallback(logs.NewTestingLog(t), remote, newTestLocal(t))

	_, err := f.DeleteAll(context.Background(), "s1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "permission denied")
}
