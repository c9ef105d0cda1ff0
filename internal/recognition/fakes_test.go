package recognition

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/kozaktomas/face-attendance/internal/archive"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/faceclient"
	"github.com/kozaktomas/face-attendance/internal/imaging"
	"github.com/kozaktomas/face-attendance/internal/video"
	"github.com/stretchr/testify/require"
)

// fakeDetector answers each Detect call with fn(call), call counting from 0.
type fakeDetector struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) ([]faceclient.Detection, error)
}

func (d *fakeDetector) Detect(ctx context.Context, imageData []byte) ([]faceclient.Detection, error) {
	d.mu.Lock()
	call := d.calls
	d.calls++
	d.mu.Unlock()
	return d.fn(call)
}

// fakeExtractor answers each Embed call with fn(call), call counting from 0.
type fakeExtractor struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) ([]float32, error)
}

func (e *fakeExtractor) Embed(ctx context.Context, cropData []byte) ([]float32, error) {
	e.mu.Lock()
	call := e.calls
	e.calls++
	e.mu.Unlock()
	return e.fn(call)
}

func oneFace(score float64) func(int) ([]faceclient.Detection, error) {
	return func(int) ([]faceclient.Detection, error) {
		return []faceclient.Detection{{Box: image.Rect(20, 20, 60, 60), Score: score}}, nil
	}
}

func constVector(v []float32) func(int) ([]float32, error) {
	return func(int) ([]float32, error) { return v, nil }
}

// fakeDecoder serves frames frames of the same JPEG.
type fakeDecoder struct {
	info    video.Info
	frames  int
	data    []byte
	openErr error
	failAt  int // Next fails at this frame index when > 0

	openedPath string
	closed     bool
}

func (d *fakeDecoder) Open(ctx context.Context, path string) (video.Stream, error) {
	d.openedPath = path
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &fakeStream{dec: d}, nil
}

type fakeStream struct {
	dec  *fakeDecoder
	next int
}

func (s *fakeStream) Info() video.Info { return s.dec.info }

func (s *fakeStream) Next() (video.Frame, error) {
	if s.dec.failAt > 0 && s.next == s.dec.failAt {
		return video.Frame{}, io.ErrUnexpectedEOF
	}
	if s.next >= s.dec.frames {
		return video.Frame{}, io.EOF
	}
	f := video.Frame{Index: s.next, Data: s.dec.data}
	s.next++
	return f, nil
}

func (s *fakeStream) Close() error {
	s.dec.closed = true
	return nil
}

// testJPEG encodes a 100x100 image with some texture.
func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			v := uint8((x*7 + y*13) % 256)
			img.Set(x, y, color.RGBA{R: v, G: v / 2, B: 255 - v, A: 255})
		}
	}
	data, err := imaging.EncodeJPEG(img)
	require.NoError(t, err)
	return data
}

// flakyArchive wraps a local archive and fails Save for the listed batch
// indexes, and DeleteAll when deleteAllErr is set.
type flakyArchive struct {
	*archive.Local
	failSave     map[int]bool
	deleteAllErr error
}

func (a *flakyArchive) Save(ctx context.Context, studentID string, data []byte, index int) (archive.Ref, error) {
	if a.failSave[index] {
		return archive.Ref{}, errors.New("bucket unavailable")
	}
	return a.Local.Save(ctx, studentID, data, index)
}

func (a *flakyArchive) DeleteAll(ctx context.Context, studentID string) (int, error) {
	if a.deleteAllErr != nil {
		return 0, a.deleteAllErr
	}
	return a.Local.DeleteAll(ctx, studentID)
}

// useArchive rebuilds the engine on top of arc.
func (e *testEnv) useArchive(t *testing.T, arc archive.Archive) {
	e.engine = NewEngine(logs.NewTestingLog(t), e.store, arc, e.detector, e.extractor, testOptions())
}

// archivedCrops counts the crops stored for a student.
func (e *testEnv) archivedCrops(t *testing.T, studentID string) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(e.archive.Root, "faces", studentID))
	if errors.Is(err, fs.ErrNotExist) {
		return 0
	}
	require.NoError(t, err)
	return len(entries)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.EmbeddingDim = 4
	return opts
}

type testEnv struct {
	store     *mock.MockStore
	archive   *archive.Local
	detector  *fakeDetector
	extractor *fakeExtractor
	engine    *Engine
}

func newTestEnv(t *testing.T, det *fakeDetector, ext *fakeExtractor) *testEnv {
	t.Helper()
	log := logs.NewTestingLog(t)
	local, err := archive.NewLocal(log, t.TempDir())
	require.NoError(t, err)
	store := mock.NewMockStore()
	return &testEnv{
		store:     store,
		archive:   local,
		detector:  det,
		extractor: ext,
		engine:    NewEngine(log, store, local, det, ext, testOptions()),
	}
}
