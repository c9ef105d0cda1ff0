package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// formFile is a file part of a multipart test request
type formFile struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

// multipartRequest builds a multipart/form-data request
func multipartRequest(t *testing.T, method, path string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.filename))
		if f.contentType != "" {
			header.Set("Content-Type", f.contentType)
		}
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(f.data)
	}
	writer.Close()

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

// fakeEnroller records calls and returns canned results
type fakeEnroller struct {
	mu sync.Mutex

	enrollReq    recognition.EnrollRequest
	enrollResult *recognition.EnrollmentResult
	deleted      int
	faces        []recognition.StoredEmbedding
	verifyImage  []byte
	verifyResult *recognition.VerificationResult
	identifyK    int
	candidates   []recognition.IdentifyCandidate
	err          error
}

func (f *fakeEnroller) Enroll(ctx context.Context, req recognition.EnrollRequest) (*recognition.EnrollmentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrollReq = req
	return f.enrollResult, f.err
}

func (f *fakeEnroller) DeleteAll(ctx context.Context, studentID string) (int, error) {
	return f.deleted, f.err
}

func (f *fakeEnroller) Embeddings(ctx context.Context, studentID string) ([]recognition.StoredEmbedding, error) {
	return f.faces, f.err
}

func (f *fakeEnroller) Verify(ctx context.Context, studentID string, image []byte) (*recognition.VerificationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyImage = image
	return f.verifyResult, f.err
}

func (f *fakeEnroller) Identify(ctx context.Context, image []byte, k int) ([]recognition.IdentifyCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identifyK = k
	return f.candidates, f.err
}

// fakeProcessor returns a canned report. When release is set it waits for
// it, or for the context to end, before returning.
type fakeProcessor struct {
	mu      sync.Mutex
	input   recognition.VideoInput
	data    []byte
	report  *recognition.AttendanceReport
	err     error
	release chan struct{}
	calls   int
}

func (f *fakeProcessor) Process(ctx context.Context, in recognition.VideoInput) (*recognition.AttendanceReport, error) {
	buf := &bytes.Buffer{}
	buf.ReadFrom(in.Data)

	f.mu.Lock()
	f.input = in
	f.data = buf.Bytes()
	f.calls++
	f.mu.Unlock()

	if in.OnState != nil {
		in.OnState("video-1", recognition.StateReceived)
	}
	if in.Progress != nil {
		in.Progress(0, 2)
		in.Progress(1, 2)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.report, f.err
}

func (f *fakeProcessor) received() ([]byte, recognition.VideoInput, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, f.input, f.calls
}
