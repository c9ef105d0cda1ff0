package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// errInvalidMultipart is a shared error message for unparsable upload forms.
const errInvalidMultipart = "failed to parse multipart form"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// errorResponse is the body of a failed recognition request. Stage tells
// "the system could not process" apart from rejected input.
type errorResponse struct {
	Error  string            `json:"error"`
	Stage  recognition.Stage `json:"stage,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

// statusForError maps recognition errors to HTTP status codes.
func statusForError(err error) int {
	var se *recognition.StageError
	switch {
	case errors.Is(err, recognition.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, recognition.ErrNoFace),
		errors.Is(err, recognition.ErrMultipleFaces),
		errors.Is(err, recognition.ErrNotEnrolled):
		return http.StatusUnprocessableEntity
	case errors.As(err, &se) && se.Stage == recognition.StageDecoding && se.Reason == recognition.ReasonOpenVideo:
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondServiceError sends the error of a recognition call.
func respondServiceError(w http.ResponseWriter, err error) {
	body := errorResponse{Error: err.Error()}
	var se *recognition.StageError
	if errors.As(err, &se) {
		body.Stage = se.Stage
		body.Reason = se.Reason
	} else if errors.Is(err, recognition.ErrInvalidInput) {
		body.Stage = recognition.StageInput
	}
	respondJSON(w, statusForError(err), body)
}

// readFormFile reads a single uploaded file from a parsed multipart form.
func readFormFile(form *multipart.Form, field string) ([]byte, *multipart.FileHeader, error) {
	files := form.File[field]
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("%s is required", field)
	}
	data, err := readFileHeader(files[0])
	if err != nil {
		return nil, nil, err
	}
	return data, files[0], nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %s", fh.Filename)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %s", fh.Filename)
	}
	return data, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
