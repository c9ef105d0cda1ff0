package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/names"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// Enroller manages reference faces of students.
type Enroller interface {
	Enroll(ctx context.Context, req recognition.EnrollRequest) (*recognition.EnrollmentResult, error)
	DeleteAll(ctx context.Context, studentID string) (int, error)
	Embeddings(ctx context.Context, studentID string) ([]recognition.StoredEmbedding, error)
	Verify(ctx context.Context, studentID string, image []byte) (*recognition.VerificationResult, error)
	Identify(ctx context.Context, image []byte, k int) ([]recognition.IdentifyCandidate, error)
}

// StudentsHandler handles enrollment and face lookup endpoints.
type StudentsHandler struct {
	enroller      Enroller
	roster        database.RosterReader
	identifyLimit int
	log           logs.Log
}

// NewStudentsHandler creates a new students handler.
// identifyLimit is the number of candidates returned when a request doesn't set one.
func NewStudentsHandler(log logs.Log, enroller Enroller, roster database.RosterReader, identifyLimit int) *StudentsHandler {
	if identifyLimit <= 0 {
		identifyLimit = constants.DefaultIdentifyLimit
	}
	return &StudentsHandler{
		enroller:      enroller,
		roster:        roster,
		identifyLimit: identifyLimit,
		log:           log,
	}
}

// StudentResponse is a roster entry in API responses.
type StudentResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ClassID   string `json:"class_id,omitempty"`
	FaceCount int    `json:"face_count"`
	CreatedAt string `json:"created_at,omitempty"`
}

// List returns students sorted by name, optionally filtered by class and a
// diacritics-insensitive name query.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	classID := r.URL.Query().Get("class_id")
	query := r.URL.Query().Get("q")

	students, err := h.roster.ListStudents(r.Context(), classID)
	if err != nil {
		h.log.Errorf("Failed to list students: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list students")
		return
	}
	enrolled, err := h.roster.FetchEnrolled(r.Context(), classID)
	if err != nil {
		h.log.Errorf("Failed to count student faces: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list students")
		return
	}
	faceCounts := make(map[string]int, len(enrolled))
	for _, s := range enrolled {
		faceCounts[s.ID] = len(s.Embeddings)
	}

	result := make([]StudentResponse, 0, len(students))
	for _, s := range students {
		if !names.Matches(s.Name, query) && !names.Matches(s.ID, query) {
			continue
		}
		result = append(result, StudentResponse{
			ID:        s.ID,
			Name:      s.Name,
			ClassID:   s.ClassID,
			FaceCount: faceCounts[s.ID],
			CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	respondJSON(w, http.StatusOK, result)
}

// Enroll adds reference faces for a student from uploaded images.
func (h *StudentsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxMemoryUpload); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidMultipart)
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) < constants.MinEnrollmentImages || len(files) > constants.MaxEnrollmentImages {
		respondError(w, http.StatusBadRequest, "between 1 and 10 images are required")
		return
	}

	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		data, err := readFileHeader(fh)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		images = append(images, data)
	}

	result, err := h.enroller.Enroll(r.Context(), recognition.EnrollRequest{
		StudentID: studentID,
		Name:      r.FormValue("name"),
		ClassID:   r.FormValue("class_id"),
		Images:    images,
	})
	if err != nil {
		h.log.Warnf("Enrollment of %v failed: %v", sanitizeForLog(studentID), err)
		respondServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, result)
}

// ListFaces returns the stored reference faces of a student.
func (h *StudentsHandler) ListFaces(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")
	faces, err := h.enroller.Embeddings(r.Context(), studentID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"student_id": studentID,
		"faces":      faces,
		"count":      len(faces),
	})
}

// DeleteFaces removes every reference face of a student.
func (h *StudentsHandler) DeleteFaces(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")
	n, err := h.enroller.DeleteAll(r.Context(), studentID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"student_id": studentID,
		"deleted":    n,
	})
}

// Verify checks whether an uploaded photo shows the student.
func (h *StudentsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxMemoryUpload); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidMultipart)
		return
	}
	data, _, err := readFormFile(r.MultipartForm, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.enroller.Verify(r.Context(), studentID, data)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Identify returns the enrolled students closest to the face in an uploaded photo.
func (h *StudentsHandler) Identify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxMemoryUpload); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidMultipart)
		return
	}
	data, _, err := readFormFile(r.MultipartForm, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := h.identifyLimit
	if v := r.FormValue("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > constants.MaxIdentifyLimit {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	candidates, err := h.enroller.Identify(r.Context(), data, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"candidates": candidates,
		"count":      len(candidates),
	})
}
