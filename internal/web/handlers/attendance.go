package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// VideoProcessor takes attendance from a video.
type VideoProcessor interface {
	Process(ctx context.Context, in recognition.VideoInput) (*recognition.AttendanceReport, error)
}

// AttendanceHandler handles video attendance endpoints.
type AttendanceHandler struct {
	processor  VideoProcessor
	jobManager *JobManager
	log        logs.Log
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(log logs.Log, processor VideoProcessor, jm *JobManager) *AttendanceHandler {
	return &AttendanceHandler{
		processor:  processor,
		jobManager: jm,
		log:        log,
	}
}

// videoExtensions are containers accepted when the client sends no usable content type.
var videoExtensions = map[string]bool{
	".mp4": true, ".m4v": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true, ".mpeg": true, ".mpg": true,
}

// isVideoUpload reports whether an uploaded part looks like a video, judging
// by its declared content type, its first bytes and its extension.
func isVideoUpload(fh *multipart.FileHeader, head []byte) bool {
	declared, _, _ := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if strings.HasPrefix(declared, "video/") {
		return true
	}
	sniffed := http.DetectContentType(head)
	if strings.HasPrefix(sniffed, "video/") {
		return true
	}
	if declared != "" && declared != "application/octet-stream" {
		return false
	}
	return sniffed == "application/octet-stream" && videoExtensions[strings.ToLower(filepath.Ext(fh.Filename))]
}

// openVideo opens the uploaded video part and checks that it is a video.
func openVideo(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxMemoryUpload); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidMultipart)
		return nil, nil, false
	}

	files := r.MultipartForm.File["video"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "video is required")
		return nil, nil, false
	}
	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to open video")
		return nil, nil, false
	}

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	if !isVideoUpload(fh, head[:n]) {
		f.Close()
		respondError(w, http.StatusUnsupportedMediaType, "file is not a video")
		return nil, nil, false
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		respondError(w, http.StatusInternalServerError, "failed to read video")
		return nil, nil, false
	}
	return f, fh, true
}

// Process takes attendance from an uploaded video. With async=true the
// video is queued and a job ID is returned right away.
func (h *AttendanceHandler) Process(w http.ResponseWriter, r *http.Request) {
	f, fh, ok := openVideo(w, r)
	if !ok {
		return
	}
	defer f.Close()

	classID := r.FormValue("class_id")
	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	if async {
		h.startJob(w, f, fh.Filename, classID)
		return
	}

	report, err := h.processor.Process(r.Context(), recognition.VideoInput{
		Data:     f,
		Filename: fh.Filename,
		ClassID:  classID,
	})
	if err != nil {
		h.log.Warnf("Attendance for %v failed: %v", sanitizeForLog(fh.Filename), err)
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// startJob copies the upload out of the request and processes it in the background.
func (h *AttendanceHandler) startJob(w http.ResponseWriter, src io.Reader, filename, classID string) {
	tmp, err := os.CreateTemp("", "attendance-upload-*"+filepath.Ext(filename))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create temp file")
		return
	}
	_, copyErr := io.Copy(tmp, src)
	if err := errors.Join(copyErr, tmp.Close()); err != nil {
		os.Remove(tmp.Name())
		respondError(w, http.StatusInternalServerError, "failed to save video")
		return
	}

	job, ctx := h.jobManager.CreateJob(uuid.NewString(), filename, classID)
	go h.runJob(ctx, job, tmp.Name())

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(JobStatusPending),
	})
}

func (h *AttendanceHandler) runJob(ctx context.Context, job *AttendanceJob, path string) {
	defer os.Remove(path)

	started := false
	job.update(func(j *AttendanceJob) {
		if j.Status == JobStatusPending {
			j.Status = JobStatusRunning
			started = true
		}
	})
	if !started {
		h.finish(job)
		return
	}
	job.SendEvent(JobEvent{Type: "started", Message: "Attendance job started"})

	f, err := os.Open(path)
	if err != nil {
		h.failJob(job, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()

	lastPct := -1
	report, err := h.processor.Process(ctx, recognition.VideoInput{
		Data:     f,
		Filename: job.Filename,
		ClassID:  job.ClassID,
		OnState: func(_ string, s recognition.State) {
			job.update(func(j *AttendanceJob) { j.State = s })
			job.SendEvent(JobEvent{Type: "state", Data: s})
		},
		Progress: func(frameIndex, total int) {
			if total <= 0 {
				return
			}
			pct := min(100, (frameIndex+1)*100/total)
			if pct == lastPct {
				return
			}
			lastPct = pct
			job.update(func(j *AttendanceJob) { j.Progress = pct })
			job.SendEvent(JobEvent{Type: "progress", Data: map[string]int{"frame": frameIndex, "total": total, "percent": pct}})
		},
	})
	if err != nil {
		if ctx.Err() != nil || job.GetStatus() == JobStatusCancelled {
			h.finish(job)
			return
		}
		h.failJob(job, err)
		return
	}

	now := time.Now()
	job.update(func(j *AttendanceJob) {
		j.Status = JobStatusCompleted
		j.Progress = 100
		j.Result = report
		j.CompletedAt = &now
	})
	job.SendEvent(JobEvent{Type: "completed", Data: report})
}

func (h *AttendanceHandler) failJob(job *AttendanceJob, err error) {
	h.log.Warnf("Attendance job %v failed: %v", job.ID, err)
	now := time.Now()
	job.update(func(j *AttendanceJob) {
		j.Status = JobStatusFailed
		j.CompletedAt = &now
		j.Error = err.Error()
		var se *recognition.StageError
		if errors.As(err, &se) {
			j.Stage = se.Stage
		}
	})
	job.SendEvent(JobEvent{Type: "job_error", Message: err.Error()})
}

// finish records a cancelled job as done.
func (h *AttendanceHandler) finish(job *AttendanceJob) {
	h.log.Infof("Attendance job %v cancelled", job.ID)
	now := time.Now()
	job.update(func(j *AttendanceJob) {
		j.Status = JobStatusCancelled
		j.CompletedAt = &now
	})
}

// lookupJob writes a 404 and returns nil when the job doesn't exist.
func (h *AttendanceHandler) lookupJob(w http.ResponseWriter, r *http.Request) *AttendanceJob {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
	}
	return job
}

// ListJobs returns all known attendance jobs.
func (h *AttendanceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.jobManager.ListJobs())
}

// Status returns the status of an attendance job.
func (h *AttendanceHandler) Status(w http.ResponseWriter, r *http.Request) {
	if job := h.lookupJob(w, r); job != nil {
		respondJSON(w, http.StatusOK, job.snapshot())
	}
}

// Events streams job events via SSE.
func (h *AttendanceHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			return job.(*AttendanceJob).snapshot()
		},
	)
}

// Cancel cancels an attendance job.
func (h *AttendanceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.lookupJob(w, r)
	if job == nil {
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}
