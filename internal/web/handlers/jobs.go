package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// AttendanceJob is a video being processed in the background.
type AttendanceJob struct {
	EventBroadcaster

	ID          string                        `json:"id"`
	Filename    string                        `json:"filename"`
	ClassID     string                        `json:"class_id,omitempty"`
	Status      JobStatus                     `json:"status"`
	State       recognition.State             `json:"state,omitempty"`
	Progress    int                           `json:"progress"`
	Error       string                        `json:"error,omitempty"`
	Stage       recognition.Stage             `json:"stage,omitempty"`
	StartedAt   time.Time                     `json:"started_at"`
	CompletedAt *time.Time                    `json:"completed_at,omitempty"`
	Result      *recognition.AttendanceReport `json:"result,omitempty"`
}

// GetStatus returns the current job status (implements SSEJob).
func (j *AttendanceJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// snapshot returns a copy safe to encode while the job runs.
func (j *AttendanceJob) snapshot() *AttendanceJob {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return &AttendanceJob{
		ID:          j.ID,
		Filename:    j.Filename,
		ClassID:     j.ClassID,
		Status:      j.Status,
		State:       j.State,
		Progress:    j.Progress,
		Error:       j.Error,
		Stage:       j.Stage,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
	}
}

// Cancel cancels the job.
func (j *AttendanceJob) Cancel() {
	j.mu.Lock()
	if j.Status == JobStatusPending || j.Status == JobStatusRunning {
		j.Status = JobStatusCancelled
	}
	j.mu.Unlock()
	j.EventBroadcaster.Cancel()
}

// update mutates the job under its lock.
func (j *AttendanceJob) update(fn func(j *AttendanceJob)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(j)
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	if b.cancel != nil {
		b.cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages async jobs.
type JobManager struct {
	jobs map[string]*AttendanceJob
	mu   sync.RWMutex
	now  func() time.Time
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*AttendanceJob),
		now:  time.Now,
	}
}

// CreateJob registers a pending job whose context is cancelled by job.Cancel.
func (m *JobManager) CreateJob(id, filename, classID string) (*AttendanceJob, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &AttendanceJob{
		ID:        id,
		Filename:  filename,
		ClassID:   classID,
		Status:    JobStatusPending,
		StartedAt: m.now(),
	}
	job.cancel = cancel

	m.mu.Lock()
	m.pruneLocked()
	m.jobs[id] = job
	m.mu.Unlock()

	return job, ctx
}

// pruneLocked forgets finished jobs older than the retention window.
func (m *JobManager) pruneLocked() {
	cutoff := m.now().Add(-constants.FinishedJobRetentionHours * time.Hour)
	for id, job := range m.jobs {
		job.mu.RLock()
		expired := job.CompletedAt != nil && job.CompletedAt.Before(cutoff)
		job.mu.RUnlock()
		if expired {
			delete(m.jobs, id)
		}
	}
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *AttendanceJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all jobs.
func (m *JobManager) ListJobs() []*AttendanceJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*AttendanceJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.snapshot())
	}
	return jobs
}

// CancelRunning cancels every job that hasn't finished and returns how many were cancelled.
func (m *JobManager) CancelRunning() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, job := range m.jobs {
		if !isJobTerminal(job.GetStatus()) {
			job.Cancel()
			n++
		}
	}
	return n
}
