package recognition

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks requests rejected before any processing.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoFace is returned by verification when the image holds no usable face.
	ErrNoFace = errors.New("no face detected")
	// ErrMultipleFaces is returned by verification when the image holds more than one face.
	ErrMultipleFaces = errors.New("multiple faces detected")
	// ErrNotEnrolled is returned when a student has no reference embeddings.
	ErrNotEnrolled = errors.New("student is not enrolled")
)

// Stage names a step of a recognition job.
type Stage string

const (
	StageInput     Stage = "input"
	StageRoster    Stage = "roster"
	StageDecoding  Stage = "decoding"
	StageDetection Stage = "detection"
	StageEmbedding Stage = "embedding"
	StageArchive   Stage = "archive"
	StageStore     Stage = "store"
)

// ReasonOpenVideo is the StageError reason for containers that can't be opened.
const ReasonOpenVideo = "could not open video"

// StageError reports which stage of a job failed.
type StageError struct {
	Stage  Stage
	Reason string
	Err    error
}

func (e *StageError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, reason string, err error) error {
	return &StageError{Stage: stage, Reason: reason, Err: err}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
