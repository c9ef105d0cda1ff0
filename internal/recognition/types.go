package recognition

import (
	"context"
	"image"
	"time"

	"github.com/kozaktomas/face-attendance/internal/faceclient"
	"github.com/kozaktomas/face-attendance/internal/video"
)

// Detector finds faces in an encoded image.
type Detector interface {
	Detect(ctx context.Context, imageData []byte) ([]faceclient.Detection, error)
}

// Extractor computes the embedding of the primary face in an encoded crop.
// It returns faceclient.ErrNoFaceInCrop when the crop holds no face.
type Extractor interface {
	Embed(ctx context.Context, cropData []byte) ([]float32, error)
}

// VideoDecoder opens a video file as a stream of frames.
type VideoDecoder interface {
	Open(ctx context.Context, path string) (video.Stream, error)
}

// BBox is a face bounding box [x1, y1, x2, y2] in frame pixels.
type BBox [4]int

func bboxOf(r image.Rectangle) BBox {
	return BBox{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y}
}

// FaceDetection is one sighting of a recognized student.
type FaceDetection struct {
	BBox            BBox    `json:"bbox"`
	Confidence      float64 `json:"confidence"`       // detector score
	MatchConfidence float64 `json:"match_confidence"` // 1 - distance of the accepted match
	FrameNumber     int     `json:"frame_number"`
	Timestamp       float64 `json:"timestamp"` // seconds from the start of the video
}

// Reasons a face is not recognized.
const (
	ReasonNoEnrolled     = "no enrolled identities"
	ReasonBelowThreshold = "no match above threshold"
)

// RecognitionResult is the outcome of matching one embedding against the roster.
type RecognitionResult struct {
	Recognized  bool    `json:"recognized"`
	Reason      string  `json:"reason,omitempty"`
	StudentID   string  `json:"student_id,omitempty"`
	StudentName string  `json:"student_name,omitempty"`
	Confidence  float64 `json:"confidence"`
	Distance    float64 `json:"distance"`
}

// RecognizedStudent aggregates every sighting of one student in a video.
type RecognizedStudent struct {
	StudentID       string          `json:"student_id"`
	StudentName     string          `json:"student_name"`
	Confidence      float64         `json:"confidence"`       // mean detector score
	MatchConfidence float64         `json:"match_confidence"` // mean 1 - distance
	DetectionCount  int             `json:"detection_count"`
	Detections      []FaceDetection `json:"detections"` // first sightings, bounded
}

// AttendanceReport is the result of processing one video.
type AttendanceReport struct {
	Success                  bool                `json:"success"`
	VideoID                  string              `json:"video_id"`
	TotalFrames              int                 `json:"total_frames"`
	ProcessedFrames          int                 `json:"processed_frames"`
	TotalFacesDetected       int                 `json:"total_faces_detected"`
	UniqueStudentsIdentified int                 `json:"unique_students_identified"`
	RecognizedStudents       []RecognizedStudent `json:"recognized_students"`
	ProcessingTime           float64             `json:"processing_time"` // seconds
	Timestamp                time.Time           `json:"timestamp"`
}

// SkippedImage explains why an enrollment image produced no embedding.
type SkippedImage struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// EnrollmentResult is the outcome of one enrollment batch.
type EnrollmentResult struct {
	Success           bool           `json:"success"`
	StudentID         string         `json:"student_id"`
	EmbeddingsCreated int            `json:"embeddings_created"`
	QualityScores     []float64      `json:"quality_scores"`
	ArchiveBackends   []string       `json:"archive_backends"`
	Skipped           []SkippedImage `json:"skipped,omitempty"`
	Message           string         `json:"message"`
}

// VerificationResult is the outcome of checking a photo against one student.
type VerificationResult struct {
	StudentID  string  `json:"student_id"`
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
}

// IdentifyCandidate is one student close to a query face.
type IdentifyCandidate struct {
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	Distance    float64 `json:"distance"`
	Confidence  float64 `json:"confidence"`
	Recognized  bool    `json:"recognized"`
}
