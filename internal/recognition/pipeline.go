package recognition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/imaging"
	"github.com/kozaktomas/face-attendance/internal/video"
)

// State is a step of a video run.
type State string

const (
	StateReceived    State = "received"
	StateDecoding    State = "decoding"
	StateRecognizing State = "recognizing"
	StateAggregating State = "aggregating"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// VideoInput is one classroom video to take attendance from.
type VideoInput struct {
	Data     io.Reader
	Filename string
	ClassID  string // optional roster filter

	// Progress, when set, is called after each decoded frame.
	// total is 0 when the container has no frame count.
	Progress func(frameIndex, total int)
	// OnState, when set, is called on every state change.
	OnState func(videoID string, state State)
}

// Pipeline turns a video into an attendance report.
type Pipeline struct {
	roster    database.RosterReader
	decoder   VideoDecoder
	detector  Detector
	extractor Extractor
	matcher   Matcher
	opts      Options
	log       logs.Log
}

func NewPipeline(
	log logs.Log, roster database.RosterReader, dec VideoDecoder, det Detector, ext Extractor, opts Options,
) *Pipeline {
	return &Pipeline{
		roster:    roster,
		decoder:   dec,
		detector:  det,
		extractor: ext,
		matcher:   Matcher{Threshold: opts.Threshold},
		opts:      opts,
		log:       log,
	}
}

// Stride returns how many source frames lie between two analyzed frames.
func Stride(sourceFPS, targetFPS float64) int {
	if sourceFPS <= 0 || targetFPS <= 0 {
		return 1
	}
	return max(1, int(math.Round(sourceFPS/targetFPS)))
}

// run is the state of one Process call.
type run struct {
	id     string
	input  VideoInput
	info   video.Info
	stride int
	roster []database.EnrolledStudent
	tally  *tallies

	decoded   int
	processed int
	faces     int
}

func (r *run) setState(s State) {
	if r.input.OnState != nil {
		r.input.OnState(r.id, s)
	}
}

// Process decodes the video, recognizes faces on sampled frames and
// aggregates them per student. The temporary copy of the video is removed
// on every exit path.
func (p *Pipeline) Process(ctx context.Context, in VideoInput) (*AttendanceReport, error) {
	if in.Data == nil {
		return nil, invalidInput("video data is required")
	}

	started := time.Now()
	r := &run{
		id:    uuid.NewString(),
		input: in,
		tally: newTallies(p.opts.MaxDetectionSamples),
	}
	r.setState(StateReceived)

	report, err := p.process(ctx, r)
	if err != nil {
		r.setState(StateFailed)
		p.log.Errorf("Video %v failed: %v", r.id, err)
		return nil, err
	}
	report.ProcessingTime = time.Since(started).Seconds()
	r.setState(StateCompleted)
	p.log.Infof("Video %v: %d/%d frames analyzed, %d faces, %d students in %.1fs",
		r.id, report.ProcessedFrames, report.TotalFrames, report.TotalFacesDetected,
		report.UniqueStudentsIdentified, report.ProcessingTime)
	return report, nil
}

func (p *Pipeline) process(ctx context.Context, r *run) (*AttendanceReport, error) {
	path, err := spool(r.input)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	r.roster, err = p.roster.FetchEnrolled(ctx, r.input.ClassID)
	if err != nil {
		return nil, stageErr(StageRoster, "", err)
	}

	r.setState(StateDecoding)
	stream, err := p.decoder.Open(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, stageErr(StageDecoding, ReasonOpenVideo, err)
	}
	defer stream.Close()

	r.info = stream.Info()
	r.stride = Stride(r.info.FPS, p.opts.SamplingFPS)
	p.log.Debugf("Video %v: %.2f fps, %d frames, stride %d, %d enrolled students",
		r.id, r.info.FPS, r.info.TotalFrames, r.stride, len(r.roster))

	r.setState(StateRecognizing)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, stageErr(StageDecoding, "", err)
		}
		r.decoded++
		if frame.Index%r.stride == 0 {
			if err := p.recognizeFrame(ctx, r, frame); err != nil {
				return nil, err
			}
		}
		if r.input.Progress != nil {
			r.input.Progress(frame.Index, r.info.TotalFrames)
		}
	}

	r.setState(StateAggregating)
	return p.report(r), nil
}

// spool copies the uploaded bytes to a temporary file for the decoder.
func spool(in VideoInput) (string, error) {
	ext := filepath.Ext(in.Filename)
	f, err := os.CreateTemp("", "attendance-*"+ext)
	if err != nil {
		return "", stageErr(StageInput, "", fmt.Errorf("create temp file: %w", err))
	}
	path := f.Name()

	_, copyErr := io.Copy(f, in.Data)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(path)
		return "", stageErr(StageInput, "", fmt.Errorf("spool video: %w", err))
	}
	return path, nil
}

func (p *Pipeline) recognizeFrame(ctx context.Context, r *run, frame video.Frame) error {
	r.processed++

	img, err := imaging.Decode(frame.Data)
	if err != nil {
		p.log.Warnf("Video %v: skipping undecodable frame %d: %v", r.id, frame.Index, err)
		return nil
	}

	faces, err := detectFaces(ctx, p.detector, frame.Data, img.Bounds(), p.opts.DetectionConfidence)
	if err != nil {
		return err
	}
	r.faces += len(faces)

	var timestamp float64
	if r.info.FPS > 0 {
		timestamp = float64(frame.Index) / r.info.FPS
	}

	for _, f := range faces {
		region := imaging.ExpandBox(f.Box, p.opts.FaceMargin, img.Bounds())
		embedding, _, ok, err := embedRegion(ctx, p.extractor, img, region)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		res := p.matcher.Match(embedding, r.roster)
		if !res.Recognized {
			continue
		}
		r.tally.add(res, FaceDetection{
			BBox:            bboxOf(f.Box),
			Confidence:      f.Score,
			MatchConfidence: res.Confidence,
			FrameNumber:     frame.Index,
			Timestamp:       timestamp,
		})
	}
	return nil
}

func (p *Pipeline) report(r *run) *AttendanceReport {
	total := r.info.TotalFrames
	if total <= 0 {
		total = r.decoded
	}
	students := r.tally.students()
	return &AttendanceReport{
		Success:                  true,
		VideoID:                  r.id,
		TotalFrames:              total,
		ProcessedFrames:          r.processed,
		TotalFacesDetected:       r.faces,
		UniqueStudentsIdentified: len(students),
		RecognizedStudents:       students,
		Timestamp:                time.Now().UTC(),
	}
}
