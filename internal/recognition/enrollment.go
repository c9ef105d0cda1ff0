package recognition

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/cyclopcam/logs"
	"github.com/kozaktomas/face-attendance/internal/archive"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/imaging"
	"github.com/kozaktomas/face-attendance/internal/quality"
)

const msgNoValidFaces = "No valid faces detected in provided images"

// EnrollRequest is a batch of reference photos for one student.
type EnrollRequest struct {
	StudentID string
	Name      string // optional, updates the roster entry
	ClassID   string // optional, updates the roster entry
	Images    [][]byte
}

// Engine builds and maintains reference embeddings. It is the only writer of embeddings.
type Engine struct {
	store     database.Store
	archive   archive.Archive
	detector  Detector
	extractor Extractor
	matcher   Matcher
	opts      Options
	log       logs.Log
}

func NewEngine(
	log logs.Log, store database.Store, arc archive.Archive, det Detector, ext Extractor, opts Options,
) *Engine {
	return &Engine{
		store:     store,
		archive:   arc,
		detector:  det,
		extractor: ext,
		matcher:   Matcher{Threshold: opts.Threshold},
		opts:      opts,
		log:       log,
	}
}

// enrolledImage is an image that produced an embedding.
type enrolledImage struct {
	embedding database.NewEmbedding
	ref       archive.Ref
}

// Enroll turns each usable image into a reference embedding and appends them
// to the student. Unusable images are skipped. A batch without any usable
// image is a non-success result, not an error. When the batch fails, crops
// archived for it are removed again.
func (e *Engine) Enroll(ctx context.Context, req EnrollRequest) (*EnrollmentResult, error) {
	if req.StudentID == "" {
		return nil, invalidInput("student id is required")
	}
	if len(req.Images) < constants.MinEnrollmentImages || len(req.Images) > constants.MaxEnrollmentImages {
		return nil, invalidInput("between %d and %d images are required, got %d",
			constants.MinEnrollmentImages, constants.MaxEnrollmentImages, len(req.Images))
	}

	result := &EnrollmentResult{
		StudentID:       req.StudentID,
		QualityScores:   []float64{},
		ArchiveBackends: []string{},
	}

	var accepted []enrolledImage
	for i, data := range req.Images {
		if err := ctx.Err(); err != nil {
			e.discard(ctx, req.StudentID, accepted)
			return nil, err
		}
		img, reason, err := e.enrollImage(ctx, req.StudentID, i, data)
		if err != nil {
			e.discard(ctx, req.StudentID, accepted)
			return nil, err
		}
		if reason != "" {
			e.log.Warnf("Enrollment of %v: skipping image %d: %v", req.StudentID, i, reason)
			result.Skipped = append(result.Skipped, SkippedImage{Index: i, Reason: reason})
			continue
		}
		accepted = append(accepted, *img)
	}

	if len(accepted) == 0 {
		result.Message = msgNoValidFaces
		return result, nil
	}

	if req.Name != "" || req.ClassID != "" {
		if err := e.store.UpsertStudent(ctx, database.Student{ID: req.StudentID, Name: req.Name, ClassID: req.ClassID}); err != nil {
			e.discard(ctx, req.StudentID, accepted)
			return nil, stageErr(StageStore, "", err)
		}
	}

	embeddings := make([]database.NewEmbedding, len(accepted))
	for i, a := range accepted {
		embeddings[i] = a.embedding
		result.QualityScores = append(result.QualityScores, a.embedding.Quality)
		result.ArchiveBackends = append(result.ArchiveBackends, a.ref.Backend)
	}
	if _, err := e.store.AppendEmbeddings(ctx, req.StudentID, embeddings); err != nil {
		e.discard(ctx, req.StudentID, accepted)
		return nil, stageErr(StageStore, "", err)
	}

	result.Success = true
	result.EmbeddingsCreated = len(accepted)
	result.Message = fmt.Sprintf("Successfully enrolled %d face embeddings", len(accepted))
	if len(result.Skipped) > 0 {
		result.Message += fmt.Sprintf(" (%d of %d images skipped)", len(result.Skipped), len(req.Images))
	}
	e.log.Infof("Enrolled %d embeddings for student %v", len(accepted), req.StudentID)
	return result, nil
}

// enrollImage processes one image. A non-empty reason means the image was skipped.
func (e *Engine) enrollImage(
	ctx context.Context, studentID string, index int, data []byte,
) (*enrolledImage, string, error) {
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, "image could not be decoded", nil
	}
	img = imaging.Downscale(img, e.opts.MaxImageSize)
	encoded, err := imaging.EncodeJPEG(img)
	if err != nil {
		return nil, "image could not be encoded", nil
	}

	faces, err := detectFaces(ctx, e.detector, encoded, img.Bounds(), e.opts.DetectionConfidence)
	if err != nil {
		return nil, "", err
	}
	if len(faces) == 0 {
		return nil, "no face detected", nil
	}
	if len(faces) > 1 {
		e.log.Debugf("Enrollment of %v: image %d has %d faces, using the first", studentID, index, len(faces))
	}
	box := faces[0].Box

	embedding, crop, ok, err := embedRegion(ctx, e.extractor, img, box)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "no face found in crop", nil
	}
	if e.opts.EmbeddingDim > 0 && len(embedding) != e.opts.EmbeddingDim {
		return nil, fmt.Sprintf("embedding has %d dimensions, expected %d", len(embedding), e.opts.EmbeddingDim), nil
	}

	ref, err := e.archive.Save(ctx, studentID, crop, index)
	if err != nil {
		if errors.Is(err, archive.ErrInvalidKey) {
			return nil, "", invalidInput("student id %q can't be stored", studentID)
		}
		return nil, "face crop could not be archived", nil
	}

	return &enrolledImage{
		embedding: database.NewEmbedding{
			Embedding: embedding,
			Quality:   quality.Score(img, box),
			ImageRef:  ref.String(),
		},
		ref: ref,
	}, "", nil
}

// discard removes the crops archived for a batch that won't be stored.
// It still runs when ctx is already cancelled.
func (e *Engine) discard(ctx context.Context, studentID string, accepted []enrolledImage) {
	ctx = context.WithoutCancel(ctx)
	for _, a := range accepted {
		if err := e.archive.Delete(ctx, a.ref); err != nil {
			e.log.Warnf("Enrollment of %v: failed to remove archived crop %v: %v", studentID, a.ref.Path, err)
		}
	}
}

// DeleteAll removes every archived crop and embedding of a student and
// returns how many embeddings were removed. Archive failures are logged and
// don't prevent the embeddings from being deleted. Deleting an unknown or
// already empty student returns 0.
func (e *Engine) DeleteAll(ctx context.Context, studentID string) (int, error) {
	if studentID == "" {
		return 0, invalidInput("student id is required")
	}

	if n, err := e.archive.DeleteAll(ctx, studentID); err != nil {
		e.log.Warnf("Failed to delete archived crops of %v: %v", studentID, err)
	} else if n > 0 {
		e.log.Infof("Deleted %d archived crops of %v", n, studentID)
	}

	n, err := e.store.DeleteEmbeddings(ctx, studentID)
	if err != nil {
		return 0, stageErr(StageStore, "", err)
	}
	return n, nil
}

// StoredEmbedding is a stored embedding with a resolvable crop URL.
type StoredEmbedding struct {
	ID        int64   `json:"id"`
	Quality   float64 `json:"quality_score"`
	ImageRef  string  `json:"image_ref,omitempty"`
	ImageURL  string  `json:"image_url,omitempty"`
	Dimension int     `json:"dimension"`
}

// Embeddings lists a student's embeddings, best quality first.
func (e *Engine) Embeddings(ctx context.Context, studentID string) ([]StoredEmbedding, error) {
	stored, err := e.store.FetchEmbeddings(ctx, studentID)
	if err != nil {
		return nil, stageErr(StageStore, "", err)
	}
	out := make([]StoredEmbedding, 0, len(stored))
	for _, s := range stored {
		item := StoredEmbedding{ID: s.ID, Quality: s.Quality, ImageRef: s.ImageRef, Dimension: len(s.Embedding)}
		if s.ImageRef != "" {
			item.ImageURL = e.archive.URL(archive.ParseRef(s.ImageRef))
		}
		out = append(out, item)
	}
	return out, nil
}

// probeFace decodes an image and returns it with its usable faces.
func (e *Engine) probeFace(ctx context.Context, data []byte) (*decodedImage, error) {
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	img = imaging.Downscale(img, e.opts.MaxImageSize)
	encoded, err := imaging.EncodeJPEG(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	faces, err := detectFaces(ctx, e.detector, encoded, img.Bounds(), e.opts.DetectionConfidence)
	if err != nil {
		return nil, err
	}
	return &decodedImage{img: img, faces: faces}, nil
}

// Verify checks whether a photo shows the given student. The photo must
// contain exactly one face.
func (e *Engine) Verify(ctx context.Context, studentID string, data []byte) (*VerificationResult, error) {
	if studentID == "" {
		return nil, invalidInput("student id is required")
	}

	stored, err := e.store.FetchEmbeddings(ctx, studentID)
	if err != nil {
		return nil, stageErr(StageStore, "", err)
	}
	if len(stored) == 0 {
		return nil, ErrNotEnrolled
	}

	probe, err := e.probeFace(ctx, data)
	if err != nil {
		return nil, err
	}
	switch len(probe.faces) {
	case 0:
		return nil, ErrNoFace
	case 1:
	default:
		return nil, fmt.Errorf("%w: found %d", ErrMultipleFaces, len(probe.faces))
	}

	embedding, err := probe.embedFace(ctx, e.extractor, 0, e.opts.FaceMargin)
	if err != nil {
		return nil, err
	}

	res := e.matcher.Match(embedding, []database.EnrolledStudent{{ID: studentID, Embeddings: stored}})
	out := &VerificationResult{StudentID: studentID, Match: res.Recognized, Distance: res.Distance}
	if res.Recognized {
		out.Confidence = res.Confidence
	}
	return out, nil
}

// Identify returns up to k students closest to the primary face of a photo.
func (e *Engine) Identify(ctx context.Context, data []byte, k int) ([]IdentifyCandidate, error) {
	if k <= 0 {
		k = 1
	}
	probe, err := e.probeFace(ctx, data)
	if err != nil {
		return nil, err
	}
	if len(probe.faces) == 0 {
		return nil, ErrNoFace
	}

	embedding, err := probe.embedFace(ctx, e.extractor, 0, e.opts.FaceMargin)
	if err != nil {
		return nil, err
	}

	// Several embeddings can belong to one student, so over-fetch before collapsing.
	neighbors, err := e.store.FindNearest(ctx, embedding, k*database.HNSWSearchMultiplier)
	if err != nil {
		return nil, stageErr(StageStore, "", err)
	}

	seen := make(map[string]bool)
	candidates := make([]IdentifyCandidate, 0, k)
	for _, n := range neighbors {
		if seen[n.Embedding.StudentID] {
			continue
		}
		seen[n.Embedding.StudentID] = true
		candidates = append(candidates, IdentifyCandidate{
			StudentID:   n.Embedding.StudentID,
			StudentName: n.StudentName,
			Distance:    n.Distance,
			Confidence:  max(0, 1-n.Distance),
			Recognized:  n.Distance <= e.opts.Threshold,
		})
	}
	slices.SortStableFunc(candidates, func(a, b IdentifyCandidate) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}
