package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/kozaktomas/face-attendance/internal/faceclient"
	"github.com/kozaktomas/face-attendance/internal/imaging"
)

// face is a detection clipped to its image.
type face struct {
	Box   image.Rectangle
	Score float64
}

// usableFaces clips detections to bounds and drops low-confidence and
// degenerate ones, keeping detector order.
func usableFaces(dets []faceclient.Detection, bounds image.Rectangle, minConfidence float64) []face {
	faces := make([]face, 0, len(dets))
	for _, d := range dets {
		if d.Score < minConfidence {
			continue
		}
		box := d.Box.Intersect(bounds)
		if box.Empty() {
			continue
		}
		faces = append(faces, face{Box: box, Score: d.Score})
	}
	return faces
}

// detectFaces runs the detector on an encoded image and returns its usable faces.
func detectFaces(
	ctx context.Context, det Detector, encoded []byte, bounds image.Rectangle, minConfidence float64,
) ([]face, error) {
	dets, err := det.Detect(ctx, encoded)
	if err != nil {
		return nil, stageErr(StageDetection, "", err)
	}
	return usableFaces(dets, bounds, minConfidence), nil
}

// embedRegion crops region out of img and extracts its embedding.
// ok is false when the crop is empty or the extractor finds no face in it.
func embedRegion(
	ctx context.Context, ext Extractor, img image.Image, region image.Rectangle,
) (embedding []float32, crop []byte, ok bool, err error) {
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return nil, nil, false, nil
	}

	crop, err = imaging.EncodeJPEG(imaging.Crop(img, region))
	if err != nil {
		return nil, nil, false, fmt.Errorf("encode face crop: %w", err)
	}

	embedding, err = ext.Embed(ctx, crop)
	if errors.Is(err, faceclient.ErrNoFaceInCrop) {
		return nil, crop, false, nil
	}
	if err != nil {
		return nil, nil, false, stageErr(StageEmbedding, "", err)
	}
	return embedding, crop, true, nil
}

// decodedImage is a still photo with its usable faces.
type decodedImage struct {
	img   image.Image
	faces []face
}

// embedFace embeds the i-th face with margin. A crop in which the extractor
// finds no face is reported as ErrNoFace.
func (d *decodedImage) embedFace(ctx context.Context, ext Extractor, i int, margin float64) ([]float32, error) {
	region := imaging.ExpandBox(d.faces[i].Box, margin, d.img.Bounds())
	embedding, _, ok, err := embedRegion(ctx, ext, d.img, region)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoFace
	}
	return embedding, nil
}
