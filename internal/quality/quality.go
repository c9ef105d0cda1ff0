// Package quality scores how usable a face crop is as a reference embedding.
package quality

import (
	"image"
	"image/color"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Score rates the face in region of img in [0, 1].
//
// Sharpness is the variance of the Laplacian of the grayscale crop divided by
// constants.SharpnessSaturation. Size is the crop area relative to a
// ReferenceFaceSide square. Both saturate at 1 and combine with
// SharpnessWeight and SizeWeight. The region is clipped to the image and a
// region with zero area scores 0.
func Score(img image.Image, region image.Rectangle) float64 {
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return 0
	}

	sharpness := min(LaplacianVariance(img, region)/constants.SharpnessSaturation, 1)

	area := float64(region.Dx() * region.Dy())
	ref := float64(constants.ReferenceFaceSide * constants.ReferenceFaceSide)
	size := min(area/ref, 1)

	return constants.SharpnessWeight*sharpness + constants.SizeWeight*size
}

// LaplacianVariance returns the variance of the 4-neighbour Laplacian over
// the interior pixels of region. Regions narrower than 3 pixels have no
// interior and return 0.
func LaplacianVariance(img image.Image, region image.Rectangle) float64 {
	w, h := region.Dx(), region.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	gray := make([]float64, w*h)
	for y := range h {
		for x := range w {
			g := color.GrayModel.Convert(img.At(region.Min.X+x, region.Min.Y+y)).(color.Gray)
			gray[y*w+x] = float64(g.Y)
		}
	}

	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			lap := gray[i-w] + gray[i+w] + gray[i-1] + gray[i+1] - 4*gray[i]
			sum += lap
			sumSq += lap * lap
			n++
		}
	}

	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}
