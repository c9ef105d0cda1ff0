package recognition

import (
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Options tune detection, matching and sampling.
type Options struct {
	Threshold           float64 // maximum Euclidean distance for a match
	DetectionConfidence float64 // minimum detector score
	FaceMargin          float64 // padding around a face before embedding, video and verification only
	SamplingFPS         float64 // analyzed frames per second of video
	MaxDetectionSamples int     // detections kept per student in a report
	EmbeddingDim        int     // expected embedding length, 0 accepts any
	MaxImageSize        int     // enrollment images are downscaled to this size
}

// DefaultOptions returns the built-in tuning.
func DefaultOptions() Options {
	return Options{
		Threshold:           constants.DefaultRecognitionThreshold,
		DetectionConfidence: constants.DefaultDetectionConfidence,
		FaceMargin:          constants.DefaultFaceMargin,
		SamplingFPS:         constants.DefaultSamplingFPS,
		MaxDetectionSamples: constants.MaxDetectionSamples,
		EmbeddingDim:        constants.DefaultEmbeddingDim,
		MaxImageSize:        constants.MaxImageSize,
	}
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.Threshold = cfg.Recognition.Threshold
	opts.DetectionConfidence = cfg.Recognition.DetectionConfidence
	opts.FaceMargin = cfg.Recognition.FaceMargin
	opts.SamplingFPS = cfg.Video.SamplingFPS
	if cfg.Recognition.MaxDetectionSamples > 0 {
		opts.MaxDetectionSamples = cfg.Recognition.MaxDetectionSamples
	}
	if cfg.FaceService.Dim > 0 {
		opts.EmbeddingDim = cfg.FaceService.Dim
	}
	return opts
}
