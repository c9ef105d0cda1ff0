// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Recognition constants
const (
	// DefaultRecognitionThreshold is the maximum Euclidean distance at which a
	// face is still attributed to an enrolled student
	DefaultRecognitionThreshold = 0.6

	// DefaultDetectionConfidence is the minimum detector score for a face to be used
	DefaultDetectionConfidence = 0.7

	// DefaultFaceMargin is the fractional padding added around a detected face
	// before cropping it for embedding extraction
	DefaultFaceMargin = 0.2

	// DefaultEmbeddingDim is the dimensionality of face embeddings
	DefaultEmbeddingDim = 512

	// DefaultIdentifyLimit is the default number of candidates returned by identify
	DefaultIdentifyLimit = 5
)

// Video constants
const (
	// DefaultSamplingFPS is the target number of analyzed frames per second of video
	DefaultSamplingFPS = 2.0

	// MaxDetectionSamples is the number of detections kept per student in a report
	MaxDetectionSamples = 5

	// MinScannerBuffer is the initial buffer size used when splitting the MJPEG stream
	MinScannerBuffer = 1024 * 1024

	// MaxScannerBuffer is the largest single frame accepted from the decoder
	MaxScannerBuffer = 64 * 1024 * 1024
)

// Quality scoring constants
const (
	// SharpnessSaturation is the Laplacian variance at which sharpness reaches 1.0
	SharpnessSaturation = 500.0

	// ReferenceFaceSide is the side (in pixels) of a face crop that reaches full size score
	ReferenceFaceSide = 200

	// SharpnessWeight and SizeWeight combine into the final quality score
	SharpnessWeight = 0.6
	SizeWeight      = 0.4
)

// Processing constants
const (
	// MaxImageSize is the maximum dimension (width or height) for image processing
	MaxImageSize = 1920

	// JPEGQuality is used for every JPEG the service encodes
	JPEGQuality = 85
)
