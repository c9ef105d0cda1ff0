// Package constants provides shared constants used across the codebase.
package constants

// Upload limits
const (
	// MaxUploadSize is the maximum size for multipart uploads (500 MB, videos included)
	MaxUploadSize = 500 << 20

	// MaxMemoryUpload is the part of a multipart form kept in memory before spilling to disk
	MaxMemoryUpload = 32 << 20

	// MinEnrollmentImages and MaxEnrollmentImages bound a single enrollment request
	MinEnrollmentImages = 1
	MaxEnrollmentImages = 10

	// MaxIdentifyLimit caps the k parameter of identify requests
	MaxIdentifyLimit = 50
)

// Server timeouts
const (
	// ShutdownTimeoutSeconds is the grace period for in-flight requests on shutdown
	ShutdownTimeoutSeconds = 30
)

// Async jobs
const (
	// EventChannelBuffer is the per-listener buffer of job events
	EventChannelBuffer = 100

	// FinishedJobRetentionHours is how long finished attendance jobs stay queryable
	FinishedJobRetentionHours = 24
)
