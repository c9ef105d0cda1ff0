package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database    DatabaseConfig
	FaceService FaceServiceConfig
	Recognition RecognitionConfig
	Video       VideoConfig
	Storage     StorageConfig
	Web         WebConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
	HNSWEnabled  bool   // Build an in-memory HNSW index over enrolled embeddings at startup
}

type FaceServiceConfig struct {
	URL string // defaults to http://localhost:8000
	Dim int    // defaults to 512
}

type RecognitionConfig struct {
	Threshold           float64 `yaml:"threshold"`
	DetectionConfidence float64 `yaml:"detection_confidence"`
	FaceMargin          float64 `yaml:"face_margin"`
	MaxDetectionSamples int     `yaml:"max_detection_samples"`
	IdentifyLimit       int     `yaml:"identify_limit"`
}

type VideoConfig struct {
	SamplingFPS float64 `yaml:"sampling_fps"`
	FFmpegPath  string  `yaml:"ffmpeg_path"`
	FFprobePath string  `yaml:"ffprobe_path"`
}

// StorageConfig selects where enrollment face crops are archived.
type StorageConfig struct {
	Type      string // "local" or "gcs"
	LocalPath string // root directory of the local archive
	GCSBucket string
	GCSPublic bool // bucket objects are publicly readable
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // browser origins allowed by CORS besides localhost
}

type defaults struct {
	Recognition RecognitionConfig `yaml:"recognition"`
	Video       VideoConfig       `yaml:"video"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a non-negative float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWEnabled:  envBool("HNSW_ENABLED", true),
		},
		FaceService: FaceServiceConfig{
			URL: os.Getenv("FACE_SERVICE_URL"),
			Dim: envInt("EMBEDDING_SIZE", 512),
		},
		Recognition: RecognitionConfig{
			Threshold:           envFloat("RECOGNITION_THRESHOLD", d.Recognition.Threshold),
			DetectionConfidence: envFloat("DETECTION_CONFIDENCE", d.Recognition.DetectionConfidence),
			FaceMargin:          envFloat("FACE_MARGIN", d.Recognition.FaceMargin),
			MaxDetectionSamples: envInt("MAX_DETECTION_SAMPLES", d.Recognition.MaxDetectionSamples),
			IdentifyLimit:       envInt("IDENTIFY_LIMIT", d.Recognition.IdentifyLimit),
		},
		Video: VideoConfig{
			SamplingFPS: envFloat("VIDEO_FRAME_RATE", d.Video.SamplingFPS),
			FFmpegPath:  envString("FFMPEG_PATH", d.Video.FFmpegPath),
			FFprobePath: envString("FFPROBE_PATH", d.Video.FFprobePath),
		},
		Storage: StorageConfig{
			Type:      strings.ToLower(envString("STORAGE_TYPE", "local")),
			LocalPath: envString("LOCAL_STORAGE_PATH", "./storage"),
			GCSBucket: os.Getenv("GCS_BUCKET"),
			GCSPublic: envBool("GCS_PUBLIC", false),
		},
		Web: WebConfig{
			Host: envString("WEB_HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 8080),

			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}
