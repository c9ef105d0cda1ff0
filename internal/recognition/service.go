package recognition

import (
	"github.com/cyclopcam/logs"
	"github.com/kozaktomas/face-attendance/internal/archive"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// Service bundles enrollment and video recognition over shared dependencies.
type Service struct {
	*Engine
	*Pipeline
}

// Dependencies are the collaborators of a Service.
type Dependencies struct {
	Store     database.Store
	Archive   archive.Archive
	Detector  Detector
	Extractor Extractor
	Decoder   VideoDecoder
}

func NewService(log logs.Log, deps Dependencies, opts Options) *Service {
	return &Service{
		Engine:   NewEngine(log, deps.Store, deps.Archive, deps.Detector, deps.Extractor, opts),
		Pipeline: NewPipeline(log, deps.Store, deps.Decoder, deps.Detector, deps.Extractor, opts),
	}
}
