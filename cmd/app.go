package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/cyclopcam/logs"
	"github.com/kozaktomas/face-attendance/internal/archive"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/faceclient"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/video"
)

// app holds the services shared by all commands.
type app struct {
	cfg     *config.Config
	log     logs.Log
	pool    *postgres.Pool
	roster  *postgres.RosterRepository
	archive archive.Archive
	local   *archive.Local
	service *recognition.Service
}

// openApp connects to PostgreSQL, runs migrations and wires the recognition service.
func openApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	log, err := logs.NewLog()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	pool, err := postgres.Open(ctx, log, &cfg.Database)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	roster := postgres.NewRosterRepository(pool)

	arc, local, err := archive.Open(ctx, log, cfg.Storage)
	if err != nil {
		pool.Close()
		log.Close()
		return nil, fmt.Errorf("failed to open face archive: %w", err)
	}

	faces := faceclient.NewClient(cfg.FaceService.URL)
	service := recognition.NewService(log, recognition.Dependencies{
		Store:     roster,
		Archive:   arc,
		Detector:  faces,
		Extractor: faces,
		Decoder:   video.NewFFmpeg(log, cfg.Video.FFmpegPath, cfg.Video.FFprobePath),
	}, recognition.OptionsFromConfig(cfg))

	return &app{
		cfg:     cfg,
		log:     log,
		pool:    pool,
		roster:  roster,
		archive: arc,
		local:   local,
		service: service,
	}, nil
}

// enableHNSW builds the in-memory nearest-neighbour index when configured.
func (a *app) enableHNSW(ctx context.Context) {
	if !a.cfg.Database.HNSWEnabled {
		return
	}
	a.log.Infof("Building in-memory HNSW index for face identification...")
	if err := a.roster.EnableHNSW(ctx); err != nil {
		a.log.Warnf("Failed to build HNSW index, identification will use PostgreSQL queries: %v", err)
		return
	}
	a.log.Infof("HNSW index built with %d embeddings", a.roster.HNSWCount())
}

func (a *app) Close() {
	if err := a.pool.Close(); err != nil {
		a.log.Warnf("Failed to close database: %v", err)
	}
	a.log.Close()
}
