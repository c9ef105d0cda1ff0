package archive

import (
	"context"
	"fmt"

	"github.com/cyclopcam/logs"
	"github.com/kozaktomas/face-attendance/internal/config"
)

// Open creates the archive selected by cfg. A GCS archive always keeps a
// local fallback under cfg.LocalPath.
func Open(ctx context.Context, log logs.Log, cfg config.StorageConfig) (Archive, *Local, error) {
	local, err := NewLocal(log, cfg.LocalPath)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Type {
	case "", BackendLocal:
		return local, local, nil
	case BackendGCS:
		remote, err := NewGCS(ctx, log, cfg.GCSBucket, cfg.GCSPublic)
		if err != nil {
			return nil, nil, err
		}
		return NewFallback(log, remote, local), local, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
