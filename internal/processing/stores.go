package processing

import (
	"context"

	"github.com/kdimtricp/arcwatch/internal/models"
)

// The processing unit only sees the narrow slices of the repositories and
// storage it needs. Each call is an independent commit point.

type FileStore interface {
	Get(ctx context.Context, id string) (*models.File, error)
	UpdateStatus(ctx context.Context, id, status, message string) error
	UpdateMedia(ctx context.Context, id string, fps float64, frameCount int, durationSec float64) error
}

type EventStore interface {
	Create(ctx context.Context, ev *models.Event) error
	Update(ctx context.Context, ev *models.Event) error
	MaxSequence(ctx context.Context, fileID string) (int, error)
	DeleteByFile(ctx context.Context, fileID string) error
}

type SnapshotStore interface {
	Create(ctx context.Context, s *models.Snapshot) error
	Delete(ctx context.Context, id string) error
	ListByConfidence(ctx context.Context, fileID string) ([]*models.Snapshot, error)
	MaxSequence(ctx context.Context, fileID string) (int, error)
	DeleteByFile(ctx context.Context, fileID string) error
}

// ProgressRecorder recomputes a job's aggregate counts after a file finishes.
type ProgressRecorder interface {
	RecomputeProgress(ctx context.Context, jobID string) error
}

// SnapshotFiles stores snapshot images.
type SnapshotFiles interface {
	SaveSnapshot(fileID string, sequence int, jpeg []byte) (string, error)
	DeleteFile(name string) error
}

// VideoPaths resolves a stored upload name to a path the decoder can open.
type VideoPaths interface {
	Path(name string) (string, error)
}

// MediaProber reports what the container leaves out: frame rate and duration.
type MediaProber interface {
	FPS(ctx context.Context, path string) (float64, error)
	Duration(ctx context.Context, path string) (float64, error)
}
