package api

import (
	"context"

	"github.com/kdimtricp/arcwatch/internal/models"
	"github.com/kdimtricp/arcwatch/internal/storage"
)

type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context) ([]*models.Job, error)
	RecomputeProgress(ctx context.Context, jobID string) error
}

type FileStore interface {
	Create(ctx context.Context, f *models.File) error
	Get(ctx context.Context, id string) (*models.File, error)
	ListByJob(ctx context.Context, jobID string) ([]*models.File, error)
}

type EventLister interface {
	ListByFile(ctx context.Context, fileID string) ([]*models.Event, error)
}

type SnapshotReader interface {
	Get(ctx context.Context, id string) (*models.Snapshot, error)
	ListByFile(ctx context.Context, fileID string) ([]*models.Snapshot, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, fileID string) error
}

type Reanalyzer interface {
	Reanalyze(ctx context.Context, fileID string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// App holds the dependencies of the HTTP handlers.
type App struct {
	Uploads       storage.Storage
	Images        storage.Storage
	Jobs          JobStore
	Files         FileStore
	Events        EventLister
	Snapshots     SnapshotReader
	Queue         Enqueuer
	Reanalyzer    Reanalyzer
	DB            Pinger
	MaxUploadSize int64
}
