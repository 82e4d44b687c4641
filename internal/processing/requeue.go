package processing

import (
	"context"
	"fmt"

	"github.com/kdimtricp/arcwatch/internal/logging"
	"github.com/kdimtricp/arcwatch/internal/models"
)

// UnfinishedLister finds files by status.
type UnfinishedLister interface {
	ListByStatus(ctx context.Context, statuses ...string) ([]*models.File, error)
}

// Enqueuer is the producer side of the ingestion queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, fileID string) error
}

// RequeueUnfinished puts every pending or interrupted file back on the queue,
// oldest upload first. It stops at the first enqueue error.
func RequeueUnfinished(ctx context.Context, files UnfinishedLister, q Enqueuer) (int, error) {
	pending, err := files.ListByStatus(ctx, models.FileStatusProcessing, models.FileStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to list unfinished files: %w", err)
	}

	n := 0
	for _, f := range pending {
		if err := q.Enqueue(ctx, f.ID); err != nil {
			return n, fmt.Errorf("failed to requeue file %s: %w", f.ID, err)
		}
		n++
	}
	if n > 0 {
		logging.Info().Int("count", n).Msg("Requeued unfinished files")
	}
	return n, nil
}
