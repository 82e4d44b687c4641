package database

import (
	"context"
	"fmt"

	"github.com/kdimtricp/arcwatch/internal/models"
)

type SnapshotRepository struct {
	db *DB
}

func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const snapshotColumns = `id, file_id, event_id, image_path, time_sec, frame_index, width, height,
	confidence, sequence, created_at`

func (r *SnapshotRepository) Create(ctx context.Context, s *models.Snapshot) error {
	query := `INSERT INTO snapshots (` + snapshotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.execContext(ctx, query,
		s.ID, s.FileID, s.EventID, s.ImagePath, s.TimeSec, s.FrameIndex, s.Width, s.Height,
		s.Confidence, s.Sequence, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (r *SnapshotRepository) Get(ctx context.Context, id string) (*models.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE id = $1`
	s, err := scanSnapshot(r.db.queryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "snapshot")
	}
	return s, nil
}

// Delete removes a snapshot row. Deleting a missing row is not an error.
func (r *SnapshotRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.execContext(ctx, `DELETE FROM snapshots WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// ListByFile returns snapshots in creation order.
func (r *SnapshotRepository) ListByFile(ctx context.Context, fileID string) ([]*models.Snapshot, error) {
	return r.list(ctx, `SELECT `+snapshotColumns+` FROM snapshots WHERE file_id = $1 ORDER BY sequence`, fileID)
}

// ListByConfidence returns snapshots best first; equal confidences keep the older one first.
func (r *SnapshotRepository) ListByConfidence(ctx context.Context, fileID string) ([]*models.Snapshot, error) {
	return r.list(ctx, `SELECT `+snapshotColumns+` FROM snapshots WHERE file_id = $1
		ORDER BY confidence DESC, sequence ASC`, fileID)
}

func (r *SnapshotRepository) list(ctx context.Context, query string, args ...any) ([]*models.Snapshot, error) {
	rows, err := r.db.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []*models.Snapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// MaxSequence returns the highest snapshot sequence of a file, 0 if none.
func (r *SnapshotRepository) MaxSequence(ctx context.Context, fileID string) (int, error) {
	var seq int
	err := r.db.queryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM snapshots WHERE file_id = $1`, fileID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to get max snapshot sequence: %w", err)
	}
	return seq, nil
}

func (r *SnapshotRepository) DeleteByFile(ctx context.Context, fileID string) error {
	if _, err := r.db.execContext(ctx, `DELETE FROM snapshots WHERE file_id = $1`, fileID); err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return nil
}

func scanSnapshot(row rowScanner) (*models.Snapshot, error) {
	s := &models.Snapshot{}
	err := row.Scan(&s.ID, &s.FileID, &s.EventID, &s.ImagePath, &s.TimeSec, &s.FrameIndex,
		&s.Width, &s.Height, &s.Confidence, &s.Sequence, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}
