package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kdimtricp/arcwatch/internal/models"
)

type FileRepository struct {
	db *DB
}

func NewFileRepository(db *DB) *FileRepository {
	return &FileRepository{db: db}
}

const fileColumns = `id, job_id, original_name, stored_name, content_type, size, status, message,
	fps, frame_count, duration_sec, uploaded_at, processed_at`

func (r *FileRepository) Create(ctx context.Context, f *models.File) error {
	query := `INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.execContext(ctx, query,
		f.ID, f.JobID, f.OriginalName, f.StoredName, f.ContentType, f.Size, f.Status, f.Message,
		f.FPS, f.FrameCount, f.DurationSec, f.UploadedAt, f.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

func (r *FileRepository) Get(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	f, err := scanFile(r.db.queryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "file")
	}
	return f, nil
}

func (r *FileRepository) ListByJob(ctx context.Context, jobID string) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE job_id = $1 ORDER BY uploaded_at, id`
	return r.list(ctx, query, jobID)
}

// ListByStatus returns files in any of the given statuses, oldest upload first.
func (r *FileRepository) ListByStatus(ctx context.Context, statuses ...string) ([]*models.File, error) {
	if len(statuses) == 0 {
		return []*models.File{}, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = s
	}
	query := `SELECT ` + fileColumns + ` FROM files WHERE status IN (` +
		strings.Join(placeholders, ", ") + `) ORDER BY uploaded_at, id`
	return r.list(ctx, query, args...)
}

func (r *FileRepository) list(ctx context.Context, query string, args ...any) ([]*models.File, error) {
	rows, err := r.db.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	files := []*models.File{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// UpdateStatus sets the processing status. Terminal statuses stamp processed_at;
// other statuses clear it.
func (r *FileRepository) UpdateStatus(ctx context.Context, id, status, message string) error {
	var processedAt *time.Time
	if status == models.FileStatusDone || status == models.FileStatusFailed {
		now := time.Now().UTC()
		processedAt = &now
	}
	query := `UPDATE files SET status = $2, message = $3, processed_at = $4 WHERE id = $1`
	return r.exec(ctx, "update file status", query, id, status, message, processedAt)
}

// UpdateMedia records what the decoder reported about the video.
func (r *FileRepository) UpdateMedia(ctx context.Context, id string, fps float64, frameCount int, durationSec float64) error {
	query := `UPDATE files SET fps = $2, frame_count = $3, duration_sec = $4 WHERE id = $1`
	return r.exec(ctx, "update file media info", query, id, fps, frameCount, durationSec)
}

func (r *FileRepository) exec(ctx context.Context, what, query string, args ...any) error {
	res, err := r.db.execContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("file %v: %w", args[0], ErrNotFound)
	}
	return nil
}

func scanFile(row rowScanner) (*models.File, error) {
	f := &models.File{}
	var processedAt sql.NullTime
	err := row.Scan(&f.ID, &f.JobID, &f.OriginalName, &f.StoredName, &f.ContentType, &f.Size,
		&f.Status, &f.Message, &f.FPS, &f.FrameCount, &f.DurationSec, &f.UploadedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		t := processedAt.Time
		f.ProcessedAt = &t
	}
	return f, nil
}
