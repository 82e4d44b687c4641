package database

import (
	"context"
	"fmt"
	"time"

	"github.com/kdimtricp/arcwatch/internal/models"
)

type JobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, name, status, total_files, finished_files, failed_files, progress, created_at, updated_at`

func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	query := `INSERT INTO jobs (` + jobColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.execContext(ctx, query,
		job.ID, job.Name, job.Status, job.TotalFiles, job.FinishedFiles, job.FailedFiles,
		job.Progress, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(r.db.queryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "job")
	}
	return job, nil
}

func (r *JobRepository) List(ctx context.Context) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC`
	rows, err := r.db.queryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// RecomputeProgress refreshes the aggregate counts of a job from its files.
func (r *JobRepository) RecomputeProgress(ctx context.Context, jobID string) error {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = $2 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = $3 THEN 1 ELSE 0 END), 0)
		FROM files
		WHERE job_id = $1`

	var total, finished, failed int
	err := r.db.queryRowContext(ctx, query, jobID, models.FileStatusDone, models.FileStatusFailed).
		Scan(&total, &finished, &failed)
	if err != nil {
		return fmt.Errorf("failed to count files: %w", err)
	}

	var progress float64
	if total > 0 {
		progress = float64(finished+failed) / float64(total)
	}

	update := `
		UPDATE jobs
		SET total_files = $2, finished_files = $3, failed_files = $4, progress = $5, status = $6, updated_at = $7
		WHERE id = $1`
	res, err := r.db.execContext(ctx, update, jobID, total, finished, failed, progress,
		models.JobStatusFor(total, finished, failed), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	job := &models.Job{}
	err := row.Scan(&job.ID, &job.Name, &job.Status, &job.TotalFiles, &job.FinishedFiles,
		&job.FailedFiles, &job.Progress, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return job, nil
}
