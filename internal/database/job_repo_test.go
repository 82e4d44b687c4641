package database

import (
	"context"
	"errors"
	"testing"

	"github.com/kdimtricp/arcwatch/internal/models"
)

func TestJobRepository_CreateAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewJobRepository(db)

	job := models.NewJob("night shift")
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	got, err := repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.Name != "night shift" {
		t.Errorf("Expected name %q, got %q", "night shift", got.Name)
	}
	if got.Status != models.JobStatusOpen {
		t.Errorf("Expected status %s, got %s", models.JobStatusOpen, got.Status)
	}

	_, err = repo.Get(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestJobRepository_List(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewJobRepository(db)

	for _, name := range []string{"a", "b"} {
		if err := repo.Create(ctx, models.NewJob(name)); err != nil {
			t.Fatalf("Failed to create job: %v", err)
		}
	}

	jobs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestJobRepository_RecomputeProgress(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	jobs := NewJobRepository(db)
	files := NewFileRepository(db)

	job, first := seedFile(t, db)
	second := models.NewFile(job.ID, "b.mp4", "b-stored.mp4", "video/mp4", 10)
	if err := files.Create(ctx, second); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	steps := []struct {
		name         string
		fileID       string
		status       string
		wantStatus   string
		wantFinished int
		wantFailed   int
		wantProgress float64
	}{
		{name: "nothing done", wantStatus: models.JobStatusRunning},
		{name: "one done", fileID: first.ID, status: models.FileStatusDone,
			wantStatus: models.JobStatusRunning, wantFinished: 1, wantProgress: 0.5},
		{name: "one failed", fileID: second.ID, status: models.FileStatusFailed,
			wantStatus: models.JobStatusFinished, wantFinished: 1, wantFailed: 1, wantProgress: 1},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			if step.fileID != "" {
				if err := files.UpdateStatus(ctx, step.fileID, step.status, ""); err != nil {
					t.Fatalf("Failed to update file status: %v", err)
				}
			}
			if err := jobs.RecomputeProgress(ctx, job.ID); err != nil {
				t.Fatalf("Failed to recompute progress: %v", err)
			}

			got, err := jobs.Get(ctx, job.ID)
			if err != nil {
				t.Fatalf("Failed to get job: %v", err)
			}
			if got.TotalFiles != 2 {
				t.Errorf("Expected 2 total files, got %d", got.TotalFiles)
			}
			if got.Status != step.wantStatus {
				t.Errorf("Expected status %s, got %s", step.wantStatus, got.Status)
			}
			if got.FinishedFiles != step.wantFinished || got.FailedFiles != step.wantFailed {
				t.Errorf("Expected %d/%d finished/failed, got %d/%d",
					step.wantFinished, step.wantFailed, got.FinishedFiles, got.FailedFiles)
			}
			if got.Progress != step.wantProgress {
				t.Errorf("Expected progress %v, got %v", step.wantProgress, got.Progress)
			}
		})
	}

	if err := jobs.RecomputeProgress(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown job, got %v", err)
	}
}
