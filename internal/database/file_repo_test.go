package database

import (
	"context"
	"errors"
	"testing"

	"github.com/kdimtricp/arcwatch/internal/models"
)

func TestFileRepository_CreateAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewFileRepository(db)
	job, file := seedFile(t, db)

	got, err := repo.Get(ctx, file.ID)
	if err != nil {
		t.Fatalf("Failed to get file: %v", err)
	}
	if got.JobID != job.ID {
		t.Errorf("Expected job %s, got %s", job.ID, got.JobID)
	}
	if got.OriginalName != "clip.mp4" || got.StoredName != "stored-clip.mp4" {
		t.Errorf("Unexpected names: %s / %s", got.OriginalName, got.StoredName)
	}
	if got.Status != models.FileStatusPending {
		t.Errorf("Expected status pending, got %s", got.Status)
	}
	if got.ProcessedAt != nil {
		t.Errorf("Expected no processed_at, got %v", got.ProcessedAt)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFileRepository_CreateRequiresJob(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	f := models.NewFile("no-such-job", "a.mp4", "a.mp4", "video/mp4", 1)
	if err := NewFileRepository(db).Create(context.Background(), f); err == nil {
		t.Error("Expected foreign key error, got nil")
	}
}

func TestFileRepository_UpdateStatus(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewFileRepository(db)
	_, file := seedFile(t, db)

	if err := repo.UpdateStatus(ctx, file.ID, models.FileStatusProcessing, ""); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}
	got, _ := repo.Get(ctx, file.ID)
	if got.ProcessedAt != nil {
		t.Error("processing must not stamp processed_at")
	}

	if err := repo.UpdateStatus(ctx, file.ID, models.FileStatusFailed, "decoder error"); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}
	got, _ = repo.Get(ctx, file.ID)
	if got.Status != models.FileStatusFailed || got.Message != "decoder error" {
		t.Errorf("Expected failed/decoder error, got %s/%s", got.Status, got.Message)
	}
	if got.ProcessedAt == nil {
		t.Error("Expected processed_at to be set")
	}

	if err := repo.UpdateStatus(ctx, "missing", models.FileStatusDone, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFileRepository_UpdateMedia(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewFileRepository(db)
	_, file := seedFile(t, db)

	if err := repo.UpdateMedia(ctx, file.ID, 29.97, 300, 10.01); err != nil {
		t.Fatalf("Failed to update media: %v", err)
	}
	got, _ := repo.Get(ctx, file.ID)
	if got.FPS != 29.97 || got.FrameCount != 300 || got.DurationSec != 10.01 {
		t.Errorf("Unexpected media info: %v %d %v", got.FPS, got.FrameCount, got.DurationSec)
	}
}

func TestFileRepository_ListByJobAndStatus(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewFileRepository(db)
	job, first := seedFile(t, db)

	second := models.NewFile(job.ID, "b.mp4", "b.mp4", "video/mp4", 1)
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if err := repo.UpdateStatus(ctx, second.ID, models.FileStatusProcessing, ""); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}

	all, err := repo.ListByJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("Failed to list files: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(all))
	}

	tests := []struct {
		statuses []string
		want     []string
	}{
		{statuses: []string{models.FileStatusPending}, want: []string{first.ID}},
		{statuses: []string{models.FileStatusPending, models.FileStatusProcessing}, want: []string{first.ID, second.ID}},
		{statuses: []string{models.FileStatusDone}, want: nil},
		{statuses: nil, want: nil},
	}
	for _, tt := range tests {
		got, err := repo.ListByStatus(ctx, tt.statuses...)
		if err != nil {
			t.Fatalf("Failed to list by status %v: %v", tt.statuses, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("statuses %v: expected %d files, got %d", tt.statuses, len(tt.want), len(got))
		}
		for i := range got {
			if got[i].ID != tt.want[i] {
				t.Errorf("statuses %v: position %d expected %s, got %s", tt.statuses, i, tt.want[i], got[i].ID)
			}
		}
	}
}
