package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kdimtricp/arcwatch/internal/models"
)

func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	db, err := NewDB(Config{Type: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db, func() { db.Close() }
}

// seedFile inserts a job with one pending file.
func seedFile(t *testing.T, db *DB) (*models.Job, *models.File) {
	t.Helper()
	ctx := context.Background()

	job := models.NewJob("test job")
	if err := NewJobRepository(db).Create(ctx, job); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	file := models.NewFile(job.ID, "clip.mp4", "stored-clip.mp4", "video/mp4", 1024)
	if err := NewFileRepository(db).Create(ctx, file); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	return job, file
}
