package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	FileStatusPending    = "pending"
	FileStatusProcessing = "processing"
	FileStatusDone       = "done"
	FileStatusFailed     = "failed"
)

// File is one uploaded video belonging to a job.
type File struct {
	ID           string     `json:"id"`
	JobID        string     `json:"job_id"`
	OriginalName string     `json:"original_name"`
	StoredName   string     `json:"stored_name"`
	ContentType  string     `json:"content_type"`
	Size         int64      `json:"size"`
	Status       string     `json:"status"`
	Message      string     `json:"message,omitempty"`
	FPS          float64    `json:"fps"`
	FrameCount   int        `json:"frame_count"`
	DurationSec  float64    `json:"duration_sec"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

func NewFile(jobID, originalName, storedName, contentType string, size int64) *File {
	return &File{
		ID:           uuid.New().String(),
		JobID:        jobID,
		OriginalName: originalName,
		StoredName:   storedName,
		ContentType:  contentType,
		Size:         size,
		Status:       FileStatusPending,
		UploadedAt:   time.Now().UTC(),
	}
}

// Terminal reports whether processing of the file has finished one way or another.
func (f *File) Terminal() bool {
	return f.Status == FileStatusDone || f.Status == FileStatusFailed
}
