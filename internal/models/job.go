package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusOpen     = "open"
	JobStatusRunning  = "running"
	JobStatusFinished = "finished"
)

type Job struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Status        string    `json:"status"`
	TotalFiles    int       `json:"total_files"`
	FinishedFiles int       `json:"finished_files"`
	FailedFiles   int       `json:"failed_files"`
	Progress      float64   `json:"progress"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NewJob(name string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New().String(),
		Name:      name,
		Status:    JobStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobStatusFor derives a job status from its file counts.
func JobStatusFor(total, finished, failed int) string {
	switch {
	case total == 0:
		return JobStatusOpen
	case finished+failed >= total:
		return JobStatusFinished
	default:
		return JobStatusRunning
	}
}
