package models

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is a stored still image illustrating an event.
type Snapshot struct {
	ID         string    `json:"id"`
	FileID     string    `json:"file_id"`
	EventID    string    `json:"event_id"`
	ImagePath  string    `json:"image_path"`
	TimeSec    float64   `json:"time_sec"`
	FrameIndex int       `json:"frame_index"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Confidence float64   `json:"confidence"`
	Sequence   int       `json:"sequence"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewSnapshot(fileID, eventID string) *Snapshot {
	return &Snapshot{
		ID:        uuid.New().String(),
		FileID:    fileID,
		EventID:   eventID,
		CreatedAt: time.Now().UTC(),
	}
}
