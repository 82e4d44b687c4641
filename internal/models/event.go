package models

import (
	"time"

	"github.com/kdimtricp/arcwatch/internal/detect"
)

const (
	EventTypeFlash = string(detect.KindFlash)
	EventTypeSpark = string(detect.KindSpark)
)

// Event is a confirmed flash or spark, possibly covering several merged pulses.
type Event struct {
	ID           string      `json:"id"`
	FileID       string      `json:"file_id"`
	Type         string      `json:"type"`
	StartTimeSec float64     `json:"start_time_sec"`
	EndTimeSec   float64     `json:"end_time_sec"`
	PeakTimeSec  float64     `json:"peak_time_sec"`
	FrameIndex   int         `json:"frame_index"`
	Confidence   float64     `json:"confidence"`
	BBox         *detect.Box `json:"bbox,omitempty"`
	Sequence     int         `json:"sequence"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// EventFromState maps the merger's view of an event onto a row.
func EventFromState(fileID string, s detect.EventState) *Event {
	return &Event{
		ID:           s.ID,
		FileID:       fileID,
		Type:         string(s.Kind),
		StartTimeSec: s.StartSec,
		EndTimeSec:   s.EndSec,
		PeakTimeSec:  s.PeakSec,
		FrameIndex:   s.FrameIndex,
		Confidence:   s.Confidence,
		BBox:         s.Box,
		Sequence:     s.Sequence,
	}
}
