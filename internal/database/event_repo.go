package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/kdimtricp/arcwatch/internal/detect"
	"github.com/kdimtricp/arcwatch/internal/models"
)

type EventRepository struct {
	db *DB
}

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, file_id, type, start_time_sec, end_time_sec, peak_time_sec, frame_index,
	confidence, bbox_json, sequence, created_at, updated_at`

func (r *EventRepository) Create(ctx context.Context, ev *models.Event) error {
	bbox, err := encodeBox(ev.BBox)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}
	ev.UpdatedAt = now

	query := `INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = r.db.execContext(ctx, query,
		ev.ID, ev.FileID, ev.Type, ev.StartTimeSec, ev.EndTimeSec, ev.PeakTimeSec, ev.FrameIndex,
		ev.Confidence, bbox, ev.Sequence, ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Update stores the mutable part of a merged event.
func (r *EventRepository) Update(ctx context.Context, ev *models.Event) error {
	bbox, err := encodeBox(ev.BBox)
	if err != nil {
		return err
	}
	ev.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE events
		SET end_time_sec = $2, peak_time_sec = $3, frame_index = $4, confidence = $5, bbox_json = $6, updated_at = $7
		WHERE id = $1`
	res, err := r.db.execContext(ctx, query,
		ev.ID, ev.EndTimeSec, ev.PeakTimeSec, ev.FrameIndex, ev.Confidence, bbox, ev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("event %s: %w", ev.ID, ErrNotFound)
	}
	return nil
}

func (r *EventRepository) Get(ctx context.Context, id string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	ev, err := scanEvent(r.db.queryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "event")
	}
	return ev, nil
}

func (r *EventRepository) ListByFile(ctx context.Context, fileID string) ([]*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE file_id = $1 ORDER BY sequence`
	rows, err := r.db.queryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []*models.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MaxSequence returns the highest event sequence of a file, 0 if none.
func (r *EventRepository) MaxSequence(ctx context.Context, fileID string) (int, error) {
	var seq int
	err := r.db.queryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM events WHERE file_id = $1`, fileID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to get max event sequence: %w", err)
	}
	return seq, nil
}

func (r *EventRepository) DeleteByFile(ctx context.Context, fileID string) error {
	if _, err := r.db.execContext(ctx, `DELETE FROM events WHERE file_id = $1`, fileID); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}

func encodeBox(b *detect.Box) (sql.NullString, error) {
	if b == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal bbox: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func scanEvent(row rowScanner) (*models.Event, error) {
	ev := &models.Event{}
	var bbox sql.NullString
	err := row.Scan(&ev.ID, &ev.FileID, &ev.Type, &ev.StartTimeSec, &ev.EndTimeSec, &ev.PeakTimeSec,
		&ev.FrameIndex, &ev.Confidence, &bbox, &ev.Sequence, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if bbox.Valid && bbox.String != "" {
		var b detect.Box
		if err := json.Unmarshal([]byte(bbox.String), &b); err == nil {
			ev.BBox = &b
		}
	}
	return ev, nil
}
