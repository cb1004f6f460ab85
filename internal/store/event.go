package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AlertEvent is a persisted drowsiness alert.
type AlertEvent struct {
	ID          string        `json:"id"`
	WindowStart time.Time     `json:"window_start"`
	TriggeredAt time.Time     `json:"triggered_at"`
	AvgEAR      float64       `json:"avg_ear"`
	Model       string        `json:"model"`
	Closed      time.Duration `json:"-"`
}

// EventRepository provides access to alert events.
type EventRepository struct {
	db *sql.DB
}

// Events returns the alert event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Create inserts e, assigning a new ID when e.ID is empty.
func (r *EventRepository) Create(e *AlertEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	_, err := r.db.Exec(
		`INSERT INTO alert_events (id, window_start_ms, triggered_at_ms, avg_ear, model)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.WindowStart.UnixMilli(), e.TriggeredAt.UnixMilli(), e.AvgEAR, e.Model,
	)
	if err != nil {
		return err
	}
	e.Closed = e.TriggeredAt.Sub(e.WindowStart)
	return nil
}

// GetByID retrieves an event by its ID.
func (r *EventRepository) GetByID(id string) (*AlertEvent, error) {
	row := r.db.QueryRow(
		`SELECT id, window_start_ms, triggered_at_ms, avg_ear, model
		 FROM alert_events WHERE id = ?`,
		id,
	)

	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// List returns up to limit events, newest first. A limit of 0 or less returns all events.
func (r *EventRepository) List(limit int) ([]*AlertEvent, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, window_start_ms, triggered_at_ms, avg_ear, model
		 FROM alert_events ORDER BY triggered_at_ms DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*AlertEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// Count returns the number of stored events.
func (r *EventRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM alert_events`).Scan(&n)
	return n, err
}

// DeleteBefore removes events triggered before t and returns how many were removed.
func (r *EventRepository) DeleteBefore(t time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM alert_events WHERE triggered_at_ms < ?`, t.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*AlertEvent, error) {
	e := &AlertEvent{}
	var startMs, triggeredMs int64

	if err := row.Scan(&e.ID, &startMs, &triggeredMs, &e.AvgEAR, &e.Model); err != nil {
		return nil, err
	}

	e.WindowStart = time.UnixMilli(startMs)
	e.TriggeredAt = time.UnixMilli(triggeredMs)
	e.Closed = e.TriggeredAt.Sub(e.WindowStart)
	return e, nil
}
