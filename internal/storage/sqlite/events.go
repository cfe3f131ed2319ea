package sqlite

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"skywarden/internal/models"
)

// EventRepository implements storage.EventRepository on SQLite.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates the repository over an opened DB.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append inserts one detection event. The write lock keeps the row
// atomic with respect to concurrent readers.
func (r *EventRepository) Append(event *models.DetectionEvent) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		INSERT INTO detection_events
			(id, timestamp, class, confidence, box_x, box_y, box_width, box_height,
			 image_path, alert_fired, channels_notified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID, event.Timestamp.UTC(), event.Class, event.Confidence,
		event.Box.X, event.Box.Y, event.Box.Width, event.Box.Height,
		event.ImagePath, event.AlertFired, strings.Join(event.ChannelsNotified, ","),
	)
	if err != nil {
		return errors.Wrap(err, "insert detection event")
	}
	return nil
}

// Query returns events matching the filter, newest first. Limit and
// Offset page the result; a zero Limit returns everything.
func (r *EventRepository) Query(filter models.EventFilter) ([]models.DetectionEvent, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query, args := buildWhere(`
		SELECT id, timestamp, class, confidence, box_x, box_y, box_width, box_height,
		       image_path, alert_fired, channels_notified
		FROM detection_events
	`, filter)

	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query detection events")
	}
	defer rows.Close()

	var events []models.DetectionEvent
	for rows.Next() {
		var ev models.DetectionEvent
		var channels string
		if err := rows.Scan(
			&ev.ID, &ev.Timestamp, &ev.Class, &ev.Confidence,
			&ev.Box.X, &ev.Box.Y, &ev.Box.Width, &ev.Box.Height,
			&ev.ImagePath, &ev.AlertFired, &channels,
		); err != nil {
			return nil, errors.Wrap(err, "scan detection event")
		}
		if channels != "" {
			ev.ChannelsNotified = strings.Split(channels, ",")
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Count returns the number of events matching the filter.
func (r *EventRepository) Count(filter models.EventFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query, args := buildWhere(`SELECT COUNT(*) FROM detection_events`, filter)

	var count int
	if err := r.db.Conn().QueryRow(query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count detection events")
	}
	return count, nil
}

// ImagePathsBefore lists non-empty image references of events older
// than cutoff.
func (r *EventRepository) ImagePathsBefore(cutoff time.Time) ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT image_path FROM detection_events
		WHERE timestamp < ? AND image_path != ''
	`, cutoff.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "query image paths")
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, errors.Wrap(err, "scan image path")
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// ClearImagePaths blanks image references of events older than cutoff
// and returns the number of rows touched. Safe to re-run.
func (r *EventRepository) ClearImagePaths(cutoff time.Time) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	res, err := r.db.Conn().Exec(`
		UPDATE detection_events SET image_path = ''
		WHERE timestamp < ? AND image_path != ''
	`, cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "clear image paths")
	}
	return res.RowsAffected()
}

// DeleteBefore removes event rows older than cutoff and returns the
// number deleted. Safe to re-run.
func (r *EventRepository) DeleteBefore(cutoff time.Time) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	res, err := r.db.Conn().Exec(`
		DELETE FROM detection_events WHERE timestamp < ?
	`, cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "delete detection events")
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (r *EventRepository) Close() error {
	return r.db.Close()
}

func buildWhere(base string, filter models.EventFilter) (string, []interface{}) {
	query := base + " WHERE 1=1"
	args := []interface{}{}

	if !filter.From.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		query += " AND timestamp < ?"
		args = append(args, filter.To.UTC())
	}
	if filter.Class != "" {
		query += " AND class = ?"
		args = append(args, filter.Class)
	}
	return query, args
}
