// Package storage persists detection events and their images, and
// sweeps expired records on a retention schedule. Event persistence
// and alert dispatch are independent failure domains: a store error
// never suppresses notification and vice versa.
package storage

import (
	"time"

	"skywarden/internal/models"
)

// EventRepository is the durable store of detection events. Append is
// safe to call while other goroutines Query.
type EventRepository interface {
	Append(event *models.DetectionEvent) error
	Query(filter models.EventFilter) ([]models.DetectionEvent, error)
	Count(filter models.EventFilter) (int, error)

	// ImagePathsBefore lists stored image references for events older
	// than cutoff; ClearImagePaths drops the references after the
	// files are gone. DeleteBefore removes whole event rows.
	ImagePathsBefore(cutoff time.Time) ([]string, error)
	ClearImagePaths(cutoff time.Time) (int64, error)
	DeleteBefore(cutoff time.Time) (int64, error)

	Close() error
}
