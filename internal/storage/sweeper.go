package storage

import (
	"context"
	"log/slog"
	"time"

	"skywarden/internal/config"
)

// SweepStats summarizes one retention sweep.
type SweepStats struct {
	ImagesDeleted int64 `json:"images_deleted"`
	EventsDeleted int64 `json:"events_deleted"`
}

// Sweeper deletes detection images past the image retention window and
// event rows past the log retention window. The two phases are
// individually idempotent, so a crash between them leaves at worst an
// event whose image is already gone, which the next run cleans up.
type Sweeper struct {
	repo   EventRepository
	images *ImageStore
	cfg    config.StorageConfig
}

// NewSweeper wires a sweeper over the repository and image store.
func NewSweeper(repo EventRepository, images *ImageStore, cfg config.StorageConfig) *Sweeper {
	return &Sweeper{repo: repo, images: images, cfg: cfg}
}

// Sweep runs both retention phases once. Re-running on an already
// swept store deletes nothing and returns no error.
func (s *Sweeper) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	now := time.Now()

	// Phase 1: images older than the image retention window. Files go
	// first, references after, so an interrupted sweep never leaves a
	// reference pointing at a deleted file for longer than one run.
	imageCutoff := now.AddDate(0, 0, -s.cfg.DetectionImageRetentionDays)
	paths, err := s.repo.ImagePathsBefore(imageCutoff)
	if err != nil {
		return stats, err
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := s.images.Remove(p); err != nil {
			slog.Warn("sweep could not remove image", "path", p, "error", err)
			continue
		}
		stats.ImagesDeleted++
	}
	if _, err := s.repo.ClearImagePaths(imageCutoff); err != nil {
		return stats, err
	}

	// Phase 2: event rows older than the log retention window, taking
	// any still-referenced files with them.
	eventCutoff := now.AddDate(0, 0, -s.cfg.LogRetentionDays)
	remaining, err := s.repo.ImagePathsBefore(eventCutoff)
	if err != nil {
		return stats, err
	}
	for _, p := range remaining {
		if err := s.images.Remove(p); err != nil {
			slog.Warn("sweep could not remove image", "path", p, "error", err)
			continue
		}
		stats.ImagesDeleted++
	}
	deleted, err := s.repo.DeleteBefore(eventCutoff)
	if err != nil {
		return stats, err
	}
	stats.EventsDeleted = deleted

	if stats.ImagesDeleted > 0 || stats.EventsDeleted > 0 {
		slog.Info("retention sweep complete",
			"images_deleted", stats.ImagesDeleted,
			"events_deleted", stats.EventsDeleted,
		)
	}
	return stats, nil
}

// Run sweeps on a fixed interval until the context is cancelled. One
// sweep runs immediately at startup to catch backlog from downtime.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		slog.Error("retention sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				slog.Error("retention sweep failed", "error", err)
			}
		}
	}
}
