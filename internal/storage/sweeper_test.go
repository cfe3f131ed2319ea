package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"skywarden/internal/config"
	"skywarden/internal/models"
)

// memRepo is an in-memory EventRepository for sweeper tests.
type memRepo struct {
	events []models.DetectionEvent
}

func (m *memRepo) Append(ev *models.DetectionEvent) error {
	m.events = append(m.events, *ev)
	return nil
}

func (m *memRepo) Query(models.EventFilter) ([]models.DetectionEvent, error) {
	return m.events, nil
}

func (m *memRepo) Count(models.EventFilter) (int, error) {
	return len(m.events), nil
}

func (m *memRepo) ImagePathsBefore(cutoff time.Time) ([]string, error) {
	var paths []string
	for _, ev := range m.events {
		if ev.Timestamp.Before(cutoff) && ev.ImagePath != "" {
			paths = append(paths, ev.ImagePath)
		}
	}
	return paths, nil
}

func (m *memRepo) ClearImagePaths(cutoff time.Time) (int64, error) {
	var n int64
	for i := range m.events {
		if m.events[i].Timestamp.Before(cutoff) && m.events[i].ImagePath != "" {
			m.events[i].ImagePath = ""
			n++
		}
	}
	return n, nil
}

func (m *memRepo) DeleteBefore(cutoff time.Time) (int64, error) {
	kept := m.events[:0]
	var n int64
	for _, ev := range m.events {
		if ev.Timestamp.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, ev)
	}
	m.events = kept
	return n, nil
}

func (m *memRepo) Close() error { return nil }

func writeTestImage(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("jpeg bytes"), 0644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func sweepFixture(t *testing.T) (*Sweeper, *memRepo, string) {
	t.Helper()
	dir := t.TempDir()
	images, err := NewImageStore(dir, 10<<20)
	if err != nil {
		t.Fatalf("NewImageStore: %v", err)
	}
	repo := &memRepo{}
	cfg := config.StorageConfig{
		DetectionImageRetentionDays: 7,
		LogRetentionDays:            30,
	}
	return NewSweeper(repo, images, cfg), repo, dir
}

func TestSweeper_TwoPhaseRetention(t *testing.T) {
	sweeper, repo, dir := sweepFixture(t)
	now := time.Now()

	// Ancient: past both windows. Middle: past image retention only.
	// Fresh: inside both.
	ancientImg := writeTestImage(t, dir, "ancient.jpg")
	middleImg := writeTestImage(t, dir, "middle.jpg")
	freshImg := writeTestImage(t, dir, "fresh.jpg")

	repo.events = []models.DetectionEvent{
		{ID: "ancient", Timestamp: now.AddDate(0, 0, -40), ImagePath: ancientImg},
		{ID: "middle", Timestamp: now.AddDate(0, 0, -10), ImagePath: middleImg},
		{ID: "fresh", Timestamp: now.AddDate(0, 0, -1), ImagePath: freshImg},
	}

	stats, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if stats.ImagesDeleted != 2 {
		t.Errorf("ImagesDeleted = %d, want 2", stats.ImagesDeleted)
	}
	if stats.EventsDeleted != 1 {
		t.Errorf("EventsDeleted = %d, want 1", stats.EventsDeleted)
	}

	if _, err := os.Stat(ancientImg); !os.IsNotExist(err) {
		t.Error("ancient image should be deleted")
	}
	if _, err := os.Stat(middleImg); !os.IsNotExist(err) {
		t.Error("middle image should be deleted")
	}
	if _, err := os.Stat(freshImg); err != nil {
		t.Errorf("fresh image should survive: %v", err)
	}

	if len(repo.events) != 2 {
		t.Fatalf("expected 2 event rows to survive, got %d", len(repo.events))
	}
	for _, ev := range repo.events {
		switch ev.ID {
		case "middle":
			if ev.ImagePath != "" {
				t.Error("middle event should have its image reference cleared")
			}
		case "fresh":
			if ev.ImagePath != freshImg {
				t.Errorf("fresh event reference changed: %q", ev.ImagePath)
			}
		default:
			t.Errorf("unexpected surviving event %q", ev.ID)
		}
	}
}

func TestSweeper_Idempotent(t *testing.T) {
	sweeper, repo, dir := sweepFixture(t)
	now := time.Now()

	img := writeTestImage(t, dir, "old.jpg")
	repo.events = []models.DetectionEvent{
		{ID: "old", Timestamp: now.AddDate(0, 0, -10), ImagePath: img},
	}

	if _, err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("first sweep: %v", err)
	}

	stats, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if stats.ImagesDeleted != 0 || stats.EventsDeleted != 0 {
		t.Errorf("second sweep should be a no-op, got %+v", stats)
	}
}

func TestSweeper_ToleratesMissingFiles(t *testing.T) {
	sweeper, repo, dir := sweepFixture(t)
	now := time.Now()

	// Reference points at a file that was already removed out of band.
	repo.events = []models.DetectionEvent{
		{ID: "gone", Timestamp: now.AddDate(0, 0, -10), ImagePath: filepath.Join(dir, "missing.jpg")},
	}

	if _, err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep over a missing file should not fail: %v", err)
	}
	if repo.events[0].ImagePath != "" {
		t.Error("dangling reference should still be cleared")
	}
}

func TestImageStore_SaveAndRemove(t *testing.T) {
	dir := t.TempDir()
	store, err := NewImageStore(dir, 10<<20)
	if err != nil {
		t.Fatalf("NewImageStore: %v", err)
	}

	ts := time.Date(2026, 8, 20, 14, 30, 5, 0, time.UTC)
	path, err := store.Save("0123456789abcdef", ts, "hawk", []byte("jpeg bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := filepath.Join(dir, "2026-08-20_14-30-05_hawk_01234567.jpg")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("saved image missing: %v", err)
	}

	if err := store.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Remove(path); err != nil {
		t.Errorf("removing an already-deleted image should succeed: %v", err)
	}
	if err := store.Remove(""); err != nil {
		t.Errorf("removing an empty path should succeed: %v", err)
	}
}
