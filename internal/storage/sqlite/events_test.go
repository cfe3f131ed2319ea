package sqlite

import (
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"skywarden/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleEvent(id string, ts time.Time) *models.DetectionEvent {
	return &models.DetectionEvent{
		ID:               id,
		Timestamp:        ts,
		Class:            "hawk",
		Confidence:       0.87,
		Box:              models.Box{X: 120, Y: 44, Width: 96, Height: 72},
		ImagePath:        "/data/images/" + id + ".jpg",
		AlertFired:       true,
		ChannelsNotified: []string{"email", "mqtt"},
	}
}

func TestEventRepository_AppendQueryRoundTrip(t *testing.T) {
	repo := NewEventRepository(openTestDB(t))

	ts := time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC)
	want := sampleEvent("evt-1", ts)
	if err := repo.Append(want); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := repo.Query(models.EventFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}

	ev := got[0]
	if ev.ID != want.ID || ev.Class != want.Class || ev.Confidence != want.Confidence {
		t.Errorf("fields mangled on round trip: %+v", ev)
	}
	if !ev.Timestamp.Equal(want.Timestamp) {
		t.Errorf("timestamp = %v, want %v", ev.Timestamp, want.Timestamp)
	}
	if ev.Box != want.Box {
		t.Errorf("box = %+v, want %+v", ev.Box, want.Box)
	}
	if ev.ImagePath != want.ImagePath {
		t.Errorf("image path = %q, want %q", ev.ImagePath, want.ImagePath)
	}
	if !ev.AlertFired {
		t.Error("alert_fired lost on round trip")
	}
	if !reflect.DeepEqual(ev.ChannelsNotified, want.ChannelsNotified) {
		t.Errorf("channels = %v, want %v", ev.ChannelsNotified, want.ChannelsNotified)
	}
}

func TestEventRepository_QueryFilters(t *testing.T) {
	repo := NewEventRepository(openTestDB(t))

	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	classes := []string{"hawk", "eagle", "hawk", "owl"}
	for i, class := range classes {
		ev := sampleEvent(fmt.Sprintf("evt-%d", i), base.Add(time.Duration(i)*time.Hour))
		ev.Class = class
		if err := repo.Append(ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	hawks, err := repo.Query(models.EventFilter{Class: "hawk"})
	if err != nil {
		t.Fatalf("Query by class: %v", err)
	}
	if len(hawks) != 2 {
		t.Errorf("expected 2 hawk events, got %d", len(hawks))
	}

	// Half-open time range [base+1h, base+3h) should hold two events.
	ranged, err := repo.Query(models.EventFilter{
		From: base.Add(time.Hour),
		To:   base.Add(3 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Query by range: %v", err)
	}
	if len(ranged) != 2 {
		t.Errorf("expected 2 events in range, got %d", len(ranged))
	}

	n, err := repo.Count(models.EventFilter{Class: "hawk"})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestEventRepository_QueryOrdersNewestFirstAndPages(t *testing.T) {
	repo := NewEventRepository(openTestDB(t))

	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ev := sampleEvent(fmt.Sprintf("evt-%d", i), base.Add(time.Duration(i)*time.Minute))
		if err := repo.Append(ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	page, err := repo.Query(models.EventFilter{Limit: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page) != 2 || page[0].ID != "evt-4" || page[1].ID != "evt-3" {
		t.Fatalf("first page wrong: %+v", page)
	}

	page, err = repo.Query(models.EventFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page) != 2 || page[0].ID != "evt-2" || page[1].ID != "evt-1" {
		t.Fatalf("second page wrong: %+v", page)
	}
}

func TestEventRepository_RetentionPrimitives(t *testing.T) {
	repo := NewEventRepository(openTestDB(t))

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	old := sampleEvent("evt-old", base)
	recent := sampleEvent("evt-new", base.Add(48*time.Hour))
	metaOnly := sampleEvent("evt-meta", base)
	metaOnly.ImagePath = ""
	for _, ev := range []*models.DetectionEvent{old, recent, metaOnly} {
		if err := repo.Append(ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	cutoff := base.Add(24 * time.Hour)

	paths, err := repo.ImagePathsBefore(cutoff)
	if err != nil {
		t.Fatalf("ImagePathsBefore: %v", err)
	}
	if len(paths) != 1 || paths[0] != old.ImagePath {
		t.Fatalf("expected only the old event's image path, got %v", paths)
	}

	cleared, err := repo.ClearImagePaths(cutoff)
	if err != nil {
		t.Fatalf("ClearImagePaths: %v", err)
	}
	if cleared != 1 {
		t.Errorf("cleared %d rows, want 1", cleared)
	}

	// Re-running is a no-op.
	cleared, err = repo.ClearImagePaths(cutoff)
	if err != nil {
		t.Fatalf("ClearImagePaths again: %v", err)
	}
	if cleared != 0 {
		t.Errorf("second clear touched %d rows, want 0", cleared)
	}

	deleted, err := repo.DeleteBefore(cutoff)
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted %d rows, want 2", deleted)
	}

	remaining, err := repo.Query(models.EventFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != "evt-new" {
		t.Fatalf("expected only the recent event to survive, got %+v", remaining)
	}
}

func TestEventRepository_ConcurrentAppendsAndQueries(t *testing.T) {
	repo := NewEventRepository(openTestDB(t))
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			errs <- repo.Append(sampleEvent(fmt.Sprintf("evt-%d", i), base.Add(time.Duration(i)*time.Second)))
		}(i)
		go func() {
			defer wg.Done()
			_, err := repo.Query(models.EventFilter{Limit: 5})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent access: %v", err)
		}
	}

	n, err := repo.Count(models.EventFilter{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 20 {
		t.Errorf("Count = %d, want 20", n)
	}
}
