// Package snapshot publishes the latest frame and a health record to a
// well-known path for external consumers. Publishing runs on its own
// cadence so a slow inference pass never stalls the externally visible
// "is the camera alive" signal.
package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"skywarden/internal/models"
)

// Publisher overwrites the snapshot image and its JSON sidecar
// atomically on every cycle. Consumers treat the record as stale once
// captured_at exceeds their threshold; the publish interval must stay
// well under it.
type Publisher struct {
	imagePath string
	metaPath  string
	interval  time.Duration

	mu      sync.Mutex
	latest  models.Frame
	healthy bool
	hasNew  bool
}

// New creates a Publisher writing to imagePath, with the JSON record
// alongside it.
func New(imagePath string, interval time.Duration) (*Publisher, error) {
	if err := os.MkdirAll(filepath.Dir(imagePath), 0755); err != nil {
		return nil, errors.Wrap(err, "create snapshot directory")
	}
	meta := strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".json"
	return &Publisher{
		imagePath: imagePath,
		metaPath:  meta,
		interval:  interval,
	}, nil
}

// Observe records the most recent frame. Called by the orchestrator on
// every successful tick; cheap enough to never delay the loop.
func (p *Publisher) Observe(frame models.Frame) {
	p.mu.Lock()
	p.latest = frame
	p.healthy = true
	p.hasNew = true
	p.mu.Unlock()
}

// SetCameraHealth flips the externally visible camera-health flag.
// The next publish cycle writes it out even without a fresh frame.
func (p *Publisher) SetCameraHealth(healthy bool) {
	p.mu.Lock()
	p.healthy = healthy
	p.hasNew = true
	p.mu.Unlock()
}

// Run publishes on the configured interval until the context is done.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Publish(); err != nil {
				slog.Warn("snapshot publish failed", "error", err)
			}
		}
	}
}

// Publish writes the current frame and record. Both files are written
// to a temp file and renamed into place, so a reader never observes a
// half-written snapshot.
func (p *Publisher) Publish() error {
	p.mu.Lock()
	frame := p.latest
	healthy := p.healthy
	fresh := p.hasNew
	p.hasNew = false
	p.mu.Unlock()

	if !fresh {
		// Nothing changed since the last publish; rewriting the same
		// record would only disguise a stalled pipeline as a live one.
		return nil
	}

	if len(frame.Data) > 0 {
		if err := atomicWrite(p.imagePath, frame.Data); err != nil {
			return errors.Wrap(err, "publish snapshot image")
		}
	}

	record := models.SnapshotRecord{
		CapturedAt:    frame.Timestamp,
		CameraHealthy: healthy,
		FrameSeq:      frame.Seq,
		Width:         frame.Width,
		Height:        frame.Height,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot record")
	}
	if err := atomicWrite(p.metaPath, data); err != nil {
		return errors.Wrap(err, "publish snapshot record")
	}
	return nil
}

// ReadRecord loads the current snapshot record, for the status surface
// and external consumers that share this code.
func ReadRecord(imagePath string) (models.SnapshotRecord, error) {
	meta := strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".json"
	data, err := os.ReadFile(meta)
	if err != nil {
		return models.SnapshotRecord{}, errors.Wrap(err, "read snapshot record")
	}
	var record models.SnapshotRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return models.SnapshotRecord{}, errors.Wrap(err, "parse snapshot record")
	}
	return record, nil
}

// atomicWrite writes data to a temp file in the target directory and
// renames it over path. Rename within one filesystem is atomic.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "rename into place")
	}
	return nil
}
