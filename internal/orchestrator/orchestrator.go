// Package orchestrator runs the detection-to-alert loop: acquire a
// frame, run inference, persist qualifying detections and hand
// eligible ones to the alert coordinator, while keeping the camera
// session alive across failures.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"skywarden/internal/alert"
	"skywarden/internal/camera"
	"skywarden/internal/config"
	"skywarden/internal/detect"
	"skywarden/internal/models"
	"skywarden/internal/snapshot"
	"skywarden/internal/storage"
)

// State is the orchestrator lifecycle state.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateDegraded
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDegraded:
		return "degraded"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Orchestrator drives one camera through the detection pipeline.
type Orchestrator struct {
	cfg         *config.Config
	source      *camera.Source
	adapter     *detect.Adapter
	coordinator *alert.Coordinator
	repo        storage.EventRepository
	images      *storage.ImageStore
	publisher   *snapshot.Publisher

	state   atomic.Int32
	started time.Time

	mu           sync.Mutex
	ticks        uint64
	frameErrors  uint64
	detections   uint64
	eventsStored uint64
	alertsFired  uint64
	lastTickAt   time.Time
	lastEventAt  time.Time
}

// New wires the pipeline components together.
func New(
	cfg *config.Config,
	source *camera.Source,
	adapter *detect.Adapter,
	coordinator *alert.Coordinator,
	repo storage.EventRepository,
	images *storage.ImageStore,
	publisher *snapshot.Publisher,
) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		source:      source,
		adapter:     adapter,
		coordinator: coordinator,
		repo:        repo,
		images:      images,
		publisher:   publisher,
	}
}

// Run executes the loop until ctx is cancelled. Failing to open any
// configured camera source at startup is the one mid-pipeline fatal;
// everything after that degrades instead of exiting.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.started = time.Now()
	o.setState(StateStarting)

	if err := o.source.Open(ctx); err != nil {
		o.setState(StateStopped)
		return errors.Wrap(err, "open camera at startup")
	}
	o.setState(StateRunning)
	o.publisher.SetCameraHealth(true)

	slog.Info("detection loop started",
		"source", o.source.ActiveSource(),
		"interval", o.cfg.System.DetectionInterval,
	)

	// A ticker drops missed ticks, so an overrunning tick makes the
	// next one start immediately instead of compounding delay.
	ticker := time.NewTicker(o.cfg.System.DetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.setState(StateStopping)
			o.source.Close()
			o.setState(StateStopped)
			slog.Info("detection loop stopped")
			return nil
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context) {
	o.mu.Lock()
	o.ticks++
	o.lastTickAt = time.Now()
	o.mu.Unlock()

	frame, err := o.source.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, camera.ErrSessionDead) {
			o.recoverCamera(ctx)
			return
		}
		o.mu.Lock()
		o.frameErrors++
		o.mu.Unlock()
		slog.Warn("frame read failed", "error", err)
		return
	}

	if o.State() == StateDegraded {
		// A read succeeded on a session reopened elsewhere; reflect it.
		o.setState(StateRunning)
		o.publisher.SetCameraHealth(true)
	}

	o.publisher.Observe(frame)

	detections, err := o.adapter.Detect(ctx, frame)
	if err != nil {
		// One bad frame or a model hiccup is transient; the loop
		// carries on with the next tick.
		slog.Warn("inference failed", "frame_seq", frame.Seq, "error", err)
		return
	}
	if len(detections) == 0 {
		return
	}

	o.mu.Lock()
	o.detections += uint64(len(detections))
	o.mu.Unlock()

	for _, det := range detections {
		o.handleDetection(ctx, frame, det, detections)
	}
}

// handleDetection promotes one qualifying detection to a durable
// event, dispatches it if the rate limiter allows, and persists it
// regardless of the dispatch outcome.
func (o *Orchestrator) handleDetection(ctx context.Context, frame models.Frame, det models.Detection, all []models.Detection) {
	event := models.DetectionEvent{
		ID:         uuid.NewString(),
		Timestamp:  frame.Timestamp,
		Class:      det.Class,
		Confidence: det.Confidence,
		Box:        det.Box,
	}

	image := frame.Data
	if annotated, err := detect.Annotate(frame.Data, all); err == nil {
		image = annotated
	} else {
		slog.Warn("frame annotation failed, storing raw frame", "error", err)
	}

	// Image storage failure downgrades the event to metadata-only;
	// it never blocks alerting.
	path, err := o.images.Save(event.ID, event.Timestamp, event.Class, image)
	if err != nil {
		slog.Error("detection image store failed", "event_id", event.ID, "error", err)
	} else {
		event.ImagePath = path
	}

	results, decision := o.coordinator.Dispatch(ctx, event, image)
	event.AlertFired = decision.Eligible
	for _, r := range results {
		if r.Success {
			event.ChannelsNotified = append(event.ChannelsNotified, r.Channel)
		}
	}

	if decision.Eligible {
		o.mu.Lock()
		o.alertsFired++
		o.mu.Unlock()
	}

	// Losing a history row is less harmful than stopping alerting, so
	// a store failure is logged and the loop continues.
	if err := o.repo.Append(&event); err != nil {
		slog.Error("event persist failed", "event_id", event.ID, "error", err)
		return
	}

	o.mu.Lock()
	o.eventsStored++
	o.lastEventAt = event.Timestamp
	o.mu.Unlock()

	slog.Info("detection event recorded",
		"event_id", event.ID,
		"class", event.Class,
		"confidence", event.Confidence,
		"alert_fired", event.AlertFired,
		"channels", event.ChannelsNotified,
	)
}

// recoverCamera runs one bounded reconnect attempt. Failure leaves the
// orchestrator degraded but alive; each subsequent tick tries again
// until the camera returns or shutdown is requested.
func (o *Orchestrator) recoverCamera(ctx context.Context) {
	if o.State() != StateDegraded {
		o.setState(StateDegraded)
		o.publisher.SetCameraHealth(false)
		slog.Warn("camera session dead, entering degraded state")
	}

	if err := o.source.Reopen(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("camera still unavailable", "error", err)
		return
	}

	o.setState(StateRunning)
	o.publisher.SetCameraHealth(true)
	slog.Info("camera session recovered", "source", o.source.ActiveSource())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Status is a read-only snapshot for the status surface.
type Status struct {
	State         string       `json:"state"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	CameraSource  string       `json:"camera_source"`
	Ticks         uint64       `json:"ticks"`
	FrameErrors   uint64       `json:"frame_errors"`
	Detections    uint64       `json:"detections"`
	EventsStored  uint64       `json:"events_stored"`
	AlertsFired   uint64       `json:"alerts_fired"`
	LastTickAt    time.Time    `json:"last_tick_at,omitempty"`
	LastEventAt   time.Time    `json:"last_event_at,omitempty"`
	RateLimiter   alert.Status `json:"rate_limiter"`
}

// Status reports loop statistics as an immutable value snapshot, so
// the status surface never holds pipeline locks across a response.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	s := Status{
		State:         o.State().String(),
		Ticks:         o.ticks,
		FrameErrors:   o.frameErrors,
		Detections:    o.detections,
		EventsStored:  o.eventsStored,
		AlertsFired:   o.alertsFired,
		LastTickAt:    o.lastTickAt,
		LastEventAt:   o.lastEventAt,
	}
	o.mu.Unlock()

	if !o.started.IsZero() {
		s.UptimeSeconds = int64(time.Since(o.started).Seconds())
	}
	s.CameraSource = o.source.ActiveSource()
	s.RateLimiter = o.coordinator.LimiterStatus()
	return s
}
