package camera

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"skywarden/internal/config"
	"skywarden/internal/models"
)

type fakeDevice struct {
	mu     sync.Mutex
	script []error // per-read outcome, nil means success
	idx    int
	delay  time.Duration
	closed bool
}

func (d *fakeDevice) Read() (models.Frame, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if d.idx < len(d.script) {
		err = d.script[d.idx]
		d.idx++
	}
	if err != nil {
		return models.Frame{}, err
	}
	return models.Frame{Timestamp: time.Now(), Width: 640, Height: 480, Data: []byte("jpeg")}, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

type fakeBackend struct {
	mu      sync.Mutex
	devices map[string]*fakeDevice // missing or nil entry fails to open
	opened  []string
}

func (b *fakeBackend) Open(source string) (Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = append(b.opened, source)
	dev := b.devices[source]
	if dev == nil {
		return nil, errors.New("no such device")
	}
	return dev, nil
}

func (b *fakeBackend) setDevice(source string, dev *fakeDevice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[source] = dev
}

func testCameraConfig() config.CameraConfig {
	return config.CameraConfig{
		Source:                 "rtsp://primary",
		FallbackSources:        []string{"/dev/video0", "/dev/video1"},
		ReadTimeout:            200 * time.Millisecond,
		MaxConsecutiveFailures: 3,
		ReconnectAttempts:      2,
		ReconnectBaseDelay:     time.Millisecond,
		ReconnectMaxDelay:      4 * time.Millisecond,
	}
}

func TestSource_OpenFallsBackInOrder(t *testing.T) {
	backend := &fakeBackend{devices: map[string]*fakeDevice{
		"/dev/video1": {},
	}}
	s := New(testCameraConfig(), backend)

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := s.ActiveSource(); got != "/dev/video1" {
		t.Errorf("active source = %q, want %q", got, "/dev/video1")
	}

	want := []string{"rtsp://primary", "/dev/video0", "/dev/video1"}
	if !reflect.DeepEqual(backend.opened, want) {
		t.Errorf("open order = %v, want %v", backend.opened, want)
	}
}

func TestSource_OpenFailsWhenAllSourcesFail(t *testing.T) {
	backend := &fakeBackend{devices: map[string]*fakeDevice{}}
	s := New(testCameraConfig(), backend)

	if err := s.Open(context.Background()); !errors.Is(err, ErrOpenFailed) {
		t.Fatalf("Open = %v, want ErrOpenFailed", err)
	}
}

func TestSource_NextAssignsMonotonicSequence(t *testing.T) {
	backend := &fakeBackend{devices: map[string]*fakeDevice{
		"rtsp://primary": {},
	}}
	s := New(testCameraConfig(), backend)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	var last uint64
	for i := 0; i < 3; i++ {
		frame, err := s.Next(context.Background())
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if frame.Seq != last+1 {
			t.Errorf("frame seq = %d, want %d", frame.Seq, last+1)
		}
		last = frame.Seq
	}
}

func TestSource_ConsecutiveFailuresKillSession(t *testing.T) {
	readErr := errors.New("device disconnected")
	backend := &fakeBackend{devices: map[string]*fakeDevice{
		"rtsp://primary": {script: []error{readErr, readErr, readErr}},
	}}
	s := New(testCameraConfig(), backend)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// First two failures are survivable read errors.
	for i := 0; i < 2; i++ {
		_, err := s.Next(context.Background())
		if err == nil || errors.Is(err, ErrSessionDead) {
			t.Fatalf("read %d: err = %v, want plain read error", i, err)
		}
	}

	// Third consecutive failure exhausts the budget.
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrSessionDead) {
		t.Fatalf("third failure: err = %v, want ErrSessionDead", err)
	}

	// The session stays dead until reopened; no further device reads.
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrSessionDead) {
		t.Fatalf("after death: err = %v, want ErrSessionDead", err)
	}
}

func TestSource_SuccessResetsFailureCount(t *testing.T) {
	readErr := errors.New("transient glitch")
	backend := &fakeBackend{devices: map[string]*fakeDevice{
		"rtsp://primary": {script: []error{readErr, nil, readErr, readErr}},
	}}
	s := New(testCameraConfig(), backend)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := s.Next(context.Background()); err == nil {
		t.Fatal("first read should fail")
	}
	if _, err := s.Next(context.Background()); err != nil {
		t.Fatalf("second read should succeed: %v", err)
	}

	// Two more failures after a success should not kill the session
	// yet, as the counter was reset.
	for i := 0; i < 2; i++ {
		_, err := s.Next(context.Background())
		if err == nil || errors.Is(err, ErrSessionDead) {
			t.Fatalf("post-reset failure %d: err = %v, want plain read error", i, err)
		}
	}
}

func TestSource_ReadTimeoutCountsAsFailure(t *testing.T) {
	backend := &fakeBackend{devices: map[string]*fakeDevice{
		"rtsp://primary": {delay: time.Second},
	}}
	cfg := testCameraConfig()
	cfg.ReadTimeout = 20 * time.Millisecond
	s := New(cfg, backend)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	start := time.Now()
	_, err := s.Next(context.Background())
	if err == nil || errors.Is(err, ErrSessionDead) {
		t.Fatalf("err = %v, want timeout read error", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Next blocked %v, should honor the read timeout", elapsed)
	}
}

func TestSource_ReopenRecoversSession(t *testing.T) {
	readErr := errors.New("device disconnected")
	dead := &fakeDevice{script: []error{readErr, readErr, readErr}}
	backend := &fakeBackend{devices: map[string]*fakeDevice{
		"rtsp://primary": dead,
	}}
	s := New(testCameraConfig(), backend)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := 0; i < 3; i++ {
		s.Next(context.Background())
	}
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrSessionDead) {
		t.Fatal("session should be dead before reopen")
	}

	backend.setDevice("rtsp://primary", &fakeDevice{})
	if err := s.Reopen(context.Background()); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if !dead.closed {
		t.Error("reopen should close the dead device")
	}

	if _, err := s.Next(context.Background()); err != nil {
		t.Fatalf("Next after reopen: %v", err)
	}
}

func TestSource_ReopenExhaustsAttemptBudget(t *testing.T) {
	backend := &fakeBackend{devices: map[string]*fakeDevice{}}
	cfg := testCameraConfig()
	s := New(cfg, backend)

	if err := s.Reopen(context.Background()); !errors.Is(err, ErrOpenFailed) {
		t.Fatalf("Reopen = %v, want ErrOpenFailed", err)
	}

	// Two attempts, each walking primary plus two fallbacks.
	if got := len(backend.opened); got != cfg.ReconnectAttempts*3 {
		t.Errorf("backend opened %d times, want %d", got, cfg.ReconnectAttempts*3)
	}
}

func TestSource_StateReadsDoNotBlockDuringReopenBackoff(t *testing.T) {
	backend := &fakeBackend{devices: map[string]*fakeDevice{}}
	cfg := testCameraConfig()
	cfg.ReconnectAttempts = 3
	cfg.ReconnectBaseDelay = 200 * time.Millisecond
	cfg.ReconnectMaxDelay = 200 * time.Millisecond
	s := New(cfg, backend)

	done := make(chan struct{})
	go func() {
		s.Reopen(context.Background())
		close(done)
	}()

	// Let the reopen cycle enter its first backoff sleep, then verify
	// state reads still answer promptly.
	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	s.ActiveSource()
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("ActiveSource blocked %v during reconnect backoff", elapsed)
	}
	<-done
}

func TestSource_ReopenDoesNotSleepAfterFinalAttempt(t *testing.T) {
	backend := &fakeBackend{devices: map[string]*fakeDevice{}}
	cfg := testCameraConfig()
	cfg.ReconnectAttempts = 2
	cfg.ReconnectBaseDelay = 100 * time.Millisecond
	cfg.ReconnectMaxDelay = 100 * time.Millisecond
	s := New(cfg, backend)

	start := time.Now()
	if err := s.Reopen(context.Background()); !errors.Is(err, ErrOpenFailed) {
		t.Fatalf("Reopen = %v, want ErrOpenFailed", err)
	}

	// One sleep between the two attempts; none after the last.
	if elapsed := time.Since(start); elapsed >= 200*time.Millisecond {
		t.Errorf("Reopen took %v, should not back off after the final attempt", elapsed)
	}
}

func TestSource_ReopenStopsOnCancelledContext(t *testing.T) {
	backend := &fakeBackend{devices: map[string]*fakeDevice{}}
	s := New(testCameraConfig(), backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Reopen(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Reopen = %v, want context.Canceled", err)
	}
}
