// Package camera owns the capture device. No other component touches
// the device directly; the orchestrator consumes frames through Source
// and drives session recovery through Reopen.
package camera

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"skywarden/internal/config"
	"skywarden/internal/models"
)

// ErrSessionDead signals that the current capture session has exceeded
// its consecutive-failure budget and must be reopened.
var ErrSessionDead = errors.New("camera session dead")

// ErrOpenFailed signals that no configured source could be opened.
var ErrOpenFailed = errors.New("no camera source could be opened")

// Device is one opened capture session. Read blocks until a frame is
// available or the device fails.
type Device interface {
	Read() (models.Frame, error)
	Close() error
}

// Backend opens capture devices by source identifier. The production
// backend wraps gocv; tests substitute fakes.
type Backend interface {
	Open(source string) (Device, error)
}

type readResult struct {
	frame models.Frame
	err   error
}

// Source produces frames from the configured camera, falling back to
// alternate sources on open failure and tracking consecutive read
// failures so the orchestrator can recover dead sessions.
type Source struct {
	cfg     config.CameraConfig
	backend Backend

	mu       sync.Mutex // guards dev, failures, pending
	dev      Device
	active   string
	failures int
	pending  chan readResult

	// reopenMu serializes reconnect cycles so opens never overlap,
	// while s.mu stays free during backoff sleeps and state reads
	// like ActiveSource keep answering.
	reopenMu sync.Mutex

	seq uint64
}

// New creates a Source. The device is not opened until Open is called.
func New(cfg config.CameraConfig, backend Backend) *Source {
	return &Source{cfg: cfg, backend: backend}
}

// Open attempts the primary source, then each fallback in order. It
// returns ErrOpenFailed once every identifier has been tried.
func (s *Source) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(ctx)
}

func (s *Source) openLocked(ctx context.Context) error {
	if s.dev != nil {
		return nil
	}

	sources := append([]string{s.cfg.Source}, s.cfg.FallbackSources...)
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		dev, err := s.backend.Open(src)
		if err != nil {
			slog.Warn("camera open failed", "source", src, "error", err)
			continue
		}
		s.dev = dev
		s.active = src
		s.failures = 0
		s.pending = nil
		slog.Info("camera session opened", "source", src)
		return nil
	}
	return ErrOpenFailed
}

// Next returns the next frame, blocking up to the configured read
// timeout. A timed-out or failed read counts against the consecutive
// failure budget; once exhausted, Next returns ErrSessionDead until
// the session is reopened.
func (s *Source) Next(ctx context.Context) (models.Frame, error) {
	s.mu.Lock()
	dev := s.dev
	if dev == nil {
		s.mu.Unlock()
		return models.Frame{}, ErrSessionDead
	}
	if s.failures >= s.cfg.MaxConsecutiveFailures {
		s.mu.Unlock()
		return models.Frame{}, ErrSessionDead
	}

	// A read that outlived its deadline may still be in flight; wait
	// on it instead of stacking a second reader on the device.
	if s.pending == nil {
		ch := make(chan readResult, 1)
		s.pending = ch
		go func() {
			frame, err := dev.Read()
			ch <- readResult{frame: frame, err: err}
		}()
	}
	pending := s.pending
	s.mu.Unlock()

	timer := time.NewTimer(s.cfg.ReadTimeout)
	defer timer.Stop()

	select {
	case res := <-pending:
		s.mu.Lock()
		s.pending = nil
		if res.err != nil {
			s.failures++
			dead := s.failures >= s.cfg.MaxConsecutiveFailures
			s.mu.Unlock()
			if dead {
				return models.Frame{}, ErrSessionDead
			}
			return models.Frame{}, errors.Wrap(res.err, "frame read")
		}
		s.failures = 0
		s.seq++
		res.frame.Seq = s.seq
		s.mu.Unlock()
		return res.frame, nil

	case <-timer.C:
		s.mu.Lock()
		s.failures++
		dead := s.failures >= s.cfg.MaxConsecutiveFailures
		s.mu.Unlock()
		if dead {
			return models.Frame{}, ErrSessionDead
		}
		return models.Frame{}, errors.New("frame read timed out")

	case <-ctx.Done():
		return models.Frame{}, ctx.Err()
	}
}

// Reopen closes the current session and retries Open with exponential
// backoff, capped at reconnect_max_delay. It returns ErrOpenFailed
// once the attempt budget is spent; the caller then enters its
// degraded state and may call Reopen again later.
func (s *Source) Reopen(ctx context.Context) error {
	s.reopenMu.Lock()
	defer s.reopenMu.Unlock()

	s.mu.Lock()
	s.closeLocked()
	s.mu.Unlock()

	delay := s.cfg.ReconnectBaseDelay
	for attempt := 1; attempt <= s.cfg.ReconnectAttempts; attempt++ {
		s.mu.Lock()
		err := s.openLocked(ctx)
		s.mu.Unlock()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if attempt == s.cfg.ReconnectAttempts {
			break
		}

		slog.Warn("camera reconnect failed",
			"attempt", attempt,
			"max_attempts", s.cfg.ReconnectAttempts,
			"next_delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if delay > s.cfg.ReconnectMaxDelay {
			delay = s.cfg.ReconnectMaxDelay
		}
	}
	return ErrOpenFailed
}

// Close releases the current device, if any.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *Source) closeLocked() {
	if s.dev != nil {
		if err := s.dev.Close(); err != nil {
			slog.Warn("camera close failed", "source", s.active, "error", err)
		}
		s.dev = nil
		s.pending = nil
	}
}

// ActiveSource returns the identifier of the currently opened source,
// empty when no session is open.
func (s *Source) ActiveSource() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
