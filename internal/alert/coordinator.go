package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"skywarden/internal/models"
)

// Channel is one independent notification transport. Send must respect
// the context deadline; retries, if any, are the channel's own
// business, never the coordinator's.
type Channel interface {
	Name() string
	Send(ctx context.Context, event models.DetectionEvent, image []byte) error
}

// Coordinator owns the rate limiter and fans eligible detections out
// to all channels concurrently. Per-channel failures are isolated, and
// the whole dispatch is bounded by a hard ceiling distinct from the
// per-channel timeout so a hung transport cannot stall the detection
// loop.
type Coordinator struct {
	mu       sync.Mutex // guards limiter; its single owner
	limiter  *RateLimiter
	channels []Channel

	channelTimeout  time.Duration
	dispatchTimeout time.Duration
}

// NewCoordinator wires the limiter and channels together.
func NewCoordinator(limiter *RateLimiter, channels []Channel, channelTimeout, dispatchTimeout time.Duration) *Coordinator {
	return &Coordinator{
		limiter:         limiter,
		channels:        channels,
		channelTimeout:  channelTimeout,
		dispatchTimeout: dispatchTimeout,
	}
}

// Dispatch evaluates eligibility and, when eligible, sends the event
// to every channel. An ineligible detection performs zero channel
// calls and returns an empty result set; persisting the event is the
// caller's job either way.
func (c *Coordinator) Dispatch(ctx context.Context, event models.DetectionEvent, image []byte) ([]models.ChannelResult, Decision) {
	now := time.Now()

	c.mu.Lock()
	decision := c.limiter.Evaluate(now)
	if decision.Eligible {
		c.limiter.RecordFired(now)
	}
	c.mu.Unlock()

	if !decision.Eligible {
		slog.Debug("alert suppressed",
			"event_id", event.ID,
			"class", event.Class,
			"reason", decision.Reason,
		)
		return nil, decision
	}

	return c.fanOut(ctx, event, image), decision
}

// fanOut dispatches to all channels concurrently and collects results
// until every channel reports or the dispatch ceiling passes. Channels
// still running at the ceiling are recorded as failed and abandoned;
// their goroutines drain into a buffered channel and exit on their
// own context deadline.
func (c *Coordinator) fanOut(ctx context.Context, event models.DetectionEvent, image []byte) []models.ChannelResult {
	results := make(chan models.ChannelResult, len(c.channels))

	// Sends are detached from the caller's cancellation: a shutdown
	// mid-dispatch grants in-flight channels their timeout as a grace
	// period instead of aborting them half-sent.
	base := context.WithoutCancel(ctx)

	for _, ch := range c.channels {
		go func(ch Channel) {
			sendCtx, cancel := context.WithTimeout(base, c.channelTimeout)
			defer cancel()

			start := time.Now()
			err := ch.Send(sendCtx, event, image)
			res := models.ChannelResult{
				Channel: ch.Name(),
				Success: err == nil,
				Latency: time.Since(start),
			}
			if err != nil {
				res.Error = err.Error()
				slog.Warn("channel dispatch failed",
					"channel", ch.Name(),
					"event_id", event.ID,
					"error", err,
				)
			}
			results <- res
		}(ch)
	}

	deadline := time.NewTimer(c.dispatchTimeout)
	defer deadline.Stop()

	collected := make([]models.ChannelResult, 0, len(c.channels))
	reported := make(map[string]bool, len(c.channels))
	for range c.channels {
		select {
		case res := <-results:
			collected = append(collected, res)
			reported[res.Channel] = true
		case <-deadline.C:
			for _, ch := range c.channels {
				if !reported[ch.Name()] {
					collected = append(collected, models.ChannelResult{
						Channel: ch.Name(),
						Error:   "dispatch deadline exceeded",
						Latency: c.dispatchTimeout,
					})
				}
			}
			return collected
		}
	}
	return collected
}

// LimiterStatus exposes a read-only limiter snapshot for the status
// surface.
func (c *Coordinator) LimiterStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limiter.StatusAt(time.Now())
}
