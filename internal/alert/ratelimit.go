// Package alert decides whether a detection may notify and fans
// eligible alerts out to the configured channels.
package alert

import (
	"time"

	"skywarden/internal/config"
)

// Eligibility reasons, reported on every decision.
const (
	ReasonEligible   = "eligible"
	ReasonCooldown   = "cooldown"
	ReasonTooSoon    = "too soon"
	ReasonRateCapped = "rate capped"
)

// Decision is the rate limiter's verdict for one detection.
type Decision struct {
	Eligible bool
	Reason   string
}

// RateLimiter implements the sliding-window + cooldown hybrid. A
// burst of frames of the same circling predator produces one alert,
// then silence until either the minimum interval passes or, when the
// hourly cap is hit, the cooldown expires.
//
// The limiter is deliberately not safe for concurrent use: the
// Coordinator is its single owner and mutator.
type RateLimiter struct {
	minInterval time.Duration
	maxPerHour  int
	cooldown    time.Duration

	lastFired     time.Time
	firedAt       []time.Time // fired alerts in the trailing hour
	cooldownUntil time.Time
}

// NewRateLimiter builds a limiter from configuration.
func NewRateLimiter(cfg config.RateLimitingConfig) *RateLimiter {
	return &RateLimiter{
		minInterval: cfg.MinAlertInterval,
		maxPerHour:  cfg.MaxAlertsPerHour,
		cooldown:    cfg.CooldownPeriod,
	}
}

// Evaluate decides whether an alert may fire at now. Checks run in a
// fixed order and the first failing condition wins. Hitting the hourly
// cap additionally arms the cooldown so a sustained detection stream
// stops churning through evaluations.
func (r *RateLimiter) Evaluate(now time.Time) Decision {
	if now.Before(r.cooldownUntil) {
		return Decision{Reason: ReasonCooldown}
	}

	if !r.lastFired.IsZero() && now.Sub(r.lastFired) < r.minInterval {
		return Decision{Reason: ReasonTooSoon}
	}

	if r.countWindow(now) >= r.maxPerHour {
		r.cooldownUntil = now.Add(r.cooldown)
		return Decision{Reason: ReasonRateCapped}
	}

	return Decision{Eligible: true, Reason: ReasonEligible}
}

// RecordFired marks a fired alert. Only fired alerts count against the
// hourly cap; ineligible detections never consume budget.
func (r *RateLimiter) RecordFired(now time.Time) {
	r.lastFired = now
	r.firedAt = append(r.firedAt, now)
	r.prune(now)
}

// countWindow returns fired alerts in the trailing 60 minutes.
func (r *RateLimiter) countWindow(now time.Time) int {
	r.prune(now)
	return len(r.firedAt)
}

func (r *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-time.Hour)
	kept := r.firedAt[:0]
	for _, t := range r.firedAt {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.firedAt = kept
}

// Status is a read-only snapshot of the limiter for the status
// surface.
type Status struct {
	LastFired     time.Time `json:"last_fired,omitempty"`
	FiredLastHour int       `json:"fired_last_hour"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
}

// StatusAt reports the limiter state as of now.
func (r *RateLimiter) StatusAt(now time.Time) Status {
	return Status{
		LastFired:     r.lastFired,
		FiredLastHour: r.countWindow(now),
		CooldownUntil: r.cooldownUntil,
	}
}
