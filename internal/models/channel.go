package models

import "time"

// ChannelResult records the outcome of one notification channel
// dispatch attempt. It is aggregated into the DetectionEvent's
// channels-notified summary and never persisted on its own.
type ChannelResult struct {
	Channel string        `json:"channel"`
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency"`
}
