package models

import "time"

// DetectionEvent is the durable record of a qualifying detection.
// It is created once by the orchestrator and owned by the event store
// from then on; the rate limiter only decides whether a notification
// accompanies it, never whether it exists.
type DetectionEvent struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Class            string    `json:"class"`
	Confidence       float64   `json:"confidence"`
	Box              Box       `json:"box"`
	ImagePath        string    `json:"image_path,omitempty"`
	AlertFired       bool      `json:"alert_fired"`
	ChannelsNotified []string  `json:"channels_notified,omitempty"`
}

// EventFilter narrows event queries. Zero-value fields are ignored.
type EventFilter struct {
	From   time.Time
	To     time.Time
	Class  string
	Limit  int
	Offset int
}
