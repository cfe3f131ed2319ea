package models

import "time"

// SnapshotRecord is the "now" view exposed to external consumers.
// It is overwritten in place on every publish cycle and has no
// history; a reader treats it as stale once CapturedAt is older than
// its staleness threshold.
type SnapshotRecord struct {
	CapturedAt    time.Time `json:"captured_at"`
	CameraHealthy bool      `json:"camera_healthy"`
	FrameSeq      uint64    `json:"frame_seq"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
}

// Stale reports whether the record is older than threshold at now.
func (s SnapshotRecord) Stale(now time.Time, threshold time.Duration) bool {
	return now.Sub(s.CapturedAt) > threshold
}
