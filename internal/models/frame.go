package models

import "time"

// Frame is a single captured image, owned by the orchestrator for one
// detection cycle. Data is JPEG-encoded.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// Age returns how old the frame is relative to now.
func (f Frame) Age(now time.Time) time.Duration {
	return now.Sub(f.Timestamp)
}
