package alert

import (
	"context"
	"log/slog"

	"skywarden/internal/models"
)

// LogChannel writes the alert to the service log instead of sending it
// anywhere. Useful during bring-up and as a permanent audit trail.
type LogChannel struct{}

func NewLogChannel() *LogChannel { return &LogChannel{} }

func (l *LogChannel) Name() string { return "log" }

func (l *LogChannel) Send(ctx context.Context, event models.DetectionEvent, _ []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slog.Info("alert",
		"event_id", event.ID,
		"class", event.Class,
		"confidence", event.Confidence,
		"timestamp", event.Timestamp,
	)
	return nil
}
