package alert

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"

	"skywarden/internal/models"
)

// PushChannel broadcasts the alert to connected websocket clients via
// the web hub. Delivery is best effort by nature: a client that is not
// connected simply misses the message.
type PushChannel struct {
	hub Broadcaster
}

type pushPayload struct {
	Type  string                `json:"type"`
	Event models.DetectionEvent `json:"event"`
	Image string                `json:"image,omitempty"` // base64 JPEG
}

func NewPushChannel(hub Broadcaster) *PushChannel {
	return &PushChannel{hub: hub}
}

func (p *PushChannel) Name() string { return "push" }

func (p *PushChannel) Send(ctx context.Context, event models.DetectionEvent, image []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload := pushPayload{Type: "alert", Event: event}
	if len(image) > 0 {
		payload.Image = base64.StdEncoding.EncodeToString(image)
	}

	msg, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal push payload")
	}
	p.hub.Broadcast(msg)
	return nil
}
