package alert

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"skywarden/internal/config"
	"skywarden/internal/models"
)

// EmailChannel delivers alerts through an HTTP mail provider API.
type EmailChannel struct {
	client *resty.Client
	from   string
	to     string
}

type emailPayload struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	Attachment string `json:"attachment,omitempty"` // base64 JPEG
}

func NewEmailChannel(cfg config.EmailChannelConfig) *EmailChannel {
	client := resty.New()
	client.SetBaseURL(cfg.APIURL)
	client.SetHeader("Content-Type", "application/json")
	client.SetAuthToken(cfg.APIKey)
	return &EmailChannel{client: client, from: cfg.From, to: cfg.To}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, event models.DetectionEvent, image []byte) error {
	payload := emailPayload{
		From:    e.from,
		To:      e.to,
		Subject: fmt.Sprintf("Predator alert: %s (%.0f%%)", event.Class, event.Confidence*100),
		Body: fmt.Sprintf("%s detected at %s with confidence %.2f",
			event.Class, event.Timestamp.Format("2006-01-02 15:04:05"), event.Confidence),
	}
	if len(image) > 0 {
		payload.Attachment = base64.StdEncoding.EncodeToString(image)
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/send")
	if err != nil {
		return errors.Wrap(err, "send email")
	}
	if resp.IsError() {
		return errors.Errorf("mail provider returned %s: %s", resp.Status(), resp.String())
	}
	return nil
}
