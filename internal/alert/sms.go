package alert

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"skywarden/internal/config"
	"skywarden/internal/models"
)

// SMSChannel posts a short alert message to an SMS gateway.
type SMSChannel struct {
	client *resty.Client
	to     string
}

type smsPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func NewSMSChannel(cfg config.SMSChannelConfig) *SMSChannel {
	client := resty.New()
	client.SetBaseURL(cfg.GatewayURL)
	client.SetHeader("Content-Type", "application/json")
	client.SetAuthToken(cfg.APIKey)
	return &SMSChannel{client: client, to: cfg.To}
}

func (s *SMSChannel) Name() string { return "sms" }

func (s *SMSChannel) Send(ctx context.Context, event models.DetectionEvent, _ []byte) error {
	payload := smsPayload{
		To: s.to,
		Message: fmt.Sprintf("skywarden: %s detected %s (%.0f%%)",
			event.Class, event.Timestamp.Format("15:04:05"), event.Confidence*100),
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/messages")
	if err != nil {
		return errors.Wrap(err, "send sms")
	}
	if resp.IsError() {
		return errors.Errorf("sms gateway returned %s: %s", resp.Status(), resp.String())
	}
	return nil
}
