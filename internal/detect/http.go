package detect

import (
	"context"
	"encoding/base64"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"skywarden/internal/models"
)

// HTTPDetector sends frames to a remote model-serving endpoint that
// returns normalized detections as JSON.
type HTTPDetector struct {
	client *resty.Client
}

type inferRequest struct {
	Image string `json:"image"` // base64-encoded JPEG
}

type inferResponse struct {
	Error   string `json:"error,omitempty"`
	Results []struct {
		Class string  `json:"class"`
		Score float64 `json:"score"`
		Box   struct {
			Left   float64 `json:"left"`
			Top    float64 `json:"top"`
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		} `json:"box"`
	} `json:"results"`
}

// NewHTTPDetector builds a detector client for the given server URL.
func NewHTTPDetector(serverURL string) *HTTPDetector {
	client := resty.New()
	client.SetBaseURL(serverURL)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")
	return &HTTPDetector{client: client}
}

// DetectRaw posts the frame and converts the server's normalized
// coordinates back to pixels.
func (d *HTTPDetector) DetectRaw(ctx context.Context, frame models.Frame) ([]models.Detection, error) {
	req := inferRequest{Image: base64.StdEncoding.EncodeToString(frame.Data)}

	var out inferResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/detect")
	if err != nil {
		return nil, errors.Wrap(err, "inference request")
	}
	if resp.IsError() {
		return nil, errors.Errorf("inference server returned %s: %s", resp.Status(), resp.String())
	}
	if out.Error != "" {
		return nil, errors.Errorf("inference failed: %s", out.Error)
	}

	detections := make([]models.Detection, 0, len(out.Results))
	for _, r := range out.Results {
		if r.Score <= 0 || r.Box.Left < 0 || r.Box.Top < 0 {
			continue
		}
		x1 := int(r.Box.Left * float64(frame.Width))
		y1 := int(r.Box.Top * float64(frame.Height))
		x2 := int((r.Box.Left + r.Box.Width) * float64(frame.Width))
		y2 := int((r.Box.Top + r.Box.Height) * float64(frame.Height))
		box := clampBox(x1, y1, x2, y2, frame.Width, frame.Height)
		if box.Area() <= 0 {
			continue
		}
		detections = append(detections, models.Detection{
			Class:      r.Class,
			Confidence: r.Score,
			Box:        box,
		})
	}
	return detections, nil
}

// Close is a no-op; resty holds no resources needing release.
func (d *HTTPDetector) Close() error {
	return nil
}
