package detect

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"skywarden/internal/config"
	"skywarden/internal/models"
)

// cocoLabels maps SSD class IDs to labels, trimmed to the classes this
// service can act on plus neighbours useful for debugging.
var cocoLabels = map[int]string{
	1:  "person",
	15: "bench",
	16: "bird",
	17: "cat",
	18: "dog",
	21: "cow",
}

// DNNDetector runs a local OpenCV DNN model. Inference calls are
// serialized: gocv.Net is not safe for concurrent Forward passes.
type DNNDetector struct {
	mu  sync.Mutex
	net gocv.Net
}

// NewDNNDetector loads the model and network config from disk. A
// missing or unloadable model is a startup-fatal condition.
func NewDNNDetector(cfg config.AIConfig) (*DNNDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model file %q", cfg.ModelPath)
	}
	if _, err := os.Stat(cfg.ModelConfigPath); err != nil {
		return nil, errors.Wrapf(err, "model config file %q", cfg.ModelConfigPath)
	}

	net := gocv.ReadNet(cfg.ModelPath, cfg.ModelConfigPath)
	if net.Empty() {
		return nil, errors.Errorf("failed to load network from %q", cfg.ModelPath)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set network backend")
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set network target")
	}

	return &DNNDetector{net: net}, nil
}

// DetectRaw decodes the frame and runs one forward pass. Output rows
// are [batch, classID, confidence, x1, y1, x2, y2] with normalized
// coordinates.
func (d *DNNDetector) DetectRaw(ctx context.Context, frame models.Frame) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.New("decoded frame is empty")
	}

	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	reshaped := output.Reshape(1, output.Total()/7)
	defer reshaped.Close()

	cols := float32(mat.Cols())
	rows := float32(mat.Rows())

	var detections []models.Detection
	for i := 0; i < reshaped.Rows(); i++ {
		confidence := float64(reshaped.GetFloatAt(i, 2))
		if confidence <= 0 {
			continue
		}
		classID := int(reshaped.GetFloatAt(i, 1))
		label, ok := cocoLabels[classID]
		if !ok {
			continue
		}

		x1 := int(reshaped.GetFloatAt(i, 3) * cols)
		y1 := int(reshaped.GetFloatAt(i, 4) * rows)
		x2 := int(reshaped.GetFloatAt(i, 5) * cols)
		y2 := int(reshaped.GetFloatAt(i, 6) * rows)
		box := clampBox(x1, y1, x2, y2, mat.Cols(), mat.Rows())
		if box.Area() <= 0 {
			continue
		}

		detections = append(detections, models.Detection{
			Class:      label,
			Confidence: confidence,
			Box:        box,
		})
	}

	return detections, nil
}

// Close releases the network.
func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

func clampBox(x1, y1, x2, y2, width, height int) models.Box {
	if x1 < 0 {
		x1 = 0
	}
	if y1 < 0 {
		y1 = 0
	}
	if x2 > width {
		x2 = width
	}
	if y2 > height {
		y2 = height
	}
	if x2 <= x1 || y2 <= y1 {
		return models.Box{}
	}
	return models.Box{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}
