package detect

import (
	"fmt"
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"skywarden/internal/models"
)

var annotationColor = color.RGBA{R: 255, G: 64, B: 0, A: 0}

// Annotate draws detection boxes and labels onto a JPEG frame and
// returns a new JPEG. The input bytes are never modified.
func Annotate(frameData []byte, detections []models.Detection) ([]byte, error) {
	mat, err := gocv.IMDecode(frameData, gocv.IMReadColor)
	if err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.New("decoded frame is empty")
	}

	for _, d := range detections {
		rect := image.Rect(d.Box.X, d.Box.Y, d.Box.X+d.Box.Width, d.Box.Y+d.Box.Height)
		if err := gocv.Rectangle(&mat, rect, annotationColor, 2); err != nil {
			return nil, errors.Wrap(err, "draw box")
		}

		label := fmt.Sprintf("%s %.2f", d.Class, d.Confidence)
		origin := image.Pt(d.Box.X, d.Box.Y-5)
		if origin.Y < 10 {
			origin.Y = d.Box.Y + 15
		}
		if err := gocv.PutText(&mat, label, origin, gocv.FontHersheySimplex, 0.5, annotationColor, 1); err != nil {
			return nil, errors.Wrap(err, "draw label")
		}
	}

	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return nil, errors.Wrap(err, "encode annotated frame")
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
