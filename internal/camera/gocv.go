package camera

import (
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"skywarden/internal/models"
)

// GoCVBackend opens capture devices through OpenCV. Source identifiers
// are whatever gocv accepts: a device index ("0"), a video file path,
// or an RTSP URL.
type GoCVBackend struct{}

func (GoCVBackend) Open(source string) (Device, error) {
	cap, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, errors.Wrapf(err, "open capture %q", source)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, errors.Errorf("capture %q did not open", source)
	}
	return &gocvDevice{cap: cap}, nil
}

type gocvDevice struct {
	cap *gocv.VideoCapture
}

func (d *gocvDevice) Read() (models.Frame, error) {
	mat := gocv.NewMat()
	defer mat.Close()

	if ok := d.cap.Read(&mat); !ok || mat.Empty() {
		return models.Frame{}, errors.New("capture returned no frame")
	}

	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return models.Frame{}, errors.Wrap(err, "encode frame")
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())

	return models.Frame{
		Timestamp: time.Now(),
		Width:     mat.Cols(),
		Height:    mat.Rows(),
		Data:      data,
	}, nil
}

func (d *gocvDevice) Close() error {
	return d.cap.Close()
}
