package storage

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ImageStore writes detection images to disk, enforcing the per-image
// size cap by downscaling. Oversized images that cannot be brought
// under the cap are dropped; the event's metadata is stored without an
// image rather than rejecting the whole event.
type ImageStore struct {
	dir      string
	maxBytes int64
}

// NewImageStore ensures the image directory exists.
func NewImageStore(dir string, maxBytes int64) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create image directory")
	}
	return &ImageStore{dir: dir, maxBytes: maxBytes}, nil
}

// Save writes a JPEG for the given event and returns its path. An
// empty path with a nil error means the image was dropped under the
// size policy.
func (s *ImageStore) Save(eventID string, ts time.Time, class string, data []byte) (string, error) {
	if int64(len(data)) > s.maxBytes {
		shrunk, err := downscaleUnder(data, s.maxBytes)
		if err != nil {
			slog.Warn("dropping oversized detection image",
				"event_id", eventID,
				"size", len(data),
				"max_bytes", s.maxBytes,
				"error", err,
			)
			return "", nil
		}
		data = shrunk
	}

	filename := fmt.Sprintf("%s_%s_%s.jpg", ts.UTC().Format("2006-01-02_15-04-05"), class, eventID[:8])
	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrap(err, "write detection image")
	}
	return path, nil
}

// Remove deletes a stored image. A file that is already gone is not an
// error, which keeps the retention sweep idempotent.
func (s *ImageStore) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove image %s", path)
	}
	return nil
}

// downscaleUnder halves the image dimensions until the encoded JPEG
// fits under maxBytes, giving up after a few passes.
func downscaleUnder(data []byte, maxBytes int64) ([]byte, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.New("decoded image is empty")
	}

	for i := 0; i < 4; i++ {
		smaller := gocv.NewMat()
		if err := gocv.Resize(mat, &smaller, image.Pt(mat.Cols()/2, mat.Rows()/2), 0, 0, gocv.InterpolationArea); err != nil {
			smaller.Close()
			return nil, errors.Wrap(err, "resize image")
		}
		mat.Close()
		mat = smaller

		buf, err := gocv.IMEncode(".jpg", mat)
		if err != nil {
			return nil, errors.Wrap(err, "encode downscaled image")
		}
		if int64(len(buf.GetBytes())) <= maxBytes {
			out := make([]byte, len(buf.GetBytes()))
			copy(out, buf.GetBytes())
			buf.Close()
			return out, nil
		}
		buf.Close()
	}
	return nil, errors.New("image still over cap after downscaling")
}
