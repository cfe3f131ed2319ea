// Package detect wraps the external detection model. The raw backend
// (local DNN or remote model server) produces unfiltered detections;
// the Adapter owns the policy: which classes count, at what confidence
// they become actionable, and how overlapping boxes collapse.
package detect

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"skywarden/internal/config"
	"skywarden/internal/models"
)

// RawDetector is the external inference capability: frame in,
// unfiltered detection list out.
type RawDetector interface {
	DetectRaw(ctx context.Context, frame models.Frame) ([]models.Detection, error)
	Close() error
}

// Adapter applies confidence thresholding, class filtering and
// per-class non-maximum suppression on top of a RawDetector. It holds
// no state across calls: the same frame and configuration always yield
// the same detection list.
type Adapter struct {
	raw        RawDetector
	confidence float64
	nms        float64
	allowed    map[string]struct{}
}

// NewAdapter builds an Adapter from the AI policy configuration.
func NewAdapter(raw RawDetector, cfg config.AIConfig) *Adapter {
	allowed := make(map[string]struct{}, len(cfg.Classes))
	for _, c := range cfg.Classes {
		allowed[c] = struct{}{}
	}
	return &Adapter{
		raw:        raw,
		confidence: cfg.ConfidenceThreshold,
		nms:        cfg.NMSThreshold,
		allowed:    allowed,
	}
}

// Detect runs the raw detector and applies the policy. A backend error
// yields an empty list plus the error; a single bad frame never takes
// the caller down.
func (a *Adapter) Detect(ctx context.Context, frame models.Frame) ([]models.Detection, error) {
	raw, err := a.raw.DetectRaw(ctx, frame)
	if err != nil {
		return nil, errors.Wrap(err, "raw detect")
	}

	filtered := make([]models.Detection, 0, len(raw))
	for _, d := range raw {
		if d.Confidence < a.confidence {
			continue
		}
		if _, ok := a.allowed[d.Class]; !ok {
			continue
		}
		if d.Box.Area() <= 0 {
			continue
		}
		filtered = append(filtered, d)
	}

	return suppress(filtered, a.nms), nil
}

// Close releases the underlying backend.
func (a *Adapter) Close() error {
	return a.raw.Close()
}

// suppress collapses overlapping same-class boxes above the IoU
// threshold to the highest-confidence box. Ordering is made fully
// deterministic by breaking confidence ties on class and position.
func suppress(dets []models.Detection, iouThreshold float64) []models.Detection {
	if len(dets) <= 1 {
		return dets
	}

	sorted := make([]models.Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		if sorted[i].Class != sorted[j].Class {
			return sorted[i].Class < sorted[j].Class
		}
		if sorted[i].Box.X != sorted[j].Box.X {
			return sorted[i].Box.X < sorted[j].Box.X
		}
		return sorted[i].Box.Y < sorted[j].Box.Y
	})

	kept := make([]models.Detection, 0, len(sorted))
	for _, cand := range sorted {
		overlaps := false
		for _, k := range kept {
			if k.Class == cand.Class && iou(k.Box, cand.Box) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, cand)
		}
	}
	return kept
}

// iou computes intersection over union of two boxes.
func iou(a, b models.Box) float64 {
	inter := a.Intersect(b).Area()
	if inter == 0 {
		return 0
	}
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
