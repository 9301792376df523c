// Package face defines the face detection contract and the utilities for
// turning detected regions into crops the embedding stage can consume.
package face

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/phajek/mediascan/internal/media"
)

// Region is a detected face in source-image pixel coordinates.
// Pose angles and expression probabilities are optional detector metadata;
// a detector that cannot estimate them leaves the pointers nil.
type Region struct {
	BBox       media.BoundingBox
	TrackingID string
	Roll       float64
	Yaw        float64
	Pitch      float64
	Smiling    *float64
	EyesOpen   *float64
	Score      float64
}

// Locator detects face regions in a full image. Implementations must be
// deterministic for a given image and model, and must report boxes in
// source-image pixel coordinates so cropping is trivial.
type Locator interface {
	Detect(img image.Image) ([]Region, error)
}

// DetectorError reports an internal detector failure. The pipeline skips
// the face stage for the affected item and continues the run.
type DetectorError struct {
	Err error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("face detector: %v", e.Err)
}

func (e *DetectorError) Unwrap() error {
	return e.Err
}

// ErrEmptyRegion is returned when a bounding box clamps to zero area.
type emptyRegionError struct {
	box media.BoundingBox
}

func (e *emptyRegionError) Error() string {
	return fmt.Sprintf("region clamps to zero area: %+v", e.box)
}

// ExtractRegion crops the face region from img, expanded by padding pixels
// on every side and clamped to the image bounds. The returned crop owns its
// pixels; it does not alias the source. Regions that clamp to zero area are
// rejected.
func ExtractRegion(img image.Image, box media.BoundingBox, padding int) (image.Image, error) {
	bounds := img.Bounds()

	x1 := int(box.X1) - padding
	y1 := int(box.Y1) - padding
	x2 := int(box.X2) + padding
	y2 := int(box.Y2) + padding

	if x1 < bounds.Min.X {
		x1 = bounds.Min.X
	}
	if y1 < bounds.Min.Y {
		y1 = bounds.Min.Y
	}
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}

	if x2 <= x1 || y2 <= y1 {
		return nil, &emptyRegionError{box: box}
	}

	crop := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	draw.Draw(crop, crop.Bounds(), img, image.Pt(x1, y1), draw.Src)
	return crop, nil
}
