package face

import (
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/phajek/mediascan/internal/constants"
	"github.com/phajek/mediascan/internal/media"
)

// PigoLocator detects faces with the pigo pixel-intensity cascade.
// It runs fully on device; the binary cascade file is loaded once from an
// explicit path and the classifier is reused across images without
// synchronization (detection is read-only).
type PigoLocator struct {
	classifier *pigo.Pigo
	minScore   float64
}

// NewPigoLocator loads the facefinder cascade from path and prepares the
// classifier.
func NewPigoLocator(cascadePath string, minScore float64) (*PigoLocator, error) {
	cascade, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}

	return &PigoLocator{
		classifier: classifier,
		minScore:   minScore,
	}, nil
}

// Detect runs the cascade over the image and returns face regions in pixel
// coordinates. Overlapping raw detections are clustered by IoU so each face
// is reported once.
func (l *PigoLocator) Detect(img image.Image) ([]Region, error) {
	if img == nil {
		return nil, &DetectorError{Err: fmt.Errorf("nil image")}
	}
	bounds := img.Bounds()
	cols, rows := bounds.Dx(), bounds.Dy()
	if cols == 0 || rows == 0 {
		return nil, &DetectorError{Err: fmt.Errorf("empty image")}
	}

	pixels := pigo.RgbToGrayscale(img)

	params := pigo.CascadeParams{
		MinSize:     20,
		MaxSize:     min(cols, rows),
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := l.classifier.RunCascade(params, 0.0)

	var regions []Region
	for _, det := range dets {
		if float64(det.Q) < l.minScore {
			continue
		}
		half := float64(det.Scale) / 2
		regions = append(regions, Region{
			BBox: media.BoundingBox{
				X1: float64(det.Col) - half,
				Y1: float64(det.Row) - half,
				X2: float64(det.Col) + half,
				Y2: float64(det.Row) + half,
			},
			Score: float64(det.Q),
		})
	}
	return MergeOverlapping(regions, constants.DetectionIoUThreshold), nil
}
