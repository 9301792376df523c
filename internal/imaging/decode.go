// Package imaging wraps image decoding behind the bounded-decode contract
// the pipeline needs: never hand back more pixels than requested.
package imaging

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// maxSourcePixels rejects absurdly large sources before a full decode is
// attempted. 80 megapixels decoded as RGBA is already ~320 MB.
const maxSourcePixels = 80_000_000

// ErrTooLarge marks a source whose decoded size would exhaust memory.
// Callers treat it as an out-of-memory condition, not a decode failure.
var ErrTooLarge = errors.New("image too large to decode")

// DecodeError reports an unreadable or corrupt image file.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeBounded decodes the image at path and downsamples it so its long
// edge does not exceed maxDimension, preserving aspect ratio. The header is
// inspected first so oversized sources fail before any pixel data is
// allocated. Resampling is deterministic for a given decoder.
func DecodeBounded(path string, maxDimension int) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{Path: path, Err: errors.New("invalid dimensions")}
	}
	if cfg.Width*cfg.Height > maxSourcePixels {
		return nil, fmt.Errorf("%s (%dx%d): %w", path, cfg.Width, cfg.Height, ErrTooLarge)
	}

	if _, err := f.Seek(0, 0); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	return Downsample(img, maxDimension), nil
}

// Downsample scales img so its long edge is at most maxDimension.
// Images already within bounds are returned unchanged.
func Downsample(img image.Image, maxDimension int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxDimension && height <= maxDimension {
		return img
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxDimension
		newHeight = int(float64(height) * float64(maxDimension) / float64(width))
	} else {
		newHeight = maxDimension
		newWidth = int(float64(width) * float64(maxDimension) / float64(height))
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized
}
