// Package phash computes 64-bit perceptual difference hashes and compares
// them with Hamming distance.
package phash

import (
	"fmt"
	"image"
	"math/bits"
	"strconv"

	"golang.org/x/image/draw"

	"github.com/phajek/mediascan/internal/constants"
)

const (
	// gridSize is the number of comparisons per row and per column.
	gridSize = 8
	// hexLen is the length of the hex encoding (16 nybbles, 4 bits each).
	hexLen = constants.HashBits / 4
)

// Hash is a fixed 64-bit perceptual fingerprint. The zero value is a valid
// hash (an image with no horizontal gradients).
type Hash uint64

// Hex returns the hash as 16 hex nybbles, MSB first.
func (h Hash) Hex() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// ParseHex parses a 16-nybble hex string produced by Hex.
func ParseHex(s string) (Hash, error) {
	if len(s) != hexLen {
		return 0, &HashError{Reason: fmt.Sprintf("expected %d hex characters, got %d", hexLen, len(s))}
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, &HashError{Reason: "invalid hex: " + s}
	}
	return Hash(v), nil
}

// HashError reports malformed or mismatched comparison input.
type HashError struct {
	Reason string
}

func (e *HashError) Error() string {
	return "hash error: " + e.Reason
}

// Compute calculates the difference hash of an image.
//
// The image is resized to a 9x8 grid, converted to BT.601 luminance, and each
// of the 8x8 horizontally adjacent pixel pairs produces one bit: 1 if the
// left sample is darker than the right, 0 otherwise. Bits are packed in
// row-major order, MSB first. Deterministic for a given decoded image.
func Compute(img image.Image) Hash {
	resized := resize(img, gridSize+1, gridSize)
	luma := toLuminance(resized)

	var hash uint64
	bit := constants.HashBits - 1
	for y := range gridSize {
		for x := range gridSize {
			if luma[x][y] < luma[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return Hash(hash)
}

// HammingDistance counts the differing bits between two hashes.
func HammingDistance(a, b Hash) int {
	return bits.OnesCount64(uint64(a) ^ uint64(b))
}

// Similarity converts Hamming distance to a score in [0,1], 1 meaning
// identical. Symmetric and reflexive by construction.
func Similarity(a, b Hash) float64 {
	return 1 - float64(HammingDistance(a, b))/float64(constants.HashBits)
}

// SimilarityHex compares two hex-encoded hashes. Unlike the uint64 fast
// path, encoded hashes can be malformed, so empty or mismatched-length
// input fails with a HashError instead of returning a misleading score.
func SimilarityHex(a, b string) (float64, error) {
	if a == "" || b == "" {
		return 0, &HashError{Reason: "empty hash"}
	}
	if len(a) != len(b) {
		return 0, &HashError{Reason: fmt.Sprintf("length mismatch: %d vs %d", len(a), len(b))}
	}
	ha, err := ParseHex(a)
	if err != nil {
		return 0, err
	}
	hb, err := ParseHex(b)
	if err != nil {
		return 0, err
	}
	return Similarity(ha, hb), nil
}

// AreNearDuplicates reports whether two hashes are at least threshold
// similar. Monotone in threshold: lowering it never flips true to false.
func AreNearDuplicates(a, b Hash, threshold float64) bool {
	return Similarity(a, b) >= threshold
}

// resize scales an image to the specified dimensions.
func resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toLuminance converts an image to a 2D array of luma values (0-255).
func toLuminance(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	luma := make([][]float64, width)
	for x := range width {
		luma[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			luma[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}
	return luma
}
