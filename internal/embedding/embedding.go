// Package embedding turns face crops into fixed-length feature vectors and
// compares them with cosine similarity.
package embedding

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/phajek/mediascan/internal/constants"
)

// Generator produces a fixed-length embedding for a face crop.
//
// The built-in GridGenerator is a coarse color-sampling heuristic, useful
// for tests and plumbing. Production deployments inject a trained model
// behind this interface; callers never change.
type Generator interface {
	// Embed computes the embedding for a face crop.
	Embed(faceImg image.Image) ([]float32, error)
	// Dim returns the fixed embedding length.
	Dim() int
}

// VectorError reports invalid comparison input (mismatched lengths or
// zero-norm vectors).
type VectorError struct {
	Reason string
}

func (e *VectorError) Error() string {
	return "embedding error: " + e.Reason
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value in [-1, 1], where 1 means identical direction.
// Fails on mismatched lengths and on zero-norm input rather than
// propagating NaN or a misleading 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, &VectorError{Reason: "empty vector"}
	}
	if len(a) != len(b) {
		return 0, &VectorError{Reason: fmt.Sprintf("length mismatch: %d vs %d", len(a), len(b))}
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, &VectorError{Reason: "zero-norm vector"}
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors.
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return similarity, nil
}

// SamePerson reports whether two face embeddings are at least threshold
// similar. The threshold is fixed, not adaptive; transitive clustering
// across more than two faces is the caller's concern.
func SamePerson(a, b []float32, threshold float64) (bool, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return false, err
	}
	return sim >= threshold, nil
}

// GridGenerator is the placeholder feature extractor: the face crop is
// resized to a fixed canvas, a coarse grid is sampled, and each cell
// contributes the mean of its RGB channels normalized to [0,1]. Not a
// trained recognizer.
type GridGenerator struct {
	canvas int
	stride int
}

// NewGridGenerator creates the default heuristic generator.
func NewGridGenerator() *GridGenerator {
	return &GridGenerator{
		canvas: constants.FaceCanvasSize,
		stride: 8,
	}
}

// Dim returns the fixed embedding length.
func (g *GridGenerator) Dim() int {
	return constants.EmbeddingDim
}

// Embed samples the canvas grid in raster order. If the grid yields fewer
// samples than the embedding length, remaining components stay zero.
func (g *GridGenerator) Embed(faceImg image.Image) ([]float32, error) {
	if faceImg == nil {
		return nil, &VectorError{Reason: "nil image"}
	}
	bounds := faceImg.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, &VectorError{Reason: "empty image"}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, g.canvas, g.canvas))
	draw.BiLinear.Scale(canvas, canvas.Bounds(), faceImg, bounds, draw.Over, nil)

	vec := make([]float32, constants.EmbeddingDim)
	idx := 0
	for y := 0; y < g.canvas && idx < len(vec); y += g.stride {
		for x := 0; x < g.canvas && idx < len(vec); x += g.stride {
			r, gc, b, _ := canvas.At(x, y).RGBA()
			mean := (float64(r>>8) + float64(gc>>8) + float64(b>>8)) / 3.0
			vec[idx] = float32(mean / 255.0)
			idx++
		}
	}
	return vec, nil
}
