// Package media defines the domain model shared by all processing stages.
package media

import "github.com/phajek/mediascan/internal/phash"

// MediaItem is a single photo or video known to the library.
// The perceptual hash is nil until the hashing stage has run.
type MediaItem struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	IsVideo bool   `json:"is_video"`

	PerceptualHash *phash.Hash `json:"perceptual_hash,omitempty"`
}

// HasHash reports whether the hashing stage has produced a fingerprint.
func (m *MediaItem) HasHash() bool {
	return m.PerceptualHash != nil
}

// BoundingBox is an axis-aligned rectangle in source-image pixel coordinates.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the box width in pixels.
func (b BoundingBox) Width() float64 { return b.X2 - b.X1 }

// Height returns the box height in pixels.
func (b BoundingBox) Height() float64 { return b.Y2 - b.Y1 }

// Area returns the box area. Degenerate boxes have zero area.
func (b BoundingBox) Area() float64 {
	if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
		return 0
	}
	return b.Width() * b.Height()
}

// FaceRecord is a detected face belonging to exactly one MediaItem.
// PersonID is a label assigned by an external clustering/naming step,
// never set by the processing pipeline itself.
type FaceRecord struct {
	ItemID     string      `json:"item_id"`
	Index      int         `json:"index"`
	BBox       BoundingBox `json:"bbox"`
	Embedding  []float32   `json:"embedding"`
	Confidence float64     `json:"confidence"`
	PersonID   string      `json:"person_id,omitempty"`
}

// AnnotationKind distinguishes object/scene labels from extracted text.
type AnnotationKind string

const (
	// KindLabel is an object or scene tag.
	KindLabel AnnotationKind = "label"
	// KindExtractedText is OCR output stored alongside labels.
	KindExtractedText AnnotationKind = "text"
)

// Annotation is a label or extracted-text row for a MediaItem.
// Confidence is in [0,1]. Insertion order is irrelevant.
type Annotation struct {
	ItemID     string         `json:"item_id"`
	Kind       AnnotationKind `json:"kind"`
	Text       string         `json:"text"`
	Confidence float64        `json:"confidence"`
}
