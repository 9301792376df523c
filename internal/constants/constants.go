// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Fingerprint constants
const (
	// HashBits is the size of a perceptual hash in bits
	HashBits = 64

	// DefaultDuplicateThreshold is the minimum hash similarity for near-duplicate grouping
	DefaultDuplicateThreshold = 0.90
)

// Embedding constants
const (
	// EmbeddingDim is the fixed length of a face embedding vector
	EmbeddingDim = 128

	// DefaultSamePersonThreshold is the minimum cosine similarity to consider
	// two face embeddings the same person
	DefaultSamePersonThreshold = 0.70
)

// Face detection constants
const (
	// DefaultRegionPadding is the padding in pixels added around a detected
	// face bounding box when extracting the crop
	DefaultRegionPadding = 20

	// FaceCanvasSize is the square canvas a face crop is resized to before
	// feature extraction
	FaceCanvasSize = 112

	// DetectionIoUThreshold is the IoU above which two raw detections are
	// considered the same face
	DetectionIoUThreshold = 0.2
)

// Processing constants
const (
	// DefaultBatchSize is the number of items processed per batch
	DefaultBatchSize = 50

	// YieldInterval is the number of items between cooperative yields
	YieldInterval = 5

	// MaxDecodeDimension is the maximum long-edge size for decoded images
	MaxDecodeDimension = 1024
)
