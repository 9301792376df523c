// Package store defines the persistence contracts the pipeline writes
// through. Writes are per-item, per-stage atomic: concurrent readers may
// observe a partially processed item, never a half-written record.
package store

import (
	"context"

	"github.com/phajek/mediascan/internal/media"
	"github.com/phajek/mediascan/internal/phash"
)

// HashReader provides read-only access to perceptual hashes.
type HashReader interface {
	// GetHash retrieves the hash for an item, nil if not computed yet.
	GetHash(ctx context.Context, itemID string) (*phash.Hash, error)
	// HasHash checks whether the hashing stage has run for an item.
	HasHash(ctx context.Context, itemID string) (bool, error)
	// ListHashes returns all stored hashes keyed by item id.
	ListHashes(ctx context.Context) (map[string]phash.Hash, error)
}

// HashWriter provides write access to perceptual hashes.
type HashWriter interface {
	HashReader

	// SaveHash stores the hash for an item, overwriting any previous value.
	SaveHash(ctx context.Context, itemID string, hash phash.Hash) error
}

// FaceReader provides read-only access to face records.
type FaceReader interface {
	// GetFaces retrieves all faces for an item.
	GetFaces(ctx context.Context, itemID string) ([]media.FaceRecord, error)
	// IsFacesProcessed checks whether face detection has run for an item,
	// regardless of whether any faces were found.
	IsFacesProcessed(ctx context.Context, itemID string) (bool, error)
	// CountFaces returns the total number of faces stored.
	CountFaces(ctx context.Context) (int, error)
	// AllFaces returns every stored face, for index building.
	AllFaces(ctx context.Context) ([]media.FaceRecord, error)
}

// FaceWriter provides write access to face records.
type FaceWriter interface {
	FaceReader

	// SaveFaces stores the faces for an item, replacing any previous set,
	// and marks the item as processed even when the set is empty.
	SaveFaces(ctx context.Context, itemID string, faces []media.FaceRecord) error
}

// AnnotationReader provides read-only access to labels and extracted text.
type AnnotationReader interface {
	// GetAnnotations retrieves all annotations for an item.
	GetAnnotations(ctx context.Context, itemID string) ([]media.Annotation, error)
	// HasAnnotations checks whether any annotation of the given kind exists.
	HasAnnotations(ctx context.Context, itemID string, kind media.AnnotationKind) (bool, error)
}

// AnnotationWriter provides write access to annotations.
type AnnotationWriter interface {
	AnnotationReader

	// SaveAnnotations appends annotations for an item.
	SaveAnnotations(ctx context.Context, itemID string, annotations []media.Annotation) error
	// DeleteAnnotations removes all annotations of a kind for an item.
	// Used by forced reprocessing to keep overwrite semantics.
	DeleteAnnotations(ctx context.Context, itemID string, kind media.AnnotationKind) error
}

// Store is the full persistence surface the pipeline needs.
type Store interface {
	HashWriter
	FaceWriter
	AnnotationWriter
}
