// Package memory provides an in-memory implementation of the store
// interfaces, used as the default store and as a test double.
package memory

import (
	"context"
	"sync"

	"github.com/phajek/mediascan/internal/media"
	"github.com/phajek/mediascan/internal/phash"
)

// Store is a thread-safe in-memory store. The exported error fields allow
// tests to inject failures per operation.
type Store struct {
	mu          sync.RWMutex
	hashes      map[string]phash.Hash
	faces       map[string][]media.FaceRecord
	facesDone   map[string]bool
	annotations map[string][]media.Annotation

	// Error injection
	GetHashError         error
	SaveHashError        error
	GetFacesError        error
	SaveFacesError       error
	GetAnnotationsError  error
	SaveAnnotationsError error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		hashes:      make(map[string]phash.Hash),
		faces:       make(map[string][]media.FaceRecord),
		facesDone:   make(map[string]bool),
		annotations: make(map[string][]media.Annotation),
	}
}

// GetHash retrieves the hash for an item, nil if not computed yet.
func (s *Store) GetHash(ctx context.Context, itemID string) (*phash.Hash, error) {
	if s.GetHashError != nil {
		return nil, s.GetHashError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hashes[itemID]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

// HasHash checks whether the hashing stage has run for an item.
func (s *Store) HasHash(ctx context.Context, itemID string) (bool, error) {
	if s.GetHashError != nil {
		return false, s.GetHashError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.hashes[itemID]
	return ok, nil
}

// ListHashes returns a copy of all stored hashes keyed by item id.
func (s *Store) ListHashes(ctx context.Context) (map[string]phash.Hash, error) {
	if s.GetHashError != nil {
		return nil, s.GetHashError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]phash.Hash, len(s.hashes))
	for id, h := range s.hashes {
		out[id] = h
	}
	return out, nil
}

// SaveHash stores the hash for an item, overwriting any previous value.
func (s *Store) SaveHash(ctx context.Context, itemID string, hash phash.Hash) error {
	if s.SaveHashError != nil {
		return s.SaveHashError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[itemID] = hash
	return nil
}

// GetFaces retrieves all faces for an item.
func (s *Store) GetFaces(ctx context.Context, itemID string) ([]media.FaceRecord, error) {
	if s.GetFacesError != nil {
		return nil, s.GetFacesError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyFaces(s.faces[itemID]), nil
}

// IsFacesProcessed checks whether face detection has run for an item.
func (s *Store) IsFacesProcessed(ctx context.Context, itemID string) (bool, error) {
	if s.GetFacesError != nil {
		return false, s.GetFacesError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facesDone[itemID], nil
}

// CountFaces returns the total number of faces stored.
func (s *Store) CountFaces(ctx context.Context) (int, error) {
	if s.GetFacesError != nil {
		return 0, s.GetFacesError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, faces := range s.faces {
		n += len(faces)
	}
	return n, nil
}

// AllFaces returns every stored face.
func (s *Store) AllFaces(ctx context.Context) ([]media.FaceRecord, error) {
	if s.GetFacesError != nil {
		return nil, s.GetFacesError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []media.FaceRecord
	for _, faces := range s.faces {
		out = append(out, copyFaces(faces)...)
	}
	return out, nil
}

// SaveFaces replaces the face set for an item and marks it processed.
func (s *Store) SaveFaces(ctx context.Context, itemID string, faces []media.FaceRecord) error {
	if s.SaveFacesError != nil {
		return s.SaveFacesError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faces[itemID] = copyFaces(faces)
	s.facesDone[itemID] = true
	return nil
}

// GetAnnotations retrieves all annotations for an item.
func (s *Store) GetAnnotations(ctx context.Context, itemID string) ([]media.Annotation, error) {
	if s.GetAnnotationsError != nil {
		return nil, s.GetAnnotationsError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]media.Annotation, len(s.annotations[itemID]))
	copy(out, s.annotations[itemID])
	return out, nil
}

// HasAnnotations checks whether any annotation of the given kind exists.
func (s *Store) HasAnnotations(ctx context.Context, itemID string, kind media.AnnotationKind) (bool, error) {
	if s.GetAnnotationsError != nil {
		return false, s.GetAnnotationsError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.annotations[itemID] {
		if a.Kind == kind {
			return true, nil
		}
	}
	return false, nil
}

// SaveAnnotations appends annotations for an item.
func (s *Store) SaveAnnotations(ctx context.Context, itemID string, annotations []media.Annotation) error {
	if s.SaveAnnotationsError != nil {
		return s.SaveAnnotationsError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.annotations[itemID] = append(s.annotations[itemID], annotations...)
	return nil
}

// DeleteAnnotations removes all annotations of a kind for an item.
func (s *Store) DeleteAnnotations(ctx context.Context, itemID string, kind media.AnnotationKind) error {
	if s.SaveAnnotationsError != nil {
		return s.SaveAnnotationsError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.annotations[itemID][:0]
	for _, a := range s.annotations[itemID] {
		if a.Kind != kind {
			kept = append(kept, a)
		}
	}
	s.annotations[itemID] = kept
	return nil
}

// copyFaces deep-copies face records so stored embeddings never alias the
// pipeline's working buffers.
func copyFaces(faces []media.FaceRecord) []media.FaceRecord {
	out := make([]media.FaceRecord, len(faces))
	for i, f := range faces {
		out[i] = f
		out[i].Embedding = make([]float32, len(f.Embedding))
		copy(out[i].Embedding, f.Embedding)
	}
	return out
}
