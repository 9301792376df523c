package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/phajek/mediascan/internal/media"
	"github.com/phajek/mediascan/internal/phash"
)

func TestStore_HashRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	if has, _ := s.HasHash(ctx, "a"); has {
		t.Error("empty store should have no hash")
	}

	if err := s.SaveHash(ctx, "a", phash.Hash(0xABCD)); err != nil {
		t.Fatalf("SaveHash failed: %v", err)
	}

	h, err := s.GetHash(ctx, "a")
	if err != nil {
		t.Fatalf("GetHash failed: %v", err)
	}
	if h == nil || *h != 0xABCD {
		t.Errorf("GetHash = %v; want 0xABCD", h)
	}

	// Overwrite, not duplicate.
	if err := s.SaveHash(ctx, "a", phash.Hash(0x1234)); err != nil {
		t.Fatal(err)
	}
	all, err := s.ListHashes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all["a"] != 0x1234 {
		t.Errorf("ListHashes = %v; want single overwritten entry", all)
	}
}

func TestStore_SaveFacesReplaces(t *testing.T) {
	ctx := context.Background()
	s := New()

	first := []media.FaceRecord{{ItemID: "a", Index: 0, Embedding: []float32{1, 2}}}
	second := []media.FaceRecord{
		{ItemID: "a", Index: 0, Embedding: []float32{3}},
		{ItemID: "a", Index: 1, Embedding: []float32{4}},
	}

	if err := s.SaveFaces(ctx, "a", first); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveFaces(ctx, "a", second); err != nil {
		t.Fatal(err)
	}

	faces, err := s.GetFaces(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(faces) != 2 {
		t.Errorf("expected replace semantics, got %d faces", len(faces))
	}
}

func TestStore_EmptyFacesMarksProcessed(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.SaveFaces(ctx, "a", nil); err != nil {
		t.Fatal(err)
	}

	done, err := s.IsFacesProcessed(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Error("item with zero faces must still count as processed")
	}
}

func TestStore_FacesDoNotAliasInput(t *testing.T) {
	ctx := context.Background()
	s := New()

	emb := []float32{1, 2, 3}
	if err := s.SaveFaces(ctx, "a", []media.FaceRecord{{ItemID: "a", Embedding: emb}}); err != nil {
		t.Fatal(err)
	}
	emb[0] = 99

	faces, _ := s.GetFaces(ctx, "a")
	if faces[0].Embedding[0] != 1 {
		t.Error("stored embedding must not alias the caller's buffer")
	}
}

func TestStore_AnnotationsAppendAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.SaveAnnotations(ctx, "a", []media.Annotation{
		{ItemID: "a", Kind: media.KindLabel, Text: "cat", Confidence: 0.9},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveAnnotations(ctx, "a", []media.Annotation{
		{ItemID: "a", Kind: media.KindExtractedText, Text: "receipt total 42", Confidence: 0.8},
	}); err != nil {
		t.Fatal(err)
	}

	all, err := s.GetAnnotations(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 annotations, got %d", len(all))
	}

	hasText, _ := s.HasAnnotations(ctx, "a", media.KindExtractedText)
	if !hasText {
		t.Error("expected extracted-text annotation to be present")
	}

	if err := s.DeleteAnnotations(ctx, "a", media.KindLabel); err != nil {
		t.Fatal(err)
	}
	hasLabel, _ := s.HasAnnotations(ctx, "a", media.KindLabel)
	if hasLabel {
		t.Error("labels should be gone after DeleteAnnotations")
	}
	hasText, _ = s.HasAnnotations(ctx, "a", media.KindExtractedText)
	if !hasText {
		t.Error("other kinds must survive DeleteAnnotations")
	}
}

func TestStore_ErrorInjection(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")
	s.SaveHashError = boom

	if err := s.SaveHash(ctx, "a", 1); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}
}
