package phash

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        Hash
		b        Hash
		expected int
	}{
		{"identical", 0x0, 0x0, 0},
		{"completely different", 0xFFFFFFFFFFFFFFFF, 0x0, 64},
		{"one bit different", 0x1, 0x0, 1},
		{"three bits different", 0x7, 0x0, 3},
		{"half different", 0xFFFFFFFF00000000, 0x0, 32},
		{"alternating", 0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 64},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := HammingDistance(tc.a, tc.b)
			if result != tc.expected {
				t.Errorf("HammingDistance(%x, %x) = %d; want %d",
					tc.a, tc.b, result, tc.expected)
			}
		})
	}
}

func TestSimilarity_Reflexive(t *testing.T) {
	hashes := []Hash{0x0, 0xFFFFFFFFFFFFFFFF, 0xDEADBEEFCAFE0042}
	for _, h := range hashes {
		if got := Similarity(h, h); got != 1.0 {
			t.Errorf("Similarity(%x, %x) = %f; want 1.0", h, h, got)
		}
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	a, b := Hash(0xDEADBEEF00000000), Hash(0x00000000CAFEBABE)
	if Similarity(a, b) != Similarity(b, a) {
		t.Errorf("Similarity is not symmetric for %x and %x", a, b)
	}
}

func TestSimilarity_ThreeBitsScenario(t *testing.T) {
	// 64 zero bits vs a hash differing in exactly 3 bits.
	a, b := Hash(0x0), Hash(0x7)

	got := Similarity(a, b)
	want := 1 - 3.0/64.0 // 0.953125
	if got != want {
		t.Errorf("Similarity = %f; want %f", got, want)
	}

	if !AreNearDuplicates(a, b, 0.90) {
		t.Error("3-bit difference should qualify as near-duplicate at 0.90")
	}
}

func TestAreNearDuplicates_ThresholdMonotonicity(t *testing.T) {
	a, b := Hash(0x0), Hash(0x3FF) // 10 bits apart, similarity 0.84375

	thresholds := []float64{0.95, 0.90, 0.84375, 0.80, 0.50, 0.0}
	wasTrue := false
	for _, th := range thresholds {
		got := AreNearDuplicates(a, b, th)
		if wasTrue && !got {
			t.Errorf("monotonicity violated: true at a higher threshold but false at %f", th)
		}
		if got {
			wasTrue = true
		}
	}
	if !wasTrue {
		t.Error("expected near-duplicate at threshold 0")
	}
}

func TestCompute_Deterministic(t *testing.T) {
	img := gradientImage(100, 80)

	h1 := Compute(img)
	h2 := Compute(img)

	if h1 != h2 {
		t.Errorf("hash not deterministic: %s vs %s", h1.Hex(), h2.Hex())
	}
}

func TestCompute_UniformImageIsZero(t *testing.T) {
	// No horizontal gradient means no bit is ever set.
	img := solidImage(64, 64, color.RGBA{128, 128, 128, 255})

	if h := Compute(img); h != 0 {
		t.Errorf("uniform image should hash to 0, got %s", h.Hex())
	}
}

func TestCompute_HorizontalGradientSetsAllBits(t *testing.T) {
	// Strictly brightening left to right: every left sample is darker.
	img := gradientImage(90, 80)

	if h := Compute(img); h != 0xFFFFFFFFFFFFFFFF {
		t.Errorf("brightening gradient should set all bits, got %s", h.Hex())
	}
}

func TestHexRoundTrip(t *testing.T) {
	hashes := []Hash{0x0, 0x1, 0xFFFFFFFFFFFFFFFF, 0x0123456789ABCDEF}
	for _, h := range hashes {
		s := h.Hex()
		if len(s) != 16 {
			t.Errorf("Hex() should be 16 characters, got %d: %s", len(s), s)
		}
		parsed, err := ParseHex(s)
		if err != nil {
			t.Fatalf("ParseHex(%s) failed: %v", s, err)
		}
		if parsed != h {
			t.Errorf("round trip mismatch: %x -> %s -> %x", h, s, parsed)
		}
	}
}

func TestSimilarityHex_Errors(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
	}{
		{"empty first", "", "0000000000000000"},
		{"empty second", "0000000000000000", ""},
		{"length mismatch", "0000000000000000", "00000000"},
		{"invalid hex", "zzzzzzzzzzzzzzzz", "0000000000000000"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := SimilarityHex(tc.a, tc.b)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var hashErr *HashError
			if !errors.As(err, &hashErr) {
				t.Errorf("expected *HashError, got %T: %v", err, err)
			}
		})
	}
}

func TestSimilarityHex_Valid(t *testing.T) {
	got, err := SimilarityHex("0000000000000000", "0000000000000007")
	if err != nil {
		t.Fatalf("SimilarityHex failed: %v", err)
	}
	if got != 0.953125 {
		t.Errorf("SimilarityHex = %f; want 0.953125", got)
	}
}

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func gradientImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := uint8(x * 255 / (w - 1))
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}
