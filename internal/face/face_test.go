package face

import (
	"image"
	"image/color"
	"testing"

	"github.com/phajek/mediascan/internal/media"
)

func TestExtractRegion_Padding(t *testing.T) {
	img := testImage(200, 200)
	box := media.BoundingBox{X1: 50, Y1: 50, X2: 100, Y2: 100}

	crop, err := ExtractRegion(img, box, 20)
	if err != nil {
		t.Fatalf("ExtractRegion failed: %v", err)
	}

	// 50px box + 20px padding on each side.
	if crop.Bounds().Dx() != 90 {
		t.Errorf("crop width = %d; want 90", crop.Bounds().Dx())
	}
	if crop.Bounds().Dy() != 90 {
		t.Errorf("crop height = %d; want 90", crop.Bounds().Dy())
	}
}

func TestExtractRegion_ClampsToBounds(t *testing.T) {
	img := testImage(100, 100)
	box := media.BoundingBox{X1: 0, Y1: 0, X2: 30, Y2: 30}

	crop, err := ExtractRegion(img, box, 20)
	if err != nil {
		t.Fatalf("ExtractRegion failed: %v", err)
	}

	// Padding clamps at the top-left corner.
	if crop.Bounds().Dx() != 50 {
		t.Errorf("crop width = %d; want 50", crop.Bounds().Dx())
	}
	if crop.Bounds().Dy() != 50 {
		t.Errorf("crop height = %d; want 50", crop.Bounds().Dy())
	}
}

func TestExtractRegion_ZeroAreaRejected(t *testing.T) {
	img := testImage(100, 100)

	// Entirely outside the image: clamps to nothing.
	box := media.BoundingBox{X1: 500, Y1: 500, X2: 600, Y2: 600}
	if _, err := ExtractRegion(img, box, 20); err == nil {
		t.Error("expected error for region outside image bounds")
	}

	// Degenerate box with no padding.
	degenerate := media.BoundingBox{X1: 50, Y1: 50, X2: 50, Y2: 50}
	if _, err := ExtractRegion(img, degenerate, 0); err == nil {
		t.Error("expected error for degenerate region")
	}
}

func TestExtractRegion_DoesNotAliasSource(t *testing.T) {
	img := testImage(100, 100)
	box := media.BoundingBox{X1: 10, Y1: 10, X2: 40, Y2: 40}

	crop, err := ExtractRegion(img, box, 0)
	if err != nil {
		t.Fatalf("ExtractRegion failed: %v", err)
	}

	before := crop.At(0, 0)
	img.Set(10, 10, color.RGBA{255, 0, 255, 255})
	after := crop.At(0, 0)

	if before != after {
		t.Error("crop pixels should not alias the source image")
	}
}

func TestComputeIoU(t *testing.T) {
	tests := []struct {
		name string
		a    media.BoundingBox
		b    media.BoundingBox
		want float64
	}{
		{
			"identical",
			media.BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10},
			media.BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10},
			1.0,
		},
		{
			"no overlap",
			media.BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10},
			media.BoundingBox{X1: 20, Y1: 20, X2: 30, Y2: 30},
			0.0,
		},
		{
			"half overlap",
			media.BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10},
			media.BoundingBox{X1: 5, Y1: 0, X2: 15, Y2: 10},
			50.0 / 150.0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeIoU(tc.a, tc.b)
			if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("ComputeIoU = %f; want %f", got, tc.want)
			}
		})
	}
}

func TestMergeOverlapping(t *testing.T) {
	overlapA := Region{BBox: media.BoundingBox{X1: 10, Y1: 10, X2: 50, Y2: 50}, Score: 8}
	overlapB := Region{BBox: media.BoundingBox{X1: 12, Y1: 12, X2: 52, Y2: 52}, Score: 15}
	distant := Region{BBox: media.BoundingBox{X1: 100, Y1: 100, X2: 140, Y2: 140}, Score: 6}

	merged := MergeOverlapping([]Region{overlapA, overlapB, distant}, 0.2)
	if len(merged) != 2 {
		t.Fatalf("expected 2 regions after merge, got %d", len(merged))
	}
	// The higher scored region of the overlapping pair survives.
	if merged[0].Score != 15 {
		t.Errorf("expected best region first, got score %f", merged[0].Score)
	}
	if merged[1].BBox != distant.BBox {
		t.Errorf("distant region should survive the merge: %+v", merged[1])
	}
}

func TestMergeOverlapping_SingleRegion(t *testing.T) {
	single := []Region{{BBox: media.BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10}, Score: 5}}
	if got := MergeOverlapping(single, 0.2); len(got) != 1 {
		t.Errorf("expected single region untouched, got %d", len(got))
	}
}

func TestNormalizePersonName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jan Novák", "jan novak"},
		{"jan-novak", "jan novak"},
		{"Jiří", "jiri"},
		{"  Anna  ", "anna"},
	}

	for _, tc := range tests {
		if got := NormalizePersonName(tc.in); got != tc.want {
			t.Errorf("NormalizePersonName(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestFilterByPerson(t *testing.T) {
	faces := []media.FaceRecord{
		{ItemID: "a.jpg", Index: 0, PersonID: "Jan Novák"},
		{ItemID: "b.jpg", Index: 1, PersonID: "jan-novak"},
		{ItemID: "c.jpg", Index: 0, PersonID: "Anna"},
		{ItemID: "d.jpg", Index: 0},
	}

	matched := FilterByPerson(faces, "JAN NOVAK")
	if len(matched) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matched))
	}
	if matched[0].ItemID != "a.jpg" || matched[1].ItemID != "b.jpg" {
		t.Errorf("unexpected matches: %+v", matched)
	}

	if got := FilterByPerson(faces, ""); got != nil {
		t.Errorf("empty name should match nothing, got %+v", got)
	}
	if got := FilterByPerson(faces, "nobody"); len(got) != 0 {
		t.Errorf("unknown name should match nothing, got %+v", got)
	}
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}
