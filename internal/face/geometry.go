package face

import (
	"sort"

	"github.com/phajek/mediascan/internal/media"
)

// ComputeIoU calculates Intersection over Union between two bounding boxes
// in the same coordinate system.
func ComputeIoU(a, b media.BoundingBox) float64 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection

	if union <= 0 {
		return 0
	}
	return intersection / union
}

// MergeOverlapping collapses raw detections that cover the same face.
// Regions are considered in descending score order; a region whose IoU with
// an already kept one exceeds iouThreshold is dropped.
func MergeOverlapping(regions []Region, iouThreshold float64) []Region {
	if len(regions) < 2 {
		return regions
	}

	sorted := make([]Region, len(regions))
	copy(sorted, regions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	merged := make([]Region, 0, len(sorted))
	for _, r := range sorted {
		overlaps := false
		for _, m := range merged {
			if ComputeIoU(r.BBox, m.BBox) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			merged = append(merged, r)
		}
	}
	return merged
}
