package detector

import (
	"sort"

	"github.com/MeKo-Tech/ledgerscan/internal/layout"
)

// NonMaxSuppression keeps the most confident of every group of regions that
// overlap by more than iouThreshold. Ties keep the earlier region; the
// survivors retain their input order.
func NonMaxSuppression(regions []layout.Region, iouThreshold float64) []layout.Region {
	if len(regions) <= 1 {
		return regions
	}
	idx := make([]int, len(regions))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return regions[idx[a]].Confidence > regions[idx[b]].Confidence
	})

	suppressed := make([]bool, len(regions))
	for n, a := range idx {
		if suppressed[a] {
			continue
		}
		for _, b := range idx[n+1:] {
			if !suppressed[b] && regions[a].Box.IoU(regions[b].Box) > iouThreshold {
				suppressed[b] = true
			}
		}
	}
	kept := make([]layout.Region, 0, len(regions))
	for i, r := range regions {
		if !suppressed[i] {
			kept = append(kept, r)
		}
	}
	return kept
}
