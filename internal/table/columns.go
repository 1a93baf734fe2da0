package table

import (
	"math"
	"sort"

	"github.com/MeKo-Tech/ledgerscan/internal/utils"
)

type span struct{ min, max float64 }

// clusterColumns assigns every box a column index, columns numbered left to
// right. Spans are built from boxes in multi-cell rows, so page titles and
// wrapped lines cannot bridge two columns; the rest join the span they
// overlap most, or the nearest one.
func clusterColumns(boxes []utils.Box, groups [][]int, gap float64) []int {
	var seeds []int
	for _, g := range groups {
		if len(g) >= 2 {
			seeds = append(seeds, g...)
		}
	}
	if len(seeds) == 0 {
		for i := range boxes {
			seeds = append(seeds, i)
		}
	}
	sort.SliceStable(seeds, func(a, b int) bool {
		if boxes[seeds[a]].MinX != boxes[seeds[b]].MinX {
			return boxes[seeds[a]].MinX < boxes[seeds[b]].MinX
		}
		return seeds[a] < seeds[b]
	})

	var spans []span
	for _, i := range seeds {
		b := boxes[i]
		if n := len(spans); n > 0 && b.MinX <= spans[n-1].max+gap {
			spans[n-1].max = math.Max(spans[n-1].max, b.MaxX)
			continue
		}
		spans = append(spans, span{min: b.MinX, max: b.MaxX})
	}

	out := make([]int, len(boxes))
	for i, b := range boxes {
		out[i] = nearestSpan(spans, b)
	}
	return out
}

func nearestSpan(spans []span, b utils.Box) int {
	best, bestOverlap, bestDist := 0, 0.0, math.Inf(1)
	for i, s := range spans {
		overlap := math.Min(s.max, b.MaxX) - math.Max(s.min, b.MinX)
		if overlap > bestOverlap {
			best, bestOverlap = i, overlap
			continue
		}
		if bestOverlap > 0 {
			continue
		}
		dist := math.Max(s.min-b.MaxX, b.MinX-s.max)
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

func columnCount(columns []int) int {
	n := 0
	for _, c := range columns {
		n = max(n, c+1)
	}
	return n
}
