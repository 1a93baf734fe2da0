package layout

import (
	"math"
	"sort"

	"github.com/MeKo-Tech/ledgerscan/internal/utils"
)

// RowThreshold returns half the mean box height, the maximum centre
// distance for two boxes to share a row.
func RowThreshold(boxes []utils.Box) float64 {
	if len(boxes) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range boxes {
		sum += b.Height()
	}
	return sum / float64(len(boxes)) / 2
}

// GroupRows groups box indices into rows in reading order: boxes whose
// vertical centres are closer than RowThreshold share a row, rows are
// sorted top to bottom by their minimum y and boxes within a row left to
// right by their left edge. Ties fall back to input index.
func GroupRows(boxes []utils.Box) [][]int {
	if len(boxes) == 0 {
		return nil
	}
	threshold := RowThreshold(boxes)

	byCenter := make([]int, len(boxes))
	for i := range byCenter {
		byCenter[i] = i
	}
	sort.SliceStable(byCenter, func(a, b int) bool {
		return boxes[byCenter[a]].CenterY() < boxes[byCenter[b]].CenterY()
	})

	var rows [][]int
	anchor := math.Inf(-1)
	for _, idx := range byCenter {
		cy := boxes[idx].CenterY()
		if len(rows) == 0 || math.Abs(cy-anchor) >= threshold {
			rows = append(rows, []int{idx})
			anchor = cy
			continue
		}
		rows[len(rows)-1] = append(rows[len(rows)-1], idx)
	}

	for _, row := range rows {
		sort.SliceStable(row, func(a, b int) bool {
			ba, bb := boxes[row[a]], boxes[row[b]]
			if ba.MinX != bb.MinX {
				return ba.MinX < bb.MinX
			}
			return row[a] < row[b]
		})
	}

	rowTop := func(row []int) (float64, int) {
		top, first := math.Inf(1), math.MaxInt
		for _, idx := range row {
			top = math.Min(top, boxes[idx].MinY)
			first = min(first, idx)
		}
		return top, first
	}
	sort.SliceStable(rows, func(a, b int) bool {
		ta, fa := rowTop(rows[a])
		tb, fb := rowTop(rows[b])
		if ta != tb {
			return ta < tb
		}
		return fa < fb
	})
	return rows
}

// Order returns region indices in reading order.
func Order(regions []Region) []int {
	boxes := make([]utils.Box, len(regions))
	for i, r := range regions {
		boxes[i] = r.Box
	}
	rows := GroupRows(boxes)
	out := make([]int, 0, len(regions))
	for _, row := range rows {
		out = append(out, row...)
	}
	return out
}
