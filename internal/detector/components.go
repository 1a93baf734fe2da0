package detector

import (
	"github.com/MeKo-Tech/ledgerscan/internal/utils"
)

// component summarises one connected component of a mask.
type component struct {
	count int
	sum   float64 // of the value map, when one is given
	minX  int
	minY  int
	maxX  int
	maxY  int
}

func (c component) box() utils.Box {
	return utils.NewBox(float64(c.minX), float64(c.minY), float64(c.maxX+1), float64(c.maxY+1))
}

func (c component) width() int  { return c.maxX - c.minX + 1 }
func (c component) height() int { return c.maxY - c.minY + 1 }

func (c component) mean() float64 {
	if c.count == 0 {
		return 0
	}
	return c.sum / float64(c.count)
}

var (
	neighbors4 = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	neighbors8 = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// connectedComponents labels mask in raster-scan order of each component's
// first pixel. labels[i] is 1-based, 0 for background. values may be nil.
func connectedComponents(mask []bool, values []float32, w, h int, eight bool) ([]component, []int32) {
	dirs := neighbors4
	if eight {
		dirs = neighbors8
	}
	labels := make([]int32, w*h)
	var (
		comps []component
		stack []int
	)
	for seed := range w * h {
		if !mask[seed] || labels[seed] != 0 {
			continue
		}
		label := int32(len(comps) + 1)
		sx, sy := seed%w, seed/w
		c := component{minX: sx, minY: sy, maxX: sx, maxY: sy}
		labels[seed] = label
		stack = append(stack[:0], seed)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			c.count++
			if values != nil {
				c.sum += float64(values[i])
			}
			c.minX, c.maxX = min(c.minX, x), max(c.maxX, x)
			c.minY, c.maxY = min(c.minY, y), max(c.maxY, y)
			for _, d := range dirs {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				ni := ny*w + nx
				if mask[ni] && labels[ni] == 0 {
					labels[ni] = label
					stack = append(stack, ni)
				}
			}
		}
		comps = append(comps, c)
	}
	return comps, labels
}
