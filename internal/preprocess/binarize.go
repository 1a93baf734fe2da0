package preprocess

import "github.com/MeKo-Tech/ledgerscan/internal/mempool"

// OtsuThreshold returns the luminance level that maximises between-class
// variance. Pixels at or below it are ink.
func OtsuThreshold(lum []uint8) uint8 {
	if len(lum) == 0 {
		return 0
	}
	var hist [256]int
	for _, v := range lum {
		hist[v]++
	}
	total := float64(len(lum))
	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i * c)
	}

	var (
		sumBg, wBg float64
		best       float64
		level      uint8
	)
	for t := range 256 {
		wBg += float64(hist[t])
		if wBg == 0 {
			continue
		}
		wFg := total - wBg
		if wFg == 0 {
			break
		}
		sumBg += float64(t * hist[t])
		mBg := sumBg / wBg
		mFg := (sumAll - sumBg) / wFg
		between := wBg * wFg * (mBg - mFg) * (mBg - mFg)
		if between > best {
			best = between
			level = uint8(t)
		}
	}
	return level
}

// Contrast returns max-min luminance.
func Contrast(lum []uint8) int {
	if len(lum) == 0 {
		return 0
	}
	lo, hi := lum[0], lum[0]
	for _, v := range lum {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return int(hi) - int(lo)
}

// InkMask marks pixels at or below threshold. The mask comes from the
// shared pool; release it with mempool.PutBool.
func InkMask(lum []uint8, threshold uint8) []bool {
	mask := mempool.GetBool(len(lum))
	for i, v := range lum {
		mask[i] = v <= threshold
	}
	return mask
}

// RuledLines marks ink pixels that belong to a horizontal or vertical run of
// at least minLen pixels. This is a morphological opening with 1xL and Lx1
// rectangles.
func RuledLines(ink []bool, w, h, minLen int) []bool {
	lines := make([]bool, len(ink))
	if minLen <= 0 {
		return lines
	}
	for y := range h {
		row := y * w
		for x := 0; x < w; {
			if !ink[row+x] {
				x++
				continue
			}
			end := x
			for end < w && ink[row+end] {
				end++
			}
			if end-x >= minLen {
				for i := x; i < end; i++ {
					lines[row+i] = true
				}
			}
			x = end
		}
	}
	for x := range w {
		for y := 0; y < h; {
			if !ink[y*w+x] {
				y++
				continue
			}
			end := y
			for end < h && ink[end*w+x] {
				end++
			}
			if end-y >= minLen {
				for i := y; i < end; i++ {
					lines[i*w+x] = true
				}
			}
			y = end
		}
	}
	return lines
}

// RemoveRuledLines clears ruled-line pixels from ink in place and returns
// how many were removed.
func RemoveRuledLines(ink []bool, w, h, minLen int) int {
	lines := RuledLines(ink, w, h, minLen)
	removed := 0
	for i, l := range lines {
		if l && ink[i] {
			ink[i] = false
			removed++
		}
	}
	return removed
}
