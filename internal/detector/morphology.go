package detector

// closeRows fills background gaps of at most gap pixels between two set
// pixels on the same row. Vertical structure is untouched, so text lines
// stay apart while words on a line join.
func closeRows(mask []bool, w, h, gap int) []bool {
	out := make([]bool, len(mask))
	copy(out, mask)
	if gap <= 0 {
		return out
	}
	for y := range h {
		row := out[y*w : (y+1)*w]
		last := -1
		for x := range w {
			if !mask[y*w+x] {
				continue
			}
			if last >= 0 && x-last-1 <= gap {
				for i := last + 1; i < x; i++ {
					row[i] = true
				}
			}
			last = x
		}
	}
	return out
}

// dilate grows set pixels by a square kernel of the given size.
func dilate(mask []bool, w, h, kernel int) []bool {
	if kernel <= 1 {
		return mask
	}
	half := kernel / 2
	out := make([]bool, len(mask))
	for y := range h {
		for x := range w {
			if !mask[y*w+x] {
				continue
			}
			for ky := max(0, y-half); ky <= min(h-1, y+half); ky++ {
				for kx := max(0, x-half); kx <= min(w-1, x+half); kx++ {
					out[ky*w+kx] = true
				}
			}
		}
	}
	return out
}
