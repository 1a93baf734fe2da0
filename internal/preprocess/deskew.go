package preprocess

import (
	"image"
	"math"

	"github.com/MeKo-Tech/ledgerscan/internal/utils"
	"github.com/disintegration/imaging"
)

const (
	skewSampleSide = 800
	skewStepDeg    = 0.5
	// minimum relative gain over the unrotated profile before a rotation is
	// reported
	skewMinGain = 1.05
)

// EstimateSkew searches [-maxDeg, maxDeg] for the rotation that makes the
// horizontal ink profile sharpest and returns it in degrees, counter-clockwise
// as imaging.Rotate expects. Zero means no correction; it wins ties and any
// gain below skewMinGain.
func EstimateSkew(img *image.NRGBA, maxDeg float64) float64 {
	if img == nil || maxDeg <= 0 {
		return 0
	}
	sample := img
	if b := img.Bounds(); b.Dx() > skewSampleSide || b.Dy() > skewSampleSide {
		sample = imaging.Fit(img, skewSampleSide, skewSampleSide, imaging.Box)
	}
	w, h := sample.Bounds().Dx(), sample.Bounds().Dy()
	ink := inkPoints(sample)
	if len(ink) == 0 || len(ink) == w*h {
		return 0
	}

	base := profileScore(ink, w, h, 0)
	bestAngle, bestScore := 0.0, base
	for a := skewStepDeg; a <= maxDeg+1e-9; a += skewStepDeg {
		for _, angle := range []float64{-a, a} {
			if score := profileScore(ink, w, h, angle); score > bestScore {
				bestAngle, bestScore = angle, score
			}
		}
	}
	if bestScore < base*skewMinGain {
		return 0
	}
	return bestAngle
}

// inkPoints returns the Otsu ink pixels of img.
func inkPoints(img *image.NRGBA) []image.Point {
	w := img.Bounds().Dx()
	lum := utils.Luminance(img)
	t := OtsuThreshold(lum)
	var pts []image.Point
	for i, v := range lum {
		if v <= t {
			pts = append(pts, image.Point{X: i % w, Y: i / w})
		}
	}
	return pts
}

// profileScore projects the ink, rotated counter-clockwise by deg, onto rows
// and returns the sum of squared row counts. Text lines aligned with the rows
// give tall narrow peaks. Points are rotated exactly, so the unrotated
// profile is never blurred by resampling.
func profileScore(ink []image.Point, w, h int, deg float64) float64 {
	sin, cos := math.Sincos(deg * math.Pi / 180)
	rows := make([]float64, h+2*w+2)
	for _, pt := range ink {
		y := float64(pt.Y)*cos - float64(pt.X)*sin
		rows[int(math.Round(y))+w+1]++
	}
	var score float64
	for _, n := range rows {
		score += n * n
	}
	return score
}
