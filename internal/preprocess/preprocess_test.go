package preprocess

import (
	"image"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/ledgerscan/internal/utils"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOtsuThresholdSplitsBimodal(t *testing.T) {
	lum := make([]uint8, 0, 200)
	for range 150 {
		lum = append(lum, 230)
	}
	for range 50 {
		lum = append(lum, 20)
	}
	level := OtsuThreshold(lum)
	assert.GreaterOrEqual(t, level, uint8(20))
	assert.Less(t, level, uint8(230))

	assert.Equal(t, uint8(0), OtsuThreshold(nil))
}

func TestOtsuThresholdUniformHasNoInk(t *testing.T) {
	lum := []uint8{255, 255, 255, 255}
	mask := InkMask(lum, OtsuThreshold(lum))
	for _, m := range mask {
		assert.False(t, m)
	}
	assert.Equal(t, 0, Contrast(lum))
}

func TestRuledLines(t *testing.T) {
	const w, h = 12, 6
	ink := make([]bool, w*h)
	for x := range w {
		ink[2*w+x] = true // full horizontal rule
	}
	ink[4*w+3] = true // isolated glyph pixel
	ink[4*w+4] = true

	removed := RemoveRuledLines(ink, w, h, 10)
	assert.Equal(t, w, removed)
	for x := range w {
		assert.False(t, ink[2*w+x])
	}
	assert.True(t, ink[4*w+3])
	assert.True(t, ink[4*w+4])
}

func TestRuledLinesVertical(t *testing.T) {
	const w, h = 5, 20
	ink := make([]bool, w*h)
	for y := range h {
		ink[y*w+1] = true
	}
	lines := RuledLines(ink, w, h, 15)
	for y := range h {
		assert.True(t, lines[y*w+1])
	}
	assert.Zero(t, RemoveRuledLines(make([]bool, w*h), w, h, 0))
}

func statementLike() *image.NRGBA {
	img := imaging.New(200, 80, utils.White)
	black := color.NRGBA{A: 255}
	// ruled line across the page
	for x := range 200 {
		img.Set(x, 40, black)
	}
	// a short block of "text"
	for y := 10; y < 20; y++ {
		for x := 20; x < 50; x++ {
			img.Set(x, y, black)
		}
	}
	return img
}

func TestCleanRemovesRuledLines(t *testing.T) {
	src := statementLike()
	res := Clean(src, DefaultConfig())
	require.True(t, res.Binarized)
	assert.Equal(t, 200, res.LinePixels)

	r, _, _, _ := res.Image.At(100, 40).RGBA()
	assert.Equal(t, uint32(0xffff), r, "rule cleared")
	r, _, _, _ = res.Image.At(30, 15).RGBA()
	assert.Equal(t, uint32(0), r, "text kept")

	r, _, _, _ = src.At(100, 40).RGBA()
	assert.Equal(t, uint32(0), r, "input untouched")
}

func TestCleanDisabled(t *testing.T) {
	src := statementLike()
	res := Clean(src, Config{})
	assert.Same(t, src, res.Image)
	assert.False(t, res.Binarized)
}

// stripedPage draws five dashed text-like lines.
func stripedPage() *image.NRGBA {
	img := imaging.New(300, 200, utils.White)
	for _, y := range []int{30, 60, 90, 120, 150} {
		for yy := y; yy < y+6; yy++ {
			for x := 20; x < 280; x += 3 {
				img.Set(x, yy, color.NRGBA{A: 255})
				img.Set(x+1, yy, color.NRGBA{A: 255})
			}
		}
	}
	return img
}

func TestEstimateSkewStraightPage(t *testing.T) {
	img := stripedPage()
	assert.InDelta(t, 0.0, EstimateSkew(img, 3), 1e-9)

	rotated := imaging.Rotate(img, 2, utils.White)
	angle := EstimateSkew(rotated, 3)
	assert.InDelta(t, -2.0, angle, 0.51)

	assert.Zero(t, EstimateSkew(imaging.New(50, 50, utils.White), 3))
}

func TestCleanDeskewAlignsWithRotate(t *testing.T) {
	cfg := Config{Enabled: true, Deskew: true, MaxSkewDeg: 3}

	straight := stripedPage()
	res := Clean(straight, cfg)
	assert.Zero(t, res.SkewDeg)
	assert.Equal(t, straight.Bounds(), res.Image.Bounds())

	tilted := Rotate(straight, 2)
	res = Clean(tilted, cfg)
	require.NotZero(t, res.SkewDeg)
	assert.InDelta(t, -2.0, res.SkewDeg, 0.51)
	assert.Equal(t, Rotate(tilted, res.SkewDeg).Bounds(), res.Image.Bounds())
	assert.Greater(t, res.Image.Bounds().Dx(), tilted.Bounds().Dx())
}
