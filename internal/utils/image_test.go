package utils

import (
	"image"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/ledgerscan/internal/mempool"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenMakesOpaque(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 15, 10))
	src.Set(5, 5, color.NRGBA{R: 0, G: 0, B: 0, A: 255})
	out := Flatten(src)
	require.Equal(t, image.Rect(0, 0, 10, 5), out.Bounds())
	assert.Equal(t, color.NRGBA{R: 0, G: 0, B: 0, A: 255}, out.NRGBAAt(0, 0))
	assert.Equal(t, White, out.NRGBAAt(9, 4))
}

func TestLuminance(t *testing.T) {
	img := imaging.New(2, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{A: 255})
	gray := Luminance(img)
	assert.Equal(t, []uint8{255, 0}, gray)
}

func TestCropPaddedFillsOutside(t *testing.T) {
	src := imaging.New(20, 10, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
	bg := color.NRGBA{R: 200, G: 0, B: 0, A: 255}

	crop := CropPadded(src, image.Rect(0, 0, 5, 5), 3, bg)
	require.Equal(t, 11, crop.Bounds().Dx())
	require.Equal(t, 11, crop.Bounds().Dy())
	assert.Equal(t, bg, crop.NRGBAAt(0, 0), "top-left padding lies outside the source")
	assert.Equal(t, color.NRGBA{R: 10, G: 10, B: 10, A: 255}, crop.NRGBAAt(3, 3))
	assert.Equal(t, color.NRGBA{R: 10, G: 10, B: 10, A: 255}, crop.NRGBAAt(10, 10), "bottom-right padding is inside the source")
}

func TestNormalizeNCHW(t *testing.T) {
	img := imaging.New(2, 2, color.NRGBA{R: 255, G: 0, B: 127, A: 255})
	tensor, w, h, err := NormalizeNCHW(img, [3]float32{0.5, 0.5, 0.5}, [3]float32{0.5, 0.5, 0.5})
	require.NoError(t, err)
	defer mempool.PutFloat32(tensor)
	assert.Equal(t, 2, w)
	assert.Equal(t, 2, h)
	require.Len(t, tensor, 12)
	assert.InDelta(t, 1.0, tensor[0], 1e-5)
	assert.InDelta(t, -1.0, tensor[4], 1e-5)

	_, _, _, err = NormalizeNCHW(nil, [3]float32{}, [3]float32{})
	var ipe *ImageProcessingError
	assert.ErrorAs(t, err, &ipe)
}

func TestCheckConstraints(t *testing.T) {
	c := DefaultImageConstraints()
	assert.Empty(t, CheckConstraints(800, 1100, c))
	assert.Contains(t, CheckConstraints(10, 1100, c), "smaller")
	assert.Contains(t, CheckConstraints(20000, 1100, c), "larger")
	assert.Contains(t, CheckConstraints(4000, 100, c), "aspect")
	assert.Equal(t, "empty image", CheckConstraints(0, 0, c))
}
