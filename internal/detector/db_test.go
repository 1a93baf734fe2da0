package detector

import (
	"image"
	"testing"

	"github.com/MeKo-Tech/ledgerscan/internal/onnx/mock"
	"github.com/MeKo-Tech/ledgerscan/internal/utils"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBPostprocessBoxes(t *testing.T) {
	boxes := []image.Rectangle{image.Rect(4, 4, 40, 10), image.Rect(4, 20, 30, 26)}
	m := mock.NewBoxMap(64, 32, boxes, 0.9, 0.05)
	prob, w, h, err := m.Map2D()
	require.NoError(t, err)

	cfg := DefaultDBConfig()
	cfg.UnclipRatio = 0
	regions := dbPostprocess(prob, w, h, 128, 64, cfg)
	require.Len(t, regions, 2)

	assert.InDelta(t, 0.9, regions[0].Confidence, 1e-6)
	assert.Equal(t, utils.NewBox(8, 8, 80, 20), regions[0].Box, "scaled x2 to the source")
	assert.Equal(t, utils.NewBox(8, 40, 60, 52), regions[1].Box)
}

func TestDBPostprocessBoxThreshold(t *testing.T) {
	m := mock.NewBoxMap(32, 32, []image.Rectangle{image.Rect(2, 2, 20, 8)}, 0.4, 0)
	prob, w, h, err := m.Map2D()
	require.NoError(t, err)

	cfg := DefaultDBConfig()
	assert.Empty(t, dbPostprocess(prob, w, h, 32, 32, cfg), "mean 0.4 below box threshold")

	cfg.BoxThresh = 0.3
	assert.Len(t, dbPostprocess(prob, w, h, 32, 32, cfg), 1)
}

func TestDBPostprocessDropsSpecks(t *testing.T) {
	m := mock.NewBoxMap(32, 32, []image.Rectangle{image.Rect(5, 5, 7, 6)}, 1, 0)
	prob, w, h, err := m.Map2D()
	require.NoError(t, err)
	assert.Empty(t, dbPostprocess(prob, w, h, 32, 32, DefaultDBConfig()))
}

func TestUnclip(t *testing.T) {
	b := utils.NewBox(0, 0, 10, 2)
	// area 20 * 1.5 / perimeter 24 = 1.25
	assert.Equal(t, utils.NewBox(-1.25, -1.25, 11.25, 3.25), unclip(b, 1.5))
	assert.Equal(t, b, unclip(b, 0))
}

func TestResizeForDB(t *testing.T) {
	img := imaging.New(1000, 500, utils.White)
	out := resizeForDB(img, 960)
	assert.Equal(t, 960, out.Bounds().Dx())
	assert.Equal(t, 480, out.Bounds().Dy())

	small := imaging.New(64, 32, utils.White)
	assert.Same(t, small, resizeForDB(small, 960))

	odd := resizeForDB(imaging.New(50, 10, utils.White), 960)
	assert.Equal(t, 64, odd.Bounds().Dx())
	assert.Equal(t, 32, odd.Bounds().Dy())
}

func TestNewDBRejectsBadThreshold(t *testing.T) {
	cfg := DefaultDBConfig()
	cfg.Thresh = 1.5
	_, err := NewDB(cfg)
	require.Error(t, err)
}
