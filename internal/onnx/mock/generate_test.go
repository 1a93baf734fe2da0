package mock

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUniformMap(t *testing.T) {
	m := NewUniformMap(10, 5, 1.7)
	require.NoError(t, m.Verify())
	assert.Equal(t, []int64{1, 1, 5, 10}, m.Shape)
	for _, v := range m.Data {
		assert.InDelta(t, 1.0, v, 1e-6)
	}
	assert.Nil(t, NewUniformMap(0, 5, 0.5).Data)
}

func TestNewBoxMap(t *testing.T) {
	m := NewBoxMap(8, 6, []image.Rectangle{image.Rect(2, 1, 5, 3), image.Rect(6, 4, 20, 20)}, 0.9, 0.1)
	require.NoError(t, m.Verify())
	assert.InDelta(t, 0.9, m.Data[1*8+2], 1e-6)
	assert.InDelta(t, 0.1, m.Data[0], 1e-6)
	assert.InDelta(t, 0.9, m.Data[5*8+7], 1e-6, "clipped box still painted")
}

func TestNewTextStripeMap(t *testing.T) {
	m := NewTextStripeMap(8, 8, 2, 2, 0.9, 0.1)
	require.Len(t, m.Data, 64)
	for y := range 8 {
		want := float32(0.1)
		if y%4 < 2 {
			want = 0.9
		}
		assert.InDelta(t, want, m.Data[y*8], 1e-6, "row %d", y)
	}
}

func TestNewGreedyPathLogits(t *testing.T) {
	path := []int{0, 3, 3, 1}
	for _, classesFirst := range []bool{false, true} {
		logits := NewGreedyPathLogits(path, 5, classesFirst, 5, -5)
		steps, err := logits.Steps(classesFirst)
		require.NoError(t, err)
		require.Len(t, steps, len(path))
		for i, row := range steps {
			best := 0
			for c := range row {
				if row[c] > row[best] {
					best = c
				}
			}
			assert.Equal(t, path[i], best)
		}
	}
}
