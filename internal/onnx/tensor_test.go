package onnx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageTensor(t *testing.T) {
	tensor, err := NewImageTensor(make([]float32, 3*4*5), 3, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 4, 5}, tensor.Shape)
	require.NoError(t, tensor.Verify())

	_, err = NewImageTensor(make([]float32, 7), 3, 4, 5)
	require.Error(t, err)
	_, err = NewImageTensor(nil, 1, 1, 1)
	require.Error(t, err)
}

func TestTensorVerify(t *testing.T) {
	assert.Error(t, Tensor{}.Verify())
	assert.Error(t, Tensor{Data: []float32{1}, Shape: []int64{1, 0}}.Verify())
	assert.Error(t, Tensor{Data: []float32{1, 2}, Shape: []int64{1, 3}}.Verify())
	assert.NoError(t, Tensor{Data: []float32{1, 2, 3}, Shape: []int64{1, 3}}.Verify())
}

func TestMap2D(t *testing.T) {
	data := []float32{0, 1, 2, 3, 4, 5}
	m, w, h, err := Tensor{Data: data, Shape: []int64{1, 1, 2, 3}}.Map2D()
	require.NoError(t, err)
	assert.Equal(t, 3, w)
	assert.Equal(t, 2, h)
	assert.Equal(t, data, m)

	_, _, _, err = Tensor{Data: data, Shape: []int64{6}}.Map2D()
	assert.Error(t, err)
}

func TestStepsTransposesClassesFirst(t *testing.T) {
	// [1, C=2, T=3]
	tensor := Tensor{Data: []float32{1, 2, 3, 4, 5, 6}, Shape: []int64{1, 2, 3}}
	rows, err := tensor.Steps(true)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 4}, {2, 5}, {3, 6}}, rows)

	rows, err = tensor.Steps(false)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}}, rows)
}

func TestLogSoftmax(t *testing.T) {
	sum := func(lp []float64) float64 {
		var s float64
		for _, v := range lp {
			s += math.Exp(v)
		}
		return s
	}

	logits := LogSoftmax([]float32{2, -1, 0.5, 7})
	assert.InDelta(t, 1.0, sum(logits), 1e-9)
	assert.Greater(t, logits[3], logits[0])

	probs := LogSoftmax([]float32{0.25, 0.75})
	assert.InDelta(t, math.Log(0.75), probs[1], 1e-6)
	assert.Empty(t, LogSoftmax(nil))
}
