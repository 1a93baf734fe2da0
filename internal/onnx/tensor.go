package onnx

import (
	"errors"
	"fmt"
	"math"
)

// Tensor is a row-major float32 tensor; images use NCHW.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// NewImageTensor wraps C*H*W values as a [1, C, H, W] tensor.
func NewImageTensor(data []float32, c, h, w int) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	if expected := c * h * w; len(data) != expected {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), expected)
	}
	return Tensor{Data: data, Shape: []int64{1, int64(c), int64(h), int64(w)}}, nil
}

// Elements returns the product of the shape dimensions.
func (t Tensor) Elements() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= int(d)
	}
	return n
}

// Verify checks that all dimensions are positive and match the data length.
func (t Tensor) Verify() error {
	if len(t.Shape) == 0 {
		return errors.New("empty shape")
	}
	for i, v := range t.Shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	if n := t.Elements(); len(t.Data) != n {
		return fmt.Errorf("tensor data length %d != expected %d for shape %v", len(t.Data), n, t.Shape)
	}
	return nil
}

// Map2D returns the trailing H x W plane of a [1, 1, H, W] or [1, H, W]
// output, such as a detection probability map.
func (t Tensor) Map2D() ([]float32, int, int, error) {
	switch len(t.Shape) {
	case 3, 4:
	default:
		return nil, 0, 0, fmt.Errorf("expected 3D or 4D map, got %dD", len(t.Shape))
	}
	h := int(t.Shape[len(t.Shape)-2])
	w := int(t.Shape[len(t.Shape)-1])
	if h*w > len(t.Data) || h <= 0 || w <= 0 {
		return nil, 0, 0, fmt.Errorf("map shape %v does not fit %d values", t.Shape, len(t.Data))
	}
	return t.Data[:h*w], w, h, nil
}

// Steps views a [1, T, C] output as T rows of C class scores. When
// classesFirst is set the output is [1, C, T] and is transposed.
func (t Tensor) Steps(classesFirst bool) ([][]float32, error) {
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("expected 3D logits, got %dD", len(t.Shape))
	}
	if err := t.Verify(); err != nil {
		return nil, err
	}
	a, b := int(t.Shape[1]), int(t.Shape[2])
	if !classesFirst {
		rows := make([][]float32, a)
		for i := range a {
			rows[i] = t.Data[i*b : (i+1)*b]
		}
		return rows, nil
	}
	rows := make([][]float32, b)
	for ti := range b {
		row := make([]float32, a)
		for c := range a {
			row[c] = t.Data[c*b+ti]
		}
		rows[ti] = row
	}
	return rows, nil
}

// LogSoftmax converts raw scores into log-probabilities. Rows that already
// sum to one within tolerance are treated as probabilities.
func LogSoftmax(scores []float32) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	var sum float64
	probs := true
	for _, s := range scores {
		if s < 0 || s > 1 {
			probs = false
		}
		sum += float64(s)
	}
	if probs && math.Abs(sum-1) < 1e-3 {
		for i, s := range scores {
			out[i] = math.Log(math.Max(float64(s), 1e-12))
		}
		return out
	}
	maxV := float64(scores[0])
	for _, s := range scores[1:] {
		maxV = math.Max(maxV, float64(s))
	}
	var z float64
	for _, s := range scores {
		z += math.Exp(float64(s) - maxV)
	}
	logZ := maxV + math.Log(z)
	for i, s := range scores {
		out[i] = float64(s) - logZ
	}
	return out
}
