// Package mock builds synthetic model outputs for exercising ONNX
// post-processing without a runtime.
package mock

import (
	"image"

	"github.com/MeKo-Tech/ledgerscan/internal/onnx"
)

// NewUniformMap returns a [1,1,H,W] map filled with value.
func NewUniformMap(w, h int, value float32) onnx.Tensor {
	if w <= 0 || h <= 0 {
		return onnx.Tensor{}
	}
	data := make([]float32, w*h)
	for i := range data {
		data[i] = clamp01(value)
	}
	return onnx.Tensor{Data: data, Shape: []int64{1, 1, int64(h), int64(w)}}
}

// NewBoxMap returns a [1,1,H,W] probability map that is hi inside each
// rectangle and lo elsewhere, mimicking detected text lines.
func NewBoxMap(w, h int, boxes []image.Rectangle, hi, lo float32) onnx.Tensor {
	t := NewUniformMap(w, h, lo)
	if t.Data == nil {
		return t
	}
	bounds := image.Rect(0, 0, w, h)
	for _, b := range boxes {
		b = b.Intersect(bounds)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				t.Data[y*w+x] = clamp01(hi)
			}
		}
	}
	return t
}

// NewTextStripeMap returns full-width horizontal stripes of lineHeight rows
// separated by gap rows.
func NewTextStripeMap(w, h, lineHeight, gap int, hi, lo float32) onnx.Tensor {
	if w <= 0 || h <= 0 || lineHeight <= 0 || gap < 0 {
		return onnx.Tensor{}
	}
	var boxes []image.Rectangle
	for y := 0; y < h; y += lineHeight + gap {
		boxes = append(boxes, image.Rect(0, y, w, y+lineHeight))
	}
	return NewBoxMap(w, h, boxes, hi, lo)
}

// NewGreedyPathLogits returns recognition scores whose per-step argmax is
// indices. The shape is [1, C, T] when classesFirst, otherwise [1, T, C].
func NewGreedyPathLogits(indices []int, classes int, classesFirst bool, high, low float32) onnx.Tensor {
	if classes <= 0 || len(indices) == 0 {
		return onnx.Tensor{}
	}
	t := len(indices)
	data := make([]float32, t*classes)
	for ti, c := range indices {
		for cls := range classes {
			v := low
			if cls == c {
				v = high
			}
			if classesFirst {
				data[cls*t+ti] = v
			} else {
				data[ti*classes+cls] = v
			}
		}
	}
	if classesFirst {
		return onnx.Tensor{Data: data, Shape: []int64{1, int64(classes), int64(t)}}
	}
	return onnx.Tensor{Data: data, Shape: []int64{1, int64(t), int64(classes)}}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
