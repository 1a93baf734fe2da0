package recognizer

import (
	"fmt"
	"image"

	"github.com/MeKo-Tech/ledgerscan/internal/onnx"
	"github.com/MeKo-Tech/ledgerscan/internal/utils"
	"github.com/disintegration/imaging"
)

// InputSize is the recognition input geometry. A zero MaxWidth leaves the
// width free; PadMultiple rounds the width up with background.
type InputSize struct {
	Height      int `mapstructure:"height" yaml:"height" json:"height"`
	MaxWidth    int `mapstructure:"max_width" yaml:"max_width" json:"max_width"`
	PadMultiple int `mapstructure:"pad_multiple" yaml:"pad_multiple" json:"pad_multiple"`
}

// ResizeForRecognition scales img to size.Height keeping the aspect ratio,
// caps the width and pads it to a multiple of size.PadMultiple.
func ResizeForRecognition(img image.Image, size InputSize) (*image.NRGBA, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", b.Dx(), b.Dy())
	}
	if size.Height <= 0 {
		return nil, fmt.Errorf("invalid target height %d", size.Height)
	}
	w := max(1, int(float64(b.Dx())*float64(size.Height)/float64(b.Dy())+0.5))
	if size.MaxWidth > 0 && w > size.MaxWidth {
		w = size.MaxWidth
	}
	resized := imaging.Resize(img, w, size.Height, imaging.Linear)
	padded := w
	if m := size.PadMultiple; m > 1 && w%m != 0 {
		padded = (w/m + 1) * m
	}
	if padded == w {
		return resized, nil
	}
	canvas := imaging.New(padded, size.Height, utils.White)
	return imaging.Paste(canvas, resized, image.Pt(0, 0)), nil
}

// recognitionTensor resizes and normalises a crop to a [1,3,H,W] tensor
// scaled to [-1, 1].
func recognitionTensor(img image.Image, size InputSize) (onnx.Tensor, error) {
	resized, err := ResizeForRecognition(img, size)
	if err != nil {
		return onnx.Tensor{}, err
	}
	half := [3]float32{0.5, 0.5, 0.5}
	data, w, h, err := utils.NormalizeNCHW(resized, half, half)
	if err != nil {
		return onnx.Tensor{}, err
	}
	return onnx.NewImageTensor(data, 3, h, w)
}
