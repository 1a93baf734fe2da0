package utils

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/MeKo-Tech/ledgerscan/internal/mempool"
	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// White is the default page background.
var White = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// Flatten returns an opaque copy of img with origin (0,0); transparent
// pixels are composited over white.
func Flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// Luminance returns the 8-bit gray plane of img (ITU-R 601 weights).
func Luminance(img *image.NRGBA) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]uint8, w*h)
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := range w {
			r, g, bl := int(row[x*4]), int(row[x*4+1]), int(row[x*4+2])
			out[y*w+x] = uint8((299*r + 587*g + 114*bl + 500) / 1000)
		}
	}
	return out
}

// CropPadded extracts rect grown by pad pixels on every side. The result always
// has the padded size; pixels outside src are filled with bg rather than
// mirrored or wrapped.
func CropPadded(src *image.NRGBA, rect image.Rectangle, pad int, bg color.NRGBA) *image.NRGBA {
	if pad < 0 {
		pad = 0
	}
	expanded := rect.Inset(-pad)
	canvas := imaging.New(expanded.Dx(), expanded.Dy(), bg)
	visible := expanded.Intersect(src.Bounds())
	if visible.Empty() {
		return canvas
	}
	part := imaging.Crop(src, visible)
	return imaging.Paste(canvas, part, visible.Min.Sub(expanded.Min))
}

// NormalizeNCHW converts img to a pooled [3,H,W] float tensor using
// (v/255 - mean) / std per channel. Return the buffer with mempool.PutFloat32.
func NormalizeNCHW(img image.Image, mean, std [3]float32) ([]float32, int, int, error) {
	if img == nil {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("input image is nil")}
	}
	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w <= 0 || h <= 0 {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("invalid image dimensions")}
	}
	for c := range std {
		if std[c] == 0 {
			std[c] = 1
		}
	}
	plane := w * h
	tensor := mempool.GetFloat32(3 * plane)
	for y := range h {
		row := src.Pix[y*src.Stride:]
		for x := range w {
			idx := y*w + x
			for c := range 3 {
				v := float32(row[x*4+c]) / 255
				tensor[c*plane+idx] = (v - mean[c]) / std[c]
			}
		}
	}
	return tensor, w, h, nil
}

// ImageConstraints bounds accepted raster geometry.
type ImageConstraints struct {
	MinWidth       int     `mapstructure:"min_width" yaml:"min_width" json:"min_width"`
	MinHeight      int     `mapstructure:"min_height" yaml:"min_height" json:"min_height"`
	MaxWidth       int     `mapstructure:"max_width" yaml:"max_width" json:"max_width"`
	MaxHeight      int     `mapstructure:"max_height" yaml:"max_height" json:"max_height"`
	MaxAspectRatio float64 `mapstructure:"max_aspect_ratio" yaml:"max_aspect_ratio" json:"max_aspect_ratio"`
}

// DefaultImageConstraints returns the bounds used for scanned statements.
func DefaultImageConstraints() ImageConstraints {
	return ImageConstraints{
		MinWidth:       32,
		MinHeight:      32,
		MaxWidth:       12000,
		MaxHeight:      12000,
		MaxAspectRatio: 20,
	}
}

// CheckConstraints returns a human-readable reason when w x h violates c,
// or "" when it is acceptable. Zero limits are ignored.
func CheckConstraints(w, h int, c ImageConstraints) string {
	switch {
	case w <= 0 || h <= 0:
		return "empty image"
	case c.MinWidth > 0 && w < c.MinWidth, c.MinHeight > 0 && h < c.MinHeight:
		return fmt.Sprintf("smaller than minimum %dx%d", c.MinWidth, c.MinHeight)
	case c.MaxWidth > 0 && w > c.MaxWidth, c.MaxHeight > 0 && h > c.MaxHeight:
		return fmt.Sprintf("larger than maximum %dx%d", c.MaxWidth, c.MaxHeight)
	}
	if c.MaxAspectRatio > 0 {
		ar := float64(w) / float64(h)
		if ar > c.MaxAspectRatio || ar < 1/c.MaxAspectRatio {
			return fmt.Sprintf("aspect ratio %.2f outside [1/%.0f, %.0f]", ar, c.MaxAspectRatio, c.MaxAspectRatio)
		}
	}
	return ""
}
