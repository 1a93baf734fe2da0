// Package preprocess cleans page rasters before detection: grayscale,
// contrast, deskew, Otsu binarisation and ruled-line removal.
package preprocess

import (
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/mempool"
	"github.com/MeKo-Tech/ledgerscan/internal/utils"
	"github.com/disintegration/imaging"
)

// Config selects the cleaning steps.
type Config struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Deskew     bool    `mapstructure:"deskew" yaml:"deskew" json:"deskew"`
	MaxSkewDeg float64 `mapstructure:"max_skew_deg" yaml:"max_skew_deg" json:"max_skew_deg"`
	// Denoise is a Gaussian sigma, 0 = off.
	Denoise float64 `mapstructure:"denoise" yaml:"denoise" json:"denoise"`
	// Contrast is a percentage in [-100, 100], see imaging.AdjustContrast.
	Contrast float64 `mapstructure:"contrast" yaml:"contrast" json:"contrast"`
	Binarize bool    `mapstructure:"binarize" yaml:"binarize" json:"binarize"`
	// RemoveLines clears horizontal and vertical runs of at least LineLength
	// ink pixels. Only applied when Binarize is set.
	RemoveLines bool `mapstructure:"remove_lines" yaml:"remove_lines" json:"remove_lines"`
	LineLength  int  `mapstructure:"line_length" yaml:"line_length" json:"line_length"`
}

// DefaultConfig leaves pixels untouched apart from ruled-line removal,
// which is what table pages need most.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		MaxSkewDeg:  3,
		Binarize:    true,
		RemoveLines: true,
		LineLength:  40,
	}
}

// Result carries the cleaned image and what was done to it.
type Result struct {
	Image      *image.NRGBA
	SkewDeg    float64
	Threshold  uint8
	LinePixels int
	Binarized  bool
	DurationMs float64
}

// Rotate turns img counter-clockwise by deg degrees onto a white canvas
// grown to fit. Rotating the source page by the SkewDeg that Clean reports
// gives a raster aligned with the cleaned one.
func Rotate(img *image.NRGBA, deg float64) *image.NRGBA {
	return imaging.Rotate(img, deg, utils.White)
}

// Clean runs the configured steps. The input is never modified.
func Clean(img *image.NRGBA, cfg Config) Result {
	start := time.Now()
	res := Result{Image: img}
	if !cfg.Enabled || img == nil {
		return res
	}

	out := imaging.Grayscale(img)
	if cfg.Deskew {
		if angle := EstimateSkew(out, cfg.MaxSkewDeg); angle != 0 {
			out = Rotate(out, angle)
			res.SkewDeg = angle
		}
	}
	if cfg.Denoise > 0 {
		out = imaging.Blur(out, cfg.Denoise)
	}
	if cfg.Contrast != 0 {
		out = imaging.AdjustContrast(out, cfg.Contrast)
	}

	if cfg.Binarize {
		w, h := out.Bounds().Dx(), out.Bounds().Dy()
		lum := utils.Luminance(out)
		res.Threshold = OtsuThreshold(lum)
		ink := InkMask(lum, res.Threshold)
		if cfg.RemoveLines {
			res.LinePixels = RemoveRuledLines(ink, w, h, cfg.LineLength)
		}
		out = maskImage(ink, w, h)
		mempool.PutBool(ink)
		res.Binarized = true
	}

	res.Image = out
	res.DurationMs = float64(time.Since(start).Microseconds()) / 1000
	slog.Debug("Page cleaned",
		"skew_deg", res.SkewDeg,
		"threshold", res.Threshold,
		"line_pixels", res.LinePixels,
		"duration_ms", res.DurationMs)
	return res
}

func maskImage(ink []bool, w, h int) *image.NRGBA {
	out := imaging.New(w, h, utils.White)
	for i, on := range ink[:w*h] {
		if on {
			p := i * 4
			out.Pix[p], out.Pix[p+1], out.Pix[p+2] = 0, 0, 0
		}
	}
	return out
}
