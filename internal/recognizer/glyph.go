package recognizer

import (
	"context"
	"image"
	"log/slog"
	"math"
	"math/bits"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/layout"
	"github.com/MeKo-Tech/ledgerscan/internal/utils"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Cell geometry of the fixed-pitch face the glyph backend matches against.
const (
	glyphWidth  = 7
	glyphHeight = 13
	glyphAscent = 11
	glyphPixels = glyphWidth * glyphHeight
)

// GlyphConfig tunes the template matcher.
type GlyphConfig struct {
	// InkThreshold is the luminance below which a pixel counts as ink.
	InkThreshold uint8 `mapstructure:"ink_threshold" yaml:"ink_threshold" json:"ink_threshold"`
	// Sharpness scales template similarity into logits.
	Sharpness float64 `mapstructure:"sharpness" yaml:"sharpness" json:"sharpness"`
	// Scale is the integer factor the crop was rendered at; crops are reduced
	// by it before matching.
	Scale int `mapstructure:"scale" yaml:"scale" json:"scale"`
	// LowConfidence marks results below it.
	LowConfidence float64 `mapstructure:"low_confidence" yaml:"low_confidence" json:"low_confidence"`
}

// DefaultGlyphConfig matches crops rendered at 1:1.
func DefaultGlyphConfig() GlyphConfig {
	return GlyphConfig{InkThreshold: 128, Sharpness: 1000, Scale: 1, LowConfidence: 0.7}
}

// glyphSet holds one row-bitmask template per printable ASCII rune; index 0
// is the space.
type glyphSet struct {
	runes     []rune
	templates [][glyphHeight]uint8
}

var (
	glyphsOnce sync.Once
	glyphs     glyphSet
)

func loadGlyphs() glyphSet {
	glyphsOnce.Do(func() {
		for r := ' '; r <= '~'; r++ {
			dst := image.NewAlpha(image.Rect(0, 0, glyphWidth, glyphHeight))
			d := font.Drawer{
				Dst:  dst,
				Src:  image.Opaque,
				Face: basicfont.Face7x13,
				Dot:  fixed.P(0, glyphAscent),
			}
			d.DrawString(string(r))
			var tmpl [glyphHeight]uint8
			for y := range glyphHeight {
				for x := range glyphWidth {
					if dst.AlphaAt(x, y).A > 127 {
						tmpl[y] |= 1 << x
					}
				}
			}
			glyphs.runes = append(glyphs.runes, r)
			glyphs.templates = append(glyphs.templates, tmpl)
		}
	})
	return glyphs
}

// Glyph recognises text set in a fixed-pitch bitmap face by matching each
// character cell against rendered templates. It needs no model files and
// serves as the default backend and the last fallback.
type Glyph struct {
	cfg    GlyphConfig
	decode DecodeConfig
	clean  CleanOptions
	set    glyphSet
}

// NewGlyph builds the template matcher.
func NewGlyph(cfg GlyphConfig, decode DecodeConfig, clean CleanOptions) *Glyph {
	def := DefaultGlyphConfig()
	if cfg.InkThreshold == 0 {
		cfg.InkThreshold = def.InkThreshold
	}
	if cfg.Sharpness <= 0 {
		cfg.Sharpness = def.Sharpness
	}
	if cfg.Scale < 1 {
		cfg.Scale = 1
	}
	return &Glyph{cfg: cfg, decode: decode, clean: clean, set: loadGlyphs()}
}

// Name implements Recognizer.
func (g *Glyph) Name() string { return BackendGlyph }

// Close implements Recognizer.
func (g *Glyph) Close() error { return nil }

// RecognizeBatch implements Recognizer.
func (g *Glyph) RecognizeBatch(ctx context.Context, crops []layout.Crop) ([]Result, error) {
	return recognizeEach(ctx, crops, g.Recognize)
}

// Recognize implements Recognizer. A crop without ink yields empty text with
// zero confidence.
func (g *Glyph) Recognize(ctx context.Context, crop layout.Crop) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()
	res := Result{Backend: BackendGlyph}
	if crop.Image == nil {
		return res, nil
	}
	img := crop.Image
	if g.cfg.Scale > 1 {
		b := img.Bounds()
		img = imaging.Resize(img, max(1, b.Dx()/g.cfg.Scale), max(1, b.Dy()/g.cfg.Scale), imaging.NearestNeighbor)
	}
	p := newInkPlane(img, g.cfg.InkThreshold)
	if p.empty() {
		return res, nil
	}

	frames, tokens := g.frames(p)
	hyp, err := Decode(ctx, NewFrameSequence(frames), g.decode)
	if err != nil {
		return Result{}, err
	}
	var sb strings.Builder
	for _, id := range hyp.Tokens {
		sb.WriteRune(tokens[id])
	}
	res.Text = CleanText(sb.String(), g.clean)
	res.TokenConfidences = hyp.TokenProbs()
	res.Confidence = hyp.Confidence()
	res.LowConfidence = res.Confidence < g.cfg.LowConfidence
	slog.Debug("Glyph recognition completed",
		"order", crop.Order, "cells", len(frames), "text", res.Text,
		"confidence", res.Confidence, "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// frames finds the cell grid that explains the ink with the fewest
// mismatched pixels and scores every cell against the templates. Ties keep
// the topmost, then leftmost, grid.
func (g *Glyph) frames(p inkPlane) ([][]float64, []rune) {
	bestCost := math.MaxInt
	var bestX, bestY int
	for py := p.minY - (glyphHeight - 1); py <= p.minY; py++ {
		outside := p.inkOutsideRows(py, py+glyphHeight)
		for px := p.minX - (glyphWidth - 1); px <= p.minX; px++ {
			cost := outside
			for cx := px; cx <= p.maxX && cost < bestCost; cx += glyphWidth {
				cost += g.nearest(p.cell(cx, py))
			}
			if cost < bestCost {
				bestCost, bestX, bestY = cost, px, py
			}
		}
	}

	var frames [][]float64
	for cx := bestX; cx <= p.maxX; cx += glyphWidth {
		cell := p.cell(cx, bestY)
		logits := make([]float64, len(g.set.templates))
		for i, tmpl := range g.set.templates {
			logits[i] = g.cfg.Sharpness * similarity(cell, tmpl)
		}
		frames = append(frames, logSoftmax(logits))
	}
	return frames, g.set.runes
}

// nearest returns the smallest pixel distance from cell to any template.
func (g *Glyph) nearest(cell [glyphHeight]uint8) int {
	best := glyphPixels
	for _, tmpl := range g.set.templates {
		best = min(best, distance(cell, tmpl))
	}
	return best
}

func distance(a, b [glyphHeight]uint8) int {
	diff := 0
	for y := range glyphHeight {
		diff += bits.OnesCount8(a[y] ^ b[y])
	}
	return diff
}

// similarity is the fraction of agreeing pixels.
func similarity(a, b [glyphHeight]uint8) float64 {
	return float64(glyphPixels-distance(a, b)) / glyphPixels
}

func logSoftmax(v []float64) []float64 {
	m := math.Inf(-1)
	for _, x := range v {
		m = max(m, x)
	}
	var sum float64
	for _, x := range v {
		sum += math.Exp(x - m)
	}
	lse := m + math.Log(sum)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x - lse
	}
	return out
}

// inkPlane is a binarized crop with its ink bounding box.
type inkPlane struct {
	ink                    []bool
	w, h                   int
	minX, minY, maxX, maxY int
	rowInk                 []int
}

func newInkPlane(img *image.NRGBA, threshold uint8) inkPlane {
	lum := utils.Luminance(img)
	b := img.Bounds()
	p := inkPlane{
		ink: make([]bool, len(lum)), w: b.Dx(), h: b.Dy(),
		minX: b.Dx(), minY: b.Dy(), maxX: -1, maxY: -1,
		rowInk: make([]int, b.Dy()),
	}
	for y := range p.h {
		for x := range p.w {
			if lum[y*p.w+x] >= threshold {
				continue
			}
			p.ink[y*p.w+x] = true
			p.rowInk[y]++
			p.minX, p.maxX = min(p.minX, x), max(p.maxX, x)
			p.minY, p.maxY = min(p.minY, y), max(p.maxY, y)
		}
	}
	return p
}

func (p inkPlane) empty() bool { return p.maxX < 0 }

func (p inkPlane) at(x, y int) bool {
	if x < 0 || y < 0 || x >= p.w || y >= p.h {
		return false
	}
	return p.ink[y*p.w+x]
}

// cell returns the row bitmasks of the glyph cell whose top-left is (x, y).
func (p inkPlane) cell(x, y int) [glyphHeight]uint8 {
	var out [glyphHeight]uint8
	for dy := range glyphHeight {
		for dx := range glyphWidth {
			if p.at(x+dx, y+dy) {
				out[dy] |= 1 << dx
			}
		}
	}
	return out
}

// inkOutsideRows counts ink pixels above y0 or at or below y1.
func (p inkPlane) inkOutsideRows(y0, y1 int) int {
	n := 0
	for y, c := range p.rowInk {
		if y < y0 || y >= y1 {
			n += c
		}
	}
	return n
}
