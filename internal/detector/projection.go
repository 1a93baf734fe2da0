package detector

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/ingest"
	"github.com/MeKo-Tech/ledgerscan/internal/layout"
	"github.com/MeKo-Tech/ledgerscan/internal/mempool"
	"github.com/MeKo-Tech/ledgerscan/internal/preprocess"
	"github.com/MeKo-Tech/ledgerscan/internal/utils"
)

// ProjectionConfig tunes the ink-based detector.
type ProjectionConfig struct {
	// MergeGap joins ink on a row separated by at most this many pixels.
	// Zero derives it from the median glyph height times MergeFactor.
	MergeGap    int     `mapstructure:"merge_gap" yaml:"merge_gap" json:"merge_gap"`
	MergeFactor float64 `mapstructure:"merge_factor" yaml:"merge_factor" json:"merge_factor"`
	MinHeight   int     `mapstructure:"min_height" yaml:"min_height" json:"min_height"`
	MinInk      int     `mapstructure:"min_ink" yaml:"min_ink" json:"min_ink"`
	// MaxHeightFraction drops components taller than this share of the page
	// (logos, photos, stamps).
	MaxHeightFraction float64 `mapstructure:"max_height_fraction" yaml:"max_height_fraction" json:"max_height_fraction"`
	// MinContrast is the luminance spread below which a page is treated as
	// blank.
	MinContrast int `mapstructure:"min_contrast" yaml:"min_contrast" json:"min_contrast"`
	// LineLength removes ruled lines of at least this many pixels; 0 keeps them.
	LineLength int `mapstructure:"line_length" yaml:"line_length" json:"line_length"`
}

// DefaultProjectionConfig returns defaults tuned for printed statements.
func DefaultProjectionConfig() ProjectionConfig {
	return ProjectionConfig{
		MergeFactor:       1.5,
		MinHeight:         4,
		MinInk:            8,
		MaxHeightFraction: 0.5,
		MinContrast:       40,
		LineLength:        60,
	}
}

// Projection detects text by binarising the page and joining glyphs along
// rows. It needs no model files.
type Projection struct {
	cfg ProjectionConfig
}

// NewProjection returns a projection detector.
func NewProjection(cfg ProjectionConfig) *Projection {
	if cfg.MergeFactor <= 0 {
		cfg.MergeFactor = DefaultProjectionConfig().MergeFactor
	}
	return &Projection{cfg: cfg}
}

// Name implements Detector.
func (p *Projection) Name() string { return BackendProjection }

// Close implements Detector.
func (p *Projection) Close() error { return nil }

// Detect implements Detector.
func (p *Projection) Detect(ctx context.Context, r *ingest.Raster) ([]layout.Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	img := r.Image
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	lum := utils.Luminance(img)
	if preprocess.Contrast(lum) < p.cfg.MinContrast {
		slog.Debug("Projection detector found a blank page", "page", r.Meta.Page)
		return nil, nil
	}
	ink := preprocess.InkMask(lum, preprocess.OtsuThreshold(lum))
	defer mempool.PutBool(ink)
	if p.cfg.LineLength > 0 {
		preprocess.RemoveRuledLines(ink, w, h, p.cfg.LineLength)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gap := p.cfg.MergeGap
	if gap <= 0 {
		gap = p.estimateGap(ink, w, h)
	}
	merged := closeRows(ink, w, h, gap)
	comps, _ := connectedComponents(merged, nil, w, h, true)

	regions := make([]layout.Region, 0, len(comps))
	for _, c := range comps {
		if !p.keep(c, h) {
			continue
		}
		box := c.box()
		conf := inkContrast(lum, ink, w, h, c)
		regions = append(regions, layout.Region{Box: box, Polygon: box.Polygon(), Confidence: conf})
	}
	regions = finalize(regions, img.Bounds(), BackendProjection)

	slog.Debug("Projection detection completed",
		"page", r.Meta.Page,
		"merge_gap", gap,
		"components", len(comps),
		"regions", len(regions),
		"duration_ms", float64(time.Since(start).Microseconds())/1000)
	return regions, nil
}

func (p *Projection) keep(c component, pageHeight int) bool {
	if c.height() < p.cfg.MinHeight || c.count < p.cfg.MinInk || c.width() < 2 {
		return false
	}
	if p.cfg.MaxHeightFraction > 0 && float64(c.height()) > p.cfg.MaxHeightFraction*float64(pageHeight) {
		return false
	}
	return true
}

// estimateGap derives the row merge gap from the median height of glyph
// sized components.
func (p *Projection) estimateGap(ink []bool, w, h int) int {
	comps, _ := connectedComponents(ink, nil, w, h, true)
	heights := make([]int, 0, len(comps))
	for _, c := range comps {
		if c.height() >= 3 && c.count >= 3 {
			heights = append(heights, c.height())
		}
	}
	if len(heights) == 0 {
		return 0
	}
	sort.Ints(heights)
	median := heights[len(heights)/2]
	return int(math.Round(float64(median) * p.cfg.MergeFactor))
}

// inkContrast scores a component by how far its ink sits from the local
// background: (mean background - mean ink) / 255.
func inkContrast(lum []uint8, ink []bool, w, h int, c component) float64 {
	var inkSum, bgSum float64
	var inkN, bgN int
	for y := max(0, c.minY-1); y <= min(h-1, c.maxY+1); y++ {
		for x := max(0, c.minX-1); x <= min(w-1, c.maxX+1); x++ {
			i := y*w + x
			if ink[i] {
				inkSum += float64(lum[i])
				inkN++
			} else {
				bgSum += float64(lum[i])
				bgN++
			}
		}
	}
	if inkN == 0 || bgN == 0 {
		return 0
	}
	return clamp01((bgSum/float64(bgN) - inkSum/float64(inkN)) / 255)
}
