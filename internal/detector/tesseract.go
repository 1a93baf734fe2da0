//go:build tesseract

package detector

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"sort"
	"sync"

	"github.com/MeKo-Tech/ledgerscan/internal/ingest"
	"github.com/MeKo-Tech/ledgerscan/internal/layout"
	"github.com/MeKo-Tech/ledgerscan/internal/utils"
	"github.com/otiai10/gosseract/v2"
)

const tesseractAvailable = true

// Tesseract detects word boxes with Tesseract and merges them into cells.
type Tesseract struct {
	cfg TesseractConfig
	// gosseract clients are not safe for concurrent use
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates a Tesseract-backed detector.
func NewTesseract(cfg TesseractConfig) (Detector, error) {
	client := gosseract.NewClient()
	if cfg.Language != "" {
		if err := client.SetLanguage(cfg.Language); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to set tesseract language: %w", err)
		}
	}
	return &Tesseract{cfg: cfg, client: client}, nil
}

// Name implements Detector.
func (t *Tesseract) Name() string { return BackendTesseract }

// Close implements Detector.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}

// Detect implements Detector.
func (t *Tesseract) Detect(ctx context.Context, r *ingest.Raster) ([]layout.Region, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, r.Image); err != nil {
		return nil, fmt.Errorf("failed to encode page: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set tesseract image: %w", err)
	}
	words, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract layout analysis failed: %w", err)
	}

	regions := mergeWords(words, t.cfg)
	slog.Debug("Tesseract detection completed", "page", r.Meta.Page, "words", len(words), "regions", len(regions))
	return finalize(regions, r.Image.Bounds(), BackendTesseract), nil
}

type lineKey struct{ block, par, line int }

func mergeWords(words []gosseract.BoundingBox, cfg TesseractConfig) []layout.Region {
	lines := map[lineKey][]gosseract.BoundingBox{}
	var keys []lineKey
	for _, w := range words {
		if w.Confidence/100 < cfg.MinConfidence {
			continue
		}
		k := lineKey{w.BlockNum, w.ParNum, w.LineNum}
		if _, ok := lines[k]; !ok {
			keys = append(keys, k)
		}
		lines[k] = append(lines[k], w)
	}

	var regions []layout.Region
	for _, k := range keys {
		ws := lines[k]
		sort.SliceStable(ws, func(i, j int) bool { return ws[i].Box.Min.X < ws[j].Box.Min.X })
		cur := utils.BoxFromRect(ws[0].Box)
		confs := []float64{ws[0].Confidence / 100}
		flush := func() {
			var sum float64
			for _, c := range confs {
				sum += c
			}
			regions = append(regions, layout.Region{Box: cur, Polygon: cur.Polygon(), Confidence: sum / float64(len(confs))})
		}
		for _, w := range ws[1:] {
			b := utils.BoxFromRect(w.Box)
			if b.MinX-cur.MaxX <= cfg.MergeFactor*cur.Height() {
				cur = cur.Union(b)
				confs = append(confs, w.Confidence/100)
				continue
			}
			flush()
			cur, confs = b, []float64{w.Confidence / 100}
		}
		flush()
	}
	return regions
}
