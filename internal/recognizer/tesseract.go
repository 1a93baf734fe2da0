//go:build tesseract

package recognizer

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"
	"sync"

	"github.com/MeKo-Tech/ledgerscan/internal/layout"
	"github.com/otiai10/gosseract/v2"
)

const tesseractAvailable = true

// Tesseract reads single-line crops with Tesseract. Confidence is the
// geometric mean of the word confidences.
type Tesseract struct {
	cfg   TesseractConfig
	clean CleanOptions

	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates a Tesseract-backed recognizer.
func NewTesseract(cfg TesseractConfig, clean CleanOptions) (Recognizer, error) {
	client := gosseract.NewClient()
	if cfg.Language != "" {
		if err := client.SetLanguage(cfg.Language); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to set tesseract language: %w", err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	return &Tesseract{cfg: cfg, clean: clean, client: client}, nil
}

// Name implements Recognizer.
func (t *Tesseract) Name() string { return BackendTesseract }

// Close implements Recognizer.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}

// RecognizeBatch implements Recognizer.
func (t *Tesseract) RecognizeBatch(ctx context.Context, crops []layout.Crop) ([]Result, error) {
	return recognizeEach(ctx, crops, t.Recognize)
}

// Recognize implements Recognizer.
func (t *Tesseract) Recognize(ctx context.Context, crop layout.Crop) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	res := Result{Backend: BackendTesseract}
	if crop.Image == nil {
		return res, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, crop.Image); err != nil {
		return Result{}, fmt.Errorf("failed to encode crop: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return Result{}, fmt.Errorf("failed to set tesseract image: %w", err)
	}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return Result{}, fmt.Errorf("tesseract recognition failed: %w", err)
	}
	words := make([]string, 0, len(boxes))
	probs := make([]float64, 0, len(boxes))
	for _, b := range boxes {
		w := strings.TrimSpace(b.Word)
		if w == "" {
			continue
		}
		words = append(words, w)
		probs = append(probs, b.Confidence/100)
	}
	res.Text = CleanText(strings.Join(words, " "), t.clean)
	res.TokenConfidences = probs
	res.Confidence = GeometricMean(probs)
	res.LowConfidence = res.Confidence < t.cfg.LowConfidence
	return res, nil
}
