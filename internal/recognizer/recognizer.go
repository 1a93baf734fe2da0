// Package recognizer turns line crops into text. Backends produce a Sequence
// of token scores and share the greedy and beam decoders in decode.go.
package recognizer

import (
	"context"
	"fmt"

	"github.com/MeKo-Tech/ledgerscan/internal/layout"
)

// Backend names.
const (
	BackendGlyph     = "glyph"
	BackendCTC       = "onnx-ctc"
	BackendSeq2Seq   = "onnx-seq2seq"
	BackendTesseract = "tesseract"
)

// Result is the recognition of one crop.
type Result struct {
	Text             string    `json:"text"`
	Confidence       float64   `json:"confidence"`
	TokenConfidences []float64 `json:"token_confidences,omitempty"`
	Backend          string    `json:"backend"`
	LowConfidence    bool      `json:"low_confidence,omitempty"`
}

// Recognizer reads the text of crops. Implementations are safe for
// concurrent use and do not modify the crop.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, crop layout.Crop) (Result, error)
	RecognizeBatch(ctx context.Context, crops []layout.Crop) ([]Result, error)
	Close() error
}

// Config bundles decoding, text clean-up and every backend's settings.
type Config struct {
	Decode    DecodeConfig    `mapstructure:"decode" yaml:"decode" json:"decode"`
	Clean     CleanOptions    `mapstructure:"clean" yaml:"clean" json:"clean"`
	Glyph     GlyphConfig     `mapstructure:"glyph" yaml:"glyph" json:"glyph"`
	CTC       CTCConfig       `mapstructure:"ctc" yaml:"ctc" json:"ctc"`
	Seq2Seq   Seq2SeqConfig   `mapstructure:"seq2seq" yaml:"seq2seq" json:"seq2seq"`
	Tesseract TesseractConfig `mapstructure:"tesseract" yaml:"tesseract" json:"tesseract"`
}

// DefaultConfig returns defaults for all backends.
func DefaultConfig() Config {
	return Config{
		Decode:    DefaultDecodeConfig(),
		Clean:     DefaultCleanOptions(),
		Glyph:     DefaultGlyphConfig(),
		CTC:       DefaultCTCConfig(),
		Seq2Seq:   DefaultSeq2SeqConfig(),
		Tesseract: DefaultTesseractConfig(),
	}
}

// Names lists the backends this build can construct.
func Names() []string {
	names := []string{BackendGlyph, BackendCTC, BackendSeq2Seq}
	if tesseractAvailable {
		names = append(names, BackendTesseract)
	}
	return names
}

// New constructs the named backend.
func New(name string, cfg Config) (Recognizer, error) {
	if err := cfg.Decode.Validate(); err != nil {
		return nil, err
	}
	switch name {
	case BackendGlyph:
		return NewGlyph(cfg.Glyph, cfg.Decode, cfg.Clean), nil
	case BackendCTC:
		return NewCTC(cfg.CTC, cfg.Decode, cfg.Clean)
	case BackendSeq2Seq:
		return NewSeq2Seq(cfg.Seq2Seq, cfg.Decode, cfg.Clean)
	case BackendTesseract:
		return NewTesseract(cfg.Tesseract, cfg.Clean)
	default:
		return nil, fmt.Errorf("unknown recognizer backend %q", name)
	}
}

// recognizeEach runs recognize over crops in order, stopping at the first
// error or cancellation.
func recognizeEach(ctx context.Context, crops []layout.Crop,
	recognize func(context.Context, layout.Crop) (Result, error),
) ([]Result, error) {
	out := make([]Result, len(crops))
	for i, c := range crops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := recognize(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("crop %d: %w", i, err)
		}
		out[i] = res
	}
	return out, nil
}
