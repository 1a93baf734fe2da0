package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/detector"
	"github.com/MeKo-Tech/ledgerscan/internal/ingest"
	"github.com/MeKo-Tech/ledgerscan/internal/layout"
	"github.com/MeKo-Tech/ledgerscan/internal/preprocess"
	"github.com/MeKo-Tech/ledgerscan/internal/recognizer"
	"github.com/MeKo-Tech/ledgerscan/internal/rules"
	"github.com/MeKo-Tech/ledgerscan/internal/scoring"
	"github.com/MeKo-Tech/ledgerscan/internal/table"
	"github.com/MeKo-Tech/ledgerscan/internal/validate"
)

// Config holds configuration for the extraction pipeline and its components.
type Config struct {
	Ingest     ingest.Options     `mapstructure:"ingest" yaml:"ingest" json:"ingest"`
	Preprocess preprocess.Config  `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	Detector   detector.Config    `mapstructure:"detector" yaml:"detector" json:"detector"`
	Recognizer recognizer.Config  `mapstructure:"recognizer" yaml:"recognizer" json:"recognizer"`
	Crop       layout.CropOptions `mapstructure:"crop" yaml:"crop" json:"crop"`
	Table      table.Config       `mapstructure:"table" yaml:"table" json:"table"`
	Rules      rules.Config       `mapstructure:"rules" yaml:"rules" json:"rules"`
	Validation validate.Config    `mapstructure:"validation" yaml:"validation" json:"validation"`
	Scoring    scoring.Config     `mapstructure:"scoring" yaml:"scoring" json:"scoring"`

	// DetectorChain and RecognizerChain name backends in fallback order.
	DetectorChain   []string `mapstructure:"detector_chain" yaml:"detector_chain" json:"detector_chain"`
	RecognizerChain []string `mapstructure:"recognizer_chain" yaml:"recognizer_chain" json:"recognizer_chain"`
	// ConfidenceThreshold accepts a recognition without trying the next backend.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold" json:"confidence_threshold"`
	// Timeout bounds every detect and recognize call.
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	MaxWorkers int           `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
	// UseTextLayer reads PDF pages from their embedded text when present.
	UseTextLayer bool `mapstructure:"use_text_layer" yaml:"use_text_layer" json:"use_text_layer"`
	// IncludeTimings adds elapsed times to the document metadata, which
	// makes the output differ between runs.
	IncludeTimings bool `mapstructure:"include_timings" yaml:"include_timings" json:"include_timings"`
}

// DefaultConfig returns a model-free configuration: projection detection
// and glyph recognition, with the ONNX backends next in the chains.
func DefaultConfig() Config {
	return Config{
		Ingest:              ingest.DefaultOptions(),
		Preprocess:          preprocess.DefaultConfig(),
		Detector:            detector.DefaultConfig(),
		Recognizer:          recognizer.DefaultConfig(),
		Crop:                layout.DefaultCropOptions(),
		Table:               table.DefaultConfig(),
		Rules:               rules.DefaultConfig(),
		Validation:          validate.DefaultConfig(),
		Scoring:             scoring.DefaultConfig(),
		DetectorChain:       []string{detector.BackendProjection, detector.BackendONNXDB},
		RecognizerChain:     []string{recognizer.BackendGlyph, recognizer.BackendCTC},
		ConfidenceThreshold: 0.7,
		Timeout:             30 * time.Second,
		UseTextLayer:        true,
	}
}

// Validate checks the settings that cannot be repaired with defaults.
func (c Config) Validate() error {
	if len(c.DetectorChain) == 0 {
		return errors.New("detector chain is empty")
	}
	if len(c.RecognizerChain) == 0 {
		return errors.New("recognizer chain is empty")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be within [0,1], got %v", c.ConfidenceThreshold)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %s", c.Timeout)
	}
	if err := c.Recognizer.Decode.Validate(); err != nil {
		return fmt.Errorf("recognizer: %w", err)
	}
	if err := c.Validation.Validate(); err != nil {
		return fmt.Errorf("validation: %w", err)
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	return nil
}
