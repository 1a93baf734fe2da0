package pipeline

import (
	"fmt"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/models"
	"github.com/MeKo-Tech/ledgerscan/internal/orchestrator"
	"github.com/MeKo-Tech/ledgerscan/internal/validate"
)

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg      Config
	orch     *orchestrator.Orchestrator
	progress ProgressCallback
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// NewBuilderFrom starts from an existing config.
func NewBuilderFrom(cfg Config) *Builder { return &Builder{cfg: cfg} }

// WithModelsDir points every ONNX backend at files under dir.
func (b *Builder) WithModelsDir(dir string) *Builder {
	if dir == "" {
		return b
	}
	b.cfg.Detector.DB.ModelPath = models.DetectionPath(dir)
	b.cfg.Recognizer.CTC.ModelPath, b.cfg.Recognizer.CTC.DictionaryPath = models.CTCPaths(dir)
	s := &b.cfg.Recognizer.Seq2Seq
	s.EncoderPath, s.DecoderPath, s.VocabPath = models.Seq2SeqPaths(dir)
	return b
}

// WithDetectorChain sets the detector fallback order.
func (b *Builder) WithDetectorChain(names ...string) *Builder {
	if len(names) > 0 {
		b.cfg.DetectorChain = names
	}
	return b
}

// WithRecognizerChain sets the recognizer fallback order.
func (b *Builder) WithRecognizerChain(names ...string) *Builder {
	if len(names) > 0 {
		b.cfg.RecognizerChain = names
	}
	return b
}

// WithDecoding selects greedy or beam decoding.
func (b *Builder) WithDecoding(mode string, beamWidth int, lengthPenalty float64) *Builder {
	if mode != "" {
		b.cfg.Recognizer.Decode.Mode = mode
	}
	if beamWidth > 0 {
		b.cfg.Recognizer.Decode.BeamWidth = beamWidth
	}
	if lengthPenalty >= 0 {
		b.cfg.Recognizer.Decode.LengthPenalty = lengthPenalty
	}
	return b
}

// WithDetectorThresholds sets the DB probability and box thresholds.
func (b *Builder) WithDetectorThresholds(thresh float32, boxThresh float64) *Builder {
	if thresh > 0 {
		b.cfg.Detector.DB.Thresh = thresh
	}
	if boxThresh > 0 {
		b.cfg.Detector.DB.BoxThresh = boxThresh
	}
	return b
}

// WithConfidenceThreshold sets the recognition acceptance threshold.
func (b *Builder) WithConfidenceThreshold(th float64) *Builder {
	b.cfg.ConfidenceThreshold = th
	return b
}

// WithReviewThreshold sets the per-transaction review threshold.
func (b *Builder) WithReviewThreshold(th float64) *Builder {
	if th > 0 {
		b.cfg.Rules.ReviewThreshold = th
		b.cfg.Scoring.ReviewThreshold = th
	}
	return b
}

// WithCurrency sets the currency code and symbol.
func (b *Builder) WithCurrency(code, symbol string) *Builder {
	if code != "" {
		b.cfg.Rules.Currency = code
	}
	if symbol != "" {
		b.cfg.Rules.CurrencySymbol = symbol
	}
	return b
}

// WithDateLayouts adds Go time layouts tried after the built-in formats.
func (b *Builder) WithDateLayouts(layouts ...string) *Builder {
	b.cfg.Rules.DateLayouts = append(b.cfg.Rules.DateLayouts, layouts...)
	return b
}

// WithStrictness selects a validation preset and keeps the date bounds.
func (b *Builder) WithStrictness(level string) *Builder {
	if level == "" {
		return b
	}
	minDate, maxDate := b.cfg.Validation.MinDate, b.cfg.Validation.MaxDate
	b.cfg.Validation = validate.ConfigFor(level)
	b.cfg.Validation.Strictness = level
	b.cfg.Validation.MinDate, b.cfg.Validation.MaxDate = minDate, maxDate
	b.cfg.Scoring.BalanceTolerance = b.cfg.Validation.BalanceTolerance
	return b
}

// WithMaxDate sets the latest plausible transaction date (YYYY-MM-DD).
func (b *Builder) WithMaxDate(date string) *Builder {
	b.cfg.Validation.MaxDate = date
	return b
}

// WithPreprocessing enables or disables page cleaning.
func (b *Builder) WithPreprocessing(enabled bool) *Builder {
	b.cfg.Preprocess.Enabled = enabled
	return b
}

// WithDeskew toggles small-angle rotation correction during page cleaning.
func (b *Builder) WithDeskew(enabled bool) *Builder {
	b.cfg.Preprocess.Deskew = enabled
	return b
}

// WithTextLayer toggles reading embedded PDF text.
func (b *Builder) WithTextLayer(enabled bool) *Builder {
	b.cfg.UseTextLayer = enabled
	b.cfg.Ingest.TextLayer = enabled
	return b
}

// WithPageRange selects PDF pages, e.g. "1-3,5".
func (b *Builder) WithPageRange(pages string) *Builder {
	b.cfg.Ingest.PageRange = pages
	return b
}

// WithTimeout bounds each detect and recognize call.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	if d >= 0 {
		b.cfg.Timeout = d
	}
	return b
}

// WithParallelWorkers bounds parallel recognition.
func (b *Builder) WithParallelWorkers(n int) *Builder {
	if n > 0 {
		b.cfg.MaxWorkers = n
	}
	return b
}

// WithTimings includes stage timings in the output.
func (b *Builder) WithTimings(enabled bool) *Builder {
	b.cfg.IncludeTimings = enabled
	return b
}

// WithOrchestrator shares loaded backends with other pipelines. The
// pipeline does not close a shared orchestrator.
func (b *Builder) WithOrchestrator(o *orchestrator.Orchestrator) *Builder {
	b.orch = o
	return b
}

// WithProgressCallback receives stage events.
func (b *Builder) WithProgressCallback(cb ProgressCallback) *Builder {
	b.progress = cb
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks the configuration.
func (b *Builder) Validate() error { return b.cfg.Validate() }

// Build validates the configuration and constructs the pipeline. Backends
// are loaded on first use, not here.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return newPipeline(b.cfg, b.orch, b.progress)
}
