package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/detector"
	"github.com/MeKo-Tech/ledgerscan/internal/export"
	"github.com/MeKo-Tech/ledgerscan/internal/models"
	"github.com/MeKo-Tech/ledgerscan/internal/onnx"
	"github.com/MeKo-Tech/ledgerscan/internal/pipeline"
	"github.com/MeKo-Tech/ledgerscan/internal/recognizer"
	"github.com/MeKo-Tech/ledgerscan/internal/rules"
	"github.com/MeKo-Tech/ledgerscan/internal/validate"
)

// Backends a chain may name. Backends missing from the build are accepted
// here and reported when the chain first reaches them.
var (
	knownDetectors   = []string{detector.BackendProjection, detector.BackendONNXDB, detector.BackendTesseract}
	knownRecognizers = []string{
		recognizer.BackendGlyph, recognizer.BackendCTC, recognizer.BackendSeq2Seq, recognizer.BackendTesseract,
	}
)

func validateChain(key string, chain, known []string) error {
	for _, name := range chain {
		if !slices.Contains(known, name) {
			return fmt.Errorf("invalid %s: unknown backend %q (must be one of: %s)", key, name, strings.Join(known, ", "))
		}
	}
	return nil
}

// DefaultConfig returns the "default" preset with default server settings.
func DefaultConfig() Config {
	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		LogFormat: "json",
		Preset:    PresetDefault,
		Pipeline:  defaultPipelineConfig(),
		Validation: ValidationConfig{
			Strictness:     validate.StrictnessMedium,
			MinDate:        validate.DefaultMinDate,
			Currency:       rules.DefaultConfig().Currency,
			CurrencySymbol: rules.DefaultConfig().CurrencySymbol,
		},
		Output: OutputConfig{
			Format: export.FormatJSON,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      60,
			ShutdownTimeout: 10,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
				MaxRequestsPerDay: 5000,
				MaxDataPerDay:     100 * 1024 * 1024,
			},
		},
		GPU: GPUConfig{MemoryLimit: "auto"},
	}
}

func defaultPipelineConfig() PipelineConfig {
	p := pipeline.DefaultConfig()
	return PipelineConfig{
		DetectorChain:       p.DetectorChain,
		RecognizerChain:     p.RecognizerChain,
		ConfidenceThreshold: p.ConfidenceThreshold,
		ReviewThreshold:     p.Scoring.ReviewThreshold,
		Timeout:             p.Timeout,
		UseTextLayer:        p.UseTextLayer,
		Preprocess:          p.Preprocess.Enabled,
		Deskew:              p.Preprocess.Deskew,
		Detector: DetectorConfig{
			DBThresh:          p.Detector.DB.Thresh,
			DBBoxThresh:       0.6,
			MaxSide:           p.Detector.DB.MaxSide,
			UseNMS:            p.Detector.DB.UseNMS,
			NMSThreshold:      p.Detector.DB.NMSThreshold,
			TesseractLanguage: p.Detector.Tesseract.Language,
		},
		Recognizer: RecognizerConfig{
			DecodeMode:        p.Recognizer.Decode.Mode,
			BeamWidth:         1,
			LengthPenalty:     p.Recognizer.Decode.LengthPenalty,
			TesseractLanguage: p.Recognizer.Tesseract.Language,
		},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.LogFormat != "" && c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.LogFormat)
	}
	if c.Preset != "" {
		if _, err := PresetConfig(c.Preset); err != nil {
			return err
		}
	}
	if c.Output.Format != "" && !slices.Contains(export.Formats(), c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)",
			c.Output.Format, strings.Join(export.Formats(), ", "))
	}

	p := c.Pipeline
	if len(p.DetectorChain) == 0 {
		return fmt.Errorf("pipeline.detector_chain must name at least one backend")
	}
	if len(p.RecognizerChain) == 0 {
		return fmt.Errorf("pipeline.recognizer_chain must name at least one backend")
	}
	if err := validateChain("pipeline.detector_chain", p.DetectorChain, knownDetectors); err != nil {
		return err
	}
	if err := validateChain("pipeline.recognizer_chain", p.RecognizerChain, knownRecognizers); err != nil {
		return err
	}
	for _, t := range []struct {
		name  string
		value float64
	}{
		{"pipeline.confidence_threshold", p.ConfidenceThreshold},
		{"pipeline.review_threshold", p.ReviewThreshold},
		{"pipeline.detector.db_thresh", float64(p.Detector.DBThresh)},
		{"pipeline.detector.db_box_thresh", p.Detector.DBBoxThresh},
		{"pipeline.detector.nms_threshold", p.Detector.NMSThreshold},
	} {
		if err := validateThreshold(t.value, t.name); err != nil {
			return err
		}
	}
	if p.Timeout < 0 {
		return fmt.Errorf("invalid pipeline.timeout: %s (must not be negative)", p.Timeout)
	}
	if p.MaxWorkers < 0 {
		return fmt.Errorf("invalid pipeline.max_workers: %d (must not be negative)", p.MaxWorkers)
	}
	decode := recognizer.DecodeConfig{
		Mode:          p.Recognizer.DecodeMode,
		BeamWidth:     p.Recognizer.BeamWidth,
		LengthPenalty: p.Recognizer.LengthPenalty,
	}
	if err := decode.Validate(); err != nil {
		return fmt.Errorf("pipeline.recognizer: %w", err)
	}

	v := validate.Config{
		Strictness:       c.Validation.Strictness,
		BalanceTolerance: c.Validation.BalanceTolerance,
		MinDate:          c.Validation.MinDate,
		MaxDate:          c.Validation.MaxDate,
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("validation: %w", err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}

	if _, err := parseMemoryLimit(c.GPU.MemoryLimit); err != nil {
		return fmt.Errorf("invalid GPU memory limit: %w", err)
	}
	return nil
}

// ToPipelineConfig converts the config to the pipeline configuration.
func (c *Config) ToPipelineConfig() pipeline.Config {
	p := c.Pipeline
	b := pipeline.NewBuilder().
		WithModelsDir(c.ModelsDir).
		WithDetectorChain(p.DetectorChain...).
		WithRecognizerChain(p.RecognizerChain...).
		WithDetectorThresholds(p.Detector.DBThresh, p.Detector.DBBoxThresh).
		WithDecoding(p.Recognizer.DecodeMode, p.Recognizer.BeamWidth, p.Recognizer.LengthPenalty).
		WithConfidenceThreshold(p.ConfidenceThreshold).
		WithStrictness(c.Validation.Strictness).
		WithReviewThreshold(p.ReviewThreshold).
		WithCurrency(c.Validation.Currency, c.Validation.CurrencySymbol).
		WithDateLayouts(c.Validation.DateLayouts...).
		WithMaxDate(c.Validation.MaxDate).
		WithPreprocessing(p.Preprocess).
		WithDeskew(p.Deskew).
		WithTextLayer(p.UseTextLayer).
		WithPageRange(p.PageRange).
		WithTimeout(p.Timeout).
		WithParallelWorkers(p.MaxWorkers).
		WithTimings(c.Output.IncludeTimings)
	cfg := b.Config()

	if c.Validation.MinDate != "" {
		cfg.Validation.MinDate = c.Validation.MinDate
	}
	// A zero tolerance keeps the strictness preset's value.
	if c.Validation.BalanceTolerance > 0 {
		cfg.Validation.BalanceTolerance = c.Validation.BalanceTolerance
		cfg.Scoring.BalanceTolerance = c.Validation.BalanceTolerance
	}

	d := &cfg.Detector
	if p.Detector.ModelPath != "" {
		d.DB.ModelPath = p.Detector.ModelPath
	}
	if p.Detector.MaxSide > 0 {
		d.DB.MaxSide = p.Detector.MaxSide
	}
	d.DB.UseNMS = p.Detector.UseNMS
	if p.Detector.NMSThreshold > 0 {
		d.DB.NMSThreshold = p.Detector.NMSThreshold
	}
	if p.Detector.TesseractLanguage != "" {
		d.Tesseract.Language = p.Detector.TesseractLanguage
	}

	r := &cfg.Recognizer
	if p.Recognizer.ModelPath != "" {
		r.CTC.ModelPath = p.Recognizer.ModelPath
	}
	if p.Recognizer.DictPath != "" {
		r.CTC.DictionaryPath = p.Recognizer.DictPath
	}
	if p.Recognizer.TesseractLanguage != "" {
		r.Tesseract.Language = p.Recognizer.TesseractLanguage
	}

	gpu := c.toGPUConfig()
	for _, s := range []*onnx.SessionConfig{&d.DB.Session, &r.CTC.Session, &r.Seq2Seq.Session} {
		s.GPU = gpu
	}
	if p.Detector.NumThreads > 0 {
		d.DB.Session.NumThreads = p.Detector.NumThreads
	}
	if p.Recognizer.NumThreads > 0 {
		r.CTC.Session.NumThreads = p.Recognizer.NumThreads
		r.Seq2Seq.Session.NumThreads = p.Recognizer.NumThreads
	}
	return cfg
}

func (c *Config) toGPUConfig() onnx.GPUConfig {
	gpu := onnx.DefaultGPUConfig()
	gpu.UseGPU = c.GPU.Enabled
	gpu.DeviceID = c.GPU.Device
	if limit, err := parseMemoryLimit(c.GPU.MemoryLimit); err == nil {
		gpu.GPUMemLimit = limit
	}
	return gpu
}

// ServerTimeout is the request timeout as a duration.
func (c *Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSec) * time.Second
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

// parseMemoryLimit reads limits such as "512MB" or "1.5GB". "auto" and the
// empty string mean unlimited.
func parseMemoryLimit(limit string) (uint64, error) {
	if limit == "" || limit == "auto" {
		return 0, nil
	}
	upper := strings.ToUpper(strings.TrimSpace(limit))
	for _, unit := range []struct {
		suffix string
		scale  float64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		num, ok := strings.CutSuffix(upper, unit.suffix)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid number in memory limit: %s", limit)
		}
		return uint64(v * unit.scale), nil
	}
	return 0, fmt.Errorf("memory limit must end with one of: B, KB, MB, GB")
}
