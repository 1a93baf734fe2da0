// Package detector finds text regions on a page raster. Backends share the
// Detector interface and are selected by name.
package detector

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/MeKo-Tech/ledgerscan/internal/ingest"
	"github.com/MeKo-Tech/ledgerscan/internal/layout"
)

// Backend names.
const (
	BackendProjection = "projection"
	BackendONNXDB     = "onnx-db"
	BackendTesseract  = "tesseract"
)

// Detector returns text regions in raster coordinates. Implementations are
// safe for concurrent use once constructed.
type Detector interface {
	Name() string
	Detect(ctx context.Context, r *ingest.Raster) ([]layout.Region, error)
	Close() error
}

// Config bundles the settings of every backend.
type Config struct {
	Projection ProjectionConfig `mapstructure:"projection" yaml:"projection" json:"projection"`
	DB         DBConfig         `mapstructure:"db" yaml:"db" json:"db"`
	Tesseract  TesseractConfig  `mapstructure:"tesseract" yaml:"tesseract" json:"tesseract"`
}

// DefaultConfig returns defaults for all backends.
func DefaultConfig() Config {
	return Config{
		Projection: DefaultProjectionConfig(),
		DB:         DefaultDBConfig(),
		Tesseract:  DefaultTesseractConfig(),
	}
}

// Names lists the backends this build can construct.
func Names() []string {
	names := []string{BackendProjection, BackendONNXDB}
	if tesseractAvailable {
		names = append(names, BackendTesseract)
	}
	return names
}

// New constructs the named backend.
func New(name string, cfg Config) (Detector, error) {
	switch name {
	case BackendProjection:
		return NewProjection(cfg.Projection), nil
	case BackendONNXDB:
		return NewDB(cfg.DB)
	case BackendTesseract:
		return NewTesseract(cfg.Tesseract)
	default:
		return nil, fmt.Errorf("unknown detector backend %q", name)
	}
}

// finalize clamps regions to the raster, drops empty ones and stamps the
// backend name.
func finalize(regions []layout.Region, bounds image.Rectangle, backend string) []layout.Region {
	out := make([]layout.Region, 0, len(regions))
	for _, r := range regions {
		r = r.Clamp(bounds)
		if !r.Valid() {
			continue
		}
		r.Confidence = clamp01(r.Confidence)
		r.Backend = backend
		out = append(out, r)
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
