package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MeKo-Tech/ledgerscan/internal/recognizer"
)

// Preset names.
const (
	PresetDefault   = "default"
	PresetFast      = "fast"
	PresetAccurate  = "accurate"
	PresetTesseract = "tesseract"
)

var presets = map[string]func(*PipelineConfig){
	PresetDefault: func(*PipelineConfig) {},
	PresetFast: func(p *PipelineConfig) {
		p.Detector.DBThresh = 0.5
		p.MaxWorkers = 16
	},
	PresetAccurate: func(p *PipelineConfig) {
		p.Detector.DBThresh = 0.2
		p.Detector.DBBoxThresh = 0.5
		p.Recognizer.DecodeMode = recognizer.DecodeBeam
		p.Recognizer.BeamWidth = 5
		p.MaxWorkers = 4
		p.Preprocess = true
		p.Deskew = true
	},
	PresetTesseract: func(p *PipelineConfig) {
		p.RecognizerChain = []string{recognizer.BackendTesseract, recognizer.BackendGlyph}
	},
}

// Presets lists the preset names in sorted order.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PresetConfig returns DefaultConfig with the named preset applied to the
// pipeline section.
func PresetConfig(name string) (Config, error) {
	apply, ok := presets[strings.ToLower(name)]
	if !ok {
		return Config{}, fmt.Errorf("unknown preset %q (must be one of: %s)", name, strings.Join(Presets(), ", "))
	}
	cfg := DefaultConfig()
	cfg.Preset = strings.ToLower(name)
	apply(&cfg.Pipeline)
	return cfg, nil
}
