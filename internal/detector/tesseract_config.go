package detector

// TesseractConfig configures the Tesseract line detector, available in
// builds tagged "tesseract".
type TesseractConfig struct {
	Language string `mapstructure:"language" yaml:"language" json:"language"`
	// MergeFactor joins words on a line whose gap is at most this many word
	// heights, so table cells come out as single regions.
	MergeFactor   float64 `mapstructure:"merge_factor" yaml:"merge_factor" json:"merge_factor"`
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence" json:"min_confidence"`
}

// DefaultTesseractConfig returns English with cell-level merging.
func DefaultTesseractConfig() TesseractConfig {
	return TesseractConfig{Language: "eng", MergeFactor: 1.2, MinConfidence: 0.1}
}
