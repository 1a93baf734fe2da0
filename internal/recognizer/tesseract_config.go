package recognizer

// TesseractConfig configures the Tesseract line recognizer.
type TesseractConfig struct {
	Language      string  `mapstructure:"language" yaml:"language" json:"language"`
	LowConfidence float64 `mapstructure:"low_confidence" yaml:"low_confidence" json:"low_confidence"`
}

// DefaultTesseractConfig reads English.
func DefaultTesseractConfig() TesseractConfig {
	return TesseractConfig{Language: "eng", LowConfidence: 0.7}
}
