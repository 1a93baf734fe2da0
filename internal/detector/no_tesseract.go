//go:build !tesseract

package detector

import (
	"fmt"

	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
)

const tesseractAvailable = false

// NewTesseract reports that this build has no Tesseract support.
func NewTesseract(TesseractConfig) (Detector, error) {
	return nil, fmt.Errorf("%s detector: %w (rebuild with -tags tesseract)", BackendTesseract, ledger.ErrNoBackend)
}
