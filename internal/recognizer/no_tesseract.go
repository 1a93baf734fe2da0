//go:build !tesseract

package recognizer

import (
	"fmt"

	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
)

const tesseractAvailable = false

// NewTesseract reports that this build has no Tesseract support.
func NewTesseract(TesseractConfig, CleanOptions) (Recognizer, error) {
	return nil, fmt.Errorf("%s recognizer: %w (rebuild with -tags tesseract)", BackendTesseract, ledger.ErrNoBackend)
}
