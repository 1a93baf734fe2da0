package batch

import (
	"runtime"

	"github.com/MeKo-Tech/ledgerscan/internal/pipeline"
)

// DefaultPatterns are the file names picked up when a directory is given.
var DefaultPatterns = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.bmp", "*.tif", "*.tiff", "*.webp", "*.pdf",
}

// Options controls discovery and parallelism.
type Options struct {
	// Workers bounds the files processed at once; 0 means one per CPU.
	Workers int

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Progress returns the callback for one file, or nil.
	Progress func(path string) pipeline.ProgressCallback
}

func (o Options) workers(files int) int {
	n := o.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return max(1, min(n, files))
}

func (o Options) includePatterns() []string {
	if len(o.IncludePatterns) == 0 {
		return DefaultPatterns
	}
	return o.IncludePatterns
}
