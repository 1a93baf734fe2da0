// Package ingest turns paths, byte buffers, readers and decoded images into
// page rasters for the extraction pipeline.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/utils"
)

// Raster is one page of input as an opaque 8-bit RGB image.
type Raster struct {
	Image     *image.NRGBA
	Meta      Metadata
	TextLayer []TextFragment
}

// Metadata describes where a raster came from.
type Metadata struct {
	Format    string  `json:"format"`
	DPI       float64 `json:"dpi,omitempty"`
	Page      int     `json:"page"`
	PageCount int     `json:"page_count"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
}

// TextFragment is a run of embedded PDF text placed in raster coordinates.
type TextFragment struct {
	Text string
	Box  utils.Box
}

// Bounds returns the raster rectangle.
func (r *Raster) Bounds() image.Rectangle { return r.Image.Bounds() }

// Source is exactly one of a path, a byte buffer, a reader or a decoded image.
type Source struct {
	Path   string
	Data   []byte
	Reader io.Reader
	Image  image.Image
	// Name labels the source in logs when Path is empty.
	Name string
}

// FromPath returns a file source.
func FromPath(path string) Source { return Source{Path: path, Name: path} }

// FromBytes returns an in-memory source.
func FromBytes(name string, data []byte) Source { return Source{Data: data, Name: name} }

// FromReader returns a streaming source; it is read fully before decoding.
func FromReader(name string, r io.Reader) Source { return Source{Reader: r, Name: name} }

// FromImage wraps an already decoded image.
func FromImage(name string, img image.Image) Source { return Source{Image: img, Name: name} }

// Label returns a printable name for the source.
func (s Source) Label() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Path != "":
		return s.Path
	default:
		return "<memory>"
	}
}

// Options configures an Ingestor.
type Options struct {
	Constraints utils.ImageConstraints
	// PageRange selects PDF pages, e.g. "1-3,5". Empty means all pages.
	PageRange string
	// TextLayer attaches embedded PDF text to each page raster.
	TextLayer bool
	// Password opens encrypted PDFs.
	Password string
	// PDFScale converts PDF points to pixels for pages without images.
	PDFScale float64
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{
		Constraints: utils.DefaultImageConstraints(),
		TextLayer:   true,
		PDFScale:    2,
	}
}

// Ingestor loads sources. It holds no per-call state and is safe for concurrent use.
type Ingestor struct {
	opts Options
}

// New creates an Ingestor.
func New(opts Options) *Ingestor {
	if opts.PDFScale <= 0 {
		opts.PDFScale = 2
	}
	return &Ingestor{opts: opts}
}

// Load decodes src into one raster per page. Input problems are returned as
// *ledger.UnsupportedFormatError, *ledger.CorruptedSourceError or *ledger.QualityError.
func (in *Ingestor) Load(ctx context.Context, src Source) ([]*Raster, error) {
	start := time.Now()
	if src.Image != nil {
		r := &Raster{Image: utils.Flatten(src.Image), Meta: Metadata{Format: "image", Page: 1, PageCount: 1}}
		if err := in.finish(r); err != nil {
			return nil, err
		}
		return []*Raster{r}, nil
	}

	data, err := readSource(src)
	if err != nil {
		return nil, err
	}
	format := Sniff(data)
	slog.Debug("ingest: source read", "source", src.Label(), "bytes", len(data), "format", format)

	var rasters []*Raster
	switch format {
	case FormatUnknown:
		return nil, &ledger.UnsupportedFormatError{Signature: signatureHex(data)}
	case FormatPDF:
		rasters, err = in.loadPDF(ctx, data)
	default:
		var r *Raster
		r, err = decodeImage(data, format)
		if err == nil {
			rasters = []*Raster{r}
		}
	}
	if err != nil {
		return nil, err
	}

	for _, r := range rasters {
		if err := in.finish(r); err != nil {
			return nil, err
		}
	}
	slog.Debug("ingest: decoded", "source", src.Label(), "pages", len(rasters),
		"duration_ms", time.Since(start).Milliseconds())
	return rasters, nil
}

func (in *Ingestor) finish(r *Raster) error {
	b := r.Image.Bounds()
	r.Meta.Width, r.Meta.Height = b.Dx(), b.Dy()
	if reason := utils.CheckConstraints(b.Dx(), b.Dy(), in.opts.Constraints); reason != "" {
		return &ledger.QualityError{Page: r.Meta.Page, Width: b.Dx(), Height: b.Dy(), Reason: reason}
	}
	return nil
}

func readSource(src Source) ([]byte, error) {
	switch {
	case src.Data != nil:
		return src.Data, nil
	case src.Reader != nil:
		data, err := io.ReadAll(src.Reader)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", src.Label(), err)
		}
		return data, nil
	case src.Path != "":
		data, err := os.ReadFile(src.Path) //nolint:gosec // G304: caller-supplied input path
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", src.Path, err)
		}
		return data, nil
	default:
		return nil, errors.New("empty source")
	}
}
