package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/utils"
	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfModes are the pdfcpu validation modes tried in order.
var pdfModes = []struct {
	name string
	mode int
}{
	{"pdfcpu-strict", model.ValidationStrict},
	{"pdfcpu-relaxed", model.ValidationRelaxed},
}

// loadPDF extracts one raster per selected page.
func (in *Ingestor) loadPDF(ctx context.Context, data []byte) ([]*Raster, error) {
	tmp, err := os.MkdirTemp("", "ledgerscan-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	inFile := filepath.Join(tmp, "source.pdf")
	if err := os.WriteFile(inFile, data, 0o600); err != nil {
		return nil, fmt.Errorf("stage pdf: %w", err)
	}

	var layers map[int]pageText
	if in.opts.TextLayer {
		layers = readTextLayer(data)
	}

	var attempts []ledger.DecodeAttempt
	for i, m := range pdfModes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outDir := filepath.Join(tmp, "pages-"+strconv.Itoa(i))
		rasters, err := in.extractPages(data, inFile, outDir, m.mode, layers)
		if err == nil && len(rasters) > 0 {
			return rasters, nil
		}
		if err == nil {
			err = errors.New("no page produced an image or text layer")
		}
		slog.Debug("ingest: pdf strategy failed", "strategy", m.name, "error", err)
		attempts = append(attempts, ledger.DecodeAttempt{Strategy: m.name, Err: err})
	}
	return nil, &ledger.CorruptedSourceError{Format: string(FormatPDF), Attempts: attempts}
}

func (in *Ingestor) pdfConfig(mode int) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = mode
	if in.opts.Password != "" {
		conf.UserPW = in.opts.Password
		conf.OwnerPW = in.opts.Password
	}
	return conf
}

func (in *Ingestor) extractPages(data []byte, inFile, outDir string, mode int, layers map[int]pageText) ([]*Raster, error) {
	conf := in.pdfConfig(mode)
	pdfCtx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	total := pdfCtx.PageCount

	pages, err := parsePageRange(in.opts.PageRange)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", in.opts.PageRange, err)
	}
	if len(pages) == 0 {
		for p := 1; p <= total; p++ {
			pages = append(pages, p)
		}
	}

	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	selected := make([]string, 0, len(pages))
	for _, p := range pages {
		selected = append(selected, strconv.Itoa(p))
	}
	if err := api.ExtractImagesFile(inFile, outDir, selected, conf); err != nil {
		return nil, fmt.Errorf("extract images: %w", err)
	}
	images, err := collectExtractedImages(outDir)
	if err != nil {
		return nil, err
	}

	rasters := make([]*Raster, 0, len(pages))
	for _, p := range pages {
		if p < 1 || p > total {
			continue
		}
		layer, hasText := layers[p]
		img := largest(images[p])
		switch {
		case img != nil:
			r := &Raster{Image: utils.Flatten(img), Meta: Metadata{Format: string(FormatPDF), Page: p, PageCount: total}}
			if hasText && layer.width > 0 {
				r.Meta.DPI = float64(img.Bounds().Dx()) / layer.width * 72
				r.TextLayer = layer.place(float64(img.Bounds().Dx()) / layer.width)
			}
			rasters = append(rasters, r)
		case hasText && len(layer.runs) > 0:
			// Born-digital page: a blank canvas carries the text layer.
			w := int(layer.width*in.opts.PDFScale + 0.5)
			h := int(layer.height*in.opts.PDFScale + 0.5)
			rasters = append(rasters, &Raster{
				Image:     imaging.New(w, h, utils.White),
				Meta:      Metadata{Format: string(FormatPDF), DPI: 72 * in.opts.PDFScale, Page: p, PageCount: total},
				TextLayer: layer.place(in.opts.PDFScale),
			})
		default:
			slog.Warn("ingest: pdf page has neither images nor text", "page", p)
		}
	}
	return rasters, nil
}

// largest picks the image with the biggest area; scanned pages embed the scan
// as the dominant image.
func largest(imgs []image.Image) image.Image {
	var best image.Image
	bestArea := 0
	for _, img := range imgs {
		b := img.Bounds()
		if a := b.Dx() * b.Dy(); a > bestArea {
			best, bestArea = img, a
		}
	}
	return best
}

// collectExtractedImages groups pdfcpu output files (page_<n>_...) by page,
// in file-name order so the result is stable.
func collectExtractedImages(dir string) (map[int][]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read extracted images: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	result := make(map[int][]image.Image)
	for _, name := range names {
		page, err := parsePageFromFilename(name)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // G304: our own temp dir
		if err != nil {
			continue
		}
		format := Sniff(data)
		if format == FormatUnknown || format == FormatPDF {
			continue
		}
		r, err := decodeImage(data, format)
		if err != nil {
			slog.Debug("ingest: skip unreadable embedded image", "file", name, "error", err)
			continue
		}
		result[page] = append(result[page], r.Image)
	}
	return result, nil
}

// parsePageFromFilename extracts the page number from pdfcpu names such as
// page_1_image_1.png or source_1_Im0.jpg.
func parsePageFromFilename(filename string) (int, error) {
	parts := strings.Split(strings.TrimSuffix(filename, filepath.Ext(filename)), "_")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "page" || parts[i] == "source" {
			if n, err := strconv.Atoi(parts[i+1]); err == nil {
				return n, nil
			}
		}
	}
	return 0, errors.New("not a page image file")
}

// parsePageRange parses "1-5" or "1,3,5" style selections. Empty means all.
func parsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}
	seen := make(map[int]bool)
	var pages []int
	for _, part := range strings.Split(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		for _, p := range tokenPages {
			if !seen[p] {
				seen[p] = true
				pages = append(pages, p)
			}
		}
	}
	sort.Ints(pages)
	return pages, nil
}

func parseRangeToken(part string) ([]int, error) {
	if lo, hi, ok := strings.Cut(part, "-"); ok {
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid start page: %s", lo)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", hi)
		}
		if start < 1 || start > end {
			return nil, fmt.Errorf("invalid range %d-%d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil || page < 1 {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	return []int{page}, nil
}
