// Command generate-test-data renders synthetic bank statements together with
// their ground truth, for evaluation runs and manual testing.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/shopspring/decimal"

	"github.com/MeKo-Tech/ledgerscan/internal/testutil"
)

// fixture describes one generated statement.
type fixture struct {
	Name  string `json:"name"`
	Image string `json:"image"`
	PDF   string `json:"pdf,omitempty"`
	Truth string `json:"truth"`
	Rows  int    `json:"rows"`
	Ruled bool   `json:"ruled"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		outDir  = flag.String("out", "testdata/statements", "output directory, relative to the project root")
		rows    = flag.Int("rows", 25, "transactions in the long statement")
		withPDF = flag.Bool("pdf", true, "also wrap every statement image in a PDF")
		help    = flag.Bool("h", false, "Show help")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate synthetic statements and ground truth for ledgerscan.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s                  # Generate the default set\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -rows 100 -pdf=false\n", os.Args[0])
	}
	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	dir := *outDir
	if !filepath.IsAbs(dir) {
		root, err := testutil.GetProjectRoot()
		if err != nil {
			slog.Error("Failed to find project root", "error", err)
			os.Exit(1)
		}
		dir = filepath.Join(root, dir)
	}

	fixtures, err := generate(dir, *rows, *withPDF)
	if err != nil {
		slog.Error("Failed to generate test data", "error", err)
		os.Exit(1)
	}
	slog.Info("Test data generation completed", "dir", dir, "statements", len(fixtures))
}

// generate writes every statement, its truth CSV and a manifest into dir.
func generate(dir string, longRows int, withPDF bool) ([]fixture, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	ruled := testutil.DefaultRenderOptions()
	ruled.RuledLines = true
	specs := []struct {
		name string
		rows [][]string
		opts testutil.RenderOptions
	}{
		{"sample", testutil.SampleRows(), testutil.DefaultRenderOptions()},
		{"ruled", testutil.SampleRows(), ruled},
		{"long", testutil.GenerateRows(longRows, decimal.NewFromInt(250000)), testutil.DefaultRenderOptions()},
	}

	fixtures := make([]fixture, 0, len(specs))
	for _, s := range specs {
		img, _ := testutil.RenderStatement(testutil.StatementHeader, s.rows, s.opts)
		f := fixture{
			Name:  s.name,
			Image: s.name + ".png",
			Truth: s.name + ".truth.csv",
			Rows:  len(s.rows),
			Ruled: s.opts.RuledLines,
		}
		if err := writePNG(filepath.Join(dir, f.Image), img); err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, f.Truth), []byte(testutil.TruthCSV(s.rows)), 0o600); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.Truth, err)
		}
		if withPDF {
			f.PDF = s.name + ".pdf"
			if err := imageToPDF(filepath.Join(dir, f.Image), filepath.Join(dir, f.PDF)); err != nil {
				return nil, err
			}
		}
		slog.Info("Generated statement", "name", f.Name, "rows", f.Rows)
		fixtures = append(fixtures, f)
	}

	manifest, err := json.MarshalIndent(fixtures, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), append(manifest, '\n'), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return fixtures, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path) //nolint:gosec // G304: generated output path
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

// imageToPDF places the image on a single page without a text layer, the way
// a scanner would.
func imageToPDF(imagePath, pdfPath string) error {
	_ = os.Remove(pdfPath)
	if err := api.ImportImagesFile([]string{imagePath}, pdfPath, pdfcpu.DefaultImportConfig(), nil); err != nil {
		return fmt.Errorf("failed to create %s: %w", pdfPath, err)
	}
	return nil
}
