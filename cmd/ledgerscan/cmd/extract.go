package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/ledgerscan/internal/batch"
	"github.com/MeKo-Tech/ledgerscan/internal/config"
	"github.com/MeKo-Tech/ledgerscan/internal/export"
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/pipeline"
)

func newExtractCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <file|dir>...",
		Short: "Extract transactions from statement images or PDFs",
		Long: `Extract transactions from one or more statement files.

Supported inputs: PNG, JPEG, GIF, BMP, TIFF, WebP and PDF. PDF pages with an
embedded text layer are read directly unless --text-layer=false. Directory
arguments are expanded to the statement files they contain.

Output formats:
  json  the full document (default)
  yaml  the same document as YAML
  csv   one row per transaction
  text  a human readable report

Examples:
  ledgerscan extract statement.png
  ledgerscan extract statement.pdf --pages 1-3 --format text
  ledgerscan extract *.png --format csv --output all.csv
  ledgerscan extract statements/ -r -j 4 --stats
  ledgerscan extract scan.jpg --strictness strict --recognizer onnx-ctc,glyph`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, a.config(), args)
		},
	}

	f := cmd.Flags()
	f.StringP("format", "f", export.FormatJSON, "output format ("+strings.Join(export.Formats(), ", ")+")")
	f.StringP("output", "o", "", "output file (default: stdout)")
	f.StringSlice("detector", nil, "detector chain in fallback order (projection, onnx-db, tesseract)")
	f.StringSlice("recognizer", nil, "recognizer chain in fallback order (glyph, onnx-ctc, onnx-seq2seq, tesseract)")
	f.Float64("confidence-threshold", 0.7, "recognition confidence that stops the fallback chain")
	f.Float64("review-threshold", 0.7, "transactions below this confidence need review")
	f.String("strictness", "medium", "validation strictness (strict, medium, lenient)")
	f.Float64("balance-tolerance", 0, "balance equation tolerance (0 = from strictness)")
	f.String("currency", "NGN", "currency code for extracted amounts")
	f.String("max-date", "", "latest plausible transaction date (YYYY-MM-DD)")
	f.String("pages", "", "PDF pages to process, e.g. 1-3,5")
	f.Bool("text-layer", true, "read PDF pages from their embedded text when present")
	f.Bool("preprocess", false, "clean pages before detection")
	f.Bool("deskew", false, "straighten slightly rotated pages (with --preprocess)")
	f.String("decode", "greedy", "sequence decoding (greedy, beam)")
	f.Int("beam-width", 5, "beam width for beam decoding")
	f.Int("workers", 0, "parallel recognition workers (0 = number of CPUs)")
	f.Bool("timings", false, "include stage timings in the output")
	f.Bool("progress", false, "print stage progress to stderr")
	f.Bool("stats", false, "print batch statistics to stderr")
	f.IntP("jobs", "j", 1, "files processed in parallel (0 = number of CPUs)")
	f.BoolP("recursive", "r", false, "descend into subdirectories of directory arguments")
	f.StringSlice("include", nil, "file patterns picked from directories (default: images and PDFs)")
	f.StringSlice("exclude", nil, "file patterns skipped in directories")
	f.Bool("gpu", false, "run ONNX backends on CUDA")
	f.Int("gpu-device", 0, "CUDA device ID")

	a.bind(cmd,
		flagBinding{"output.format", "format"},
		flagBinding{"output.file", "output"},
		flagBinding{"output.include_timings", "timings"},
		flagBinding{"pipeline.detector_chain", "detector"},
		flagBinding{"pipeline.recognizer_chain", "recognizer"},
		flagBinding{"pipeline.confidence_threshold", "confidence-threshold"},
		flagBinding{"pipeline.review_threshold", "review-threshold"},
		flagBinding{"pipeline.page_range", "pages"},
		flagBinding{"pipeline.use_text_layer", "text-layer"},
		flagBinding{"pipeline.preprocess", "preprocess"},
		flagBinding{"pipeline.deskew", "deskew"},
		flagBinding{"pipeline.max_workers", "workers"},
		flagBinding{"pipeline.recognizer.decode_mode", "decode"},
		flagBinding{"pipeline.recognizer.beam_width", "beam-width"},
		flagBinding{"validation.strictness", "strictness"},
		flagBinding{"validation.balance_tolerance", "balance-tolerance"},
		flagBinding{"validation.currency", "currency"},
		flagBinding{"validation.max_date", "max-date"},
		flagBinding{"gpu.enabled", "gpu"},
		flagBinding{"gpu.device", "gpu-device"},
	)
	return cmd
}

func runExtract(cmd *cobra.Command, cfg *config.Config, args []string) error {
	format := strings.ToLower(cfg.Output.Format)
	if !slices.Contains(export.Formats(), format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", format, strings.Join(export.Formats(), ", "))
	}

	f := cmd.Flags()
	opts := batch.Options{}
	opts.Workers, _ = f.GetInt("jobs")
	opts.Recursive, _ = f.GetBool("recursive")
	opts.IncludePatterns, _ = f.GetStringSlice("include")
	opts.ExcludePatterns, _ = f.GetStringSlice("exclude")
	if showProgress, _ := f.GetBool("progress"); showProgress {
		opts.Progress = func(path string) pipeline.ProgressCallback {
			return pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), "["+path+"] ")
		}
	}

	files, err := batch.Discover(args, opts)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no statement files found")
	}

	p, err := pipeline.New(cfg.ToPipelineConfig())
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() { _ = p.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := batch.Process(ctx, p, files, opts)
	if err != nil {
		return err
	}
	for _, it := range res.Failed() {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", it.Path, it.Err)
	}

	if docs := res.Documents(); len(docs) > 0 {
		if err := writeOutput(cmd.OutOrStdout(), cfg.Output.File, docs, format); err != nil {
			return err
		}
	}
	if showStats, _ := f.GetBool("stats"); showStats {
		res.PrintStats(cmd.ErrOrStderr())
	}
	return res.Err()
}

// writeOutput writes docs to path, or to stdout when path is empty.
func writeOutput(stdout io.Writer, path string, docs []*ledger.Document, format string) error {
	if path == "" {
		return batch.WriteDocuments(stdout, docs, format)
	}
	f, err := os.Create(path) //nolint:gosec // G304: user-chosen output path
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := batch.WriteDocuments(f, docs, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
