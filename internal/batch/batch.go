// Package batch extracts many statements at once: it expands directories
// into files, runs them through a shared pipeline with bounded parallelism and
// renders the combined output.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/ledgerscan/internal/ingest"
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/pipeline"
)

// Extractor is the part of the pipeline a batch needs.
type Extractor interface {
	RunWithProgress(ctx context.Context, src ingest.Source, cb pipeline.ProgressCallback) (*ledger.Document, error)
}

// Item is the outcome for one file.
type Item struct {
	Path     string
	Document *ledger.Document
	Err      error
	Duration time.Duration
}

// Result holds every item in input order.
type Result struct {
	Items    []Item
	Duration time.Duration
	Workers  int
}

// Process extracts every path with up to opts.Workers files in flight. A
// failing file never stops the others; only cancellation of ctx does, in
// which case the context error is returned.
func Process(ctx context.Context, ext Extractor, paths []string, opts Options) (*Result, error) {
	if len(paths) == 0 {
		return nil, errors.New("no files to process")
	}
	workers := opts.workers(len(paths))
	res := &Result{Items: make([]Item, len(paths)), Workers: workers}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var cb pipeline.ProgressCallback
			if opts.Progress != nil {
				cb = opts.Progress(path)
			}
			began := time.Now()
			doc, err := ext.RunWithProgress(gctx, ingest.FromPath(path), cb)
			res.Items[i] = Item{Path: path, Document: doc, Err: err, Duration: time.Since(began)}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("Extraction failed", "file", path, "code", ledger.Code(err), "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

// Documents returns the successful documents in input order.
func (r *Result) Documents() []*ledger.Document {
	docs := make([]*ledger.Document, 0, len(r.Items))
	for _, it := range r.Items {
		if it.Err == nil && it.Document != nil {
			docs = append(docs, it.Document)
		}
	}
	return docs
}

// Failed returns the items that produced an error.
func (r *Result) Failed() []Item {
	var failed []Item
	for _, it := range r.Items {
		if it.Err != nil {
			failed = append(failed, it)
		}
	}
	return failed
}

// Err summarises failures, or returns nil when every file succeeded.
func (r *Result) Err() error {
	if n := len(r.Failed()); n > 0 {
		return fmt.Errorf("%d of %d file(s) failed", n, len(r.Items))
	}
	return nil
}
