// Package orchestrator owns the detector and recognizer backends of a
// process: it registers them by name, loads them on first use, runs
// recognition through fallback chains and dispatches batches.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/detector"
	"github.com/MeKo-Tech/ledgerscan/internal/ingest"
	"github.com/MeKo-Tech/ledgerscan/internal/layout"
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/recognizer"
	"golang.org/x/sync/errgroup"
)

// DetectorFactory constructs a detector backend.
type DetectorFactory func() (detector.Detector, error)

// RecognizerFactory constructs a recognizer backend.
type RecognizerFactory func() (recognizer.Recognizer, error)

// Options tune batch dispatch.
type Options struct {
	// MaxWorkers bounds parallel batch items; 0 means runtime.NumCPU().
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
}

// Orchestrator is safe for concurrent use. Loaded backends are shared by
// every caller until Close.
type Orchestrator struct {
	opts Options

	mu          sync.RWMutex
	closed      bool
	detectors   map[string]*entry[detector.Detector]
	recognizers map[string]*entry[recognizer.Recognizer]
	order       []BackendInfo
}

// New returns an empty orchestrator.
func New(opts Options) *Orchestrator {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = runtime.NumCPU()
	}
	return &Orchestrator{
		opts:        opts,
		detectors:   map[string]*entry[detector.Detector]{},
		recognizers: map[string]*entry[recognizer.Recognizer]{},
	}
}

// NewFromConfig registers every backend this build supports, each
// constructed lazily from the given configs.
func NewFromConfig(det detector.Config, rec recognizer.Config, opts Options) *Orchestrator {
	o := New(opts)
	for _, name := range detector.Names() {
		_ = o.RegisterDetector(name, func() (detector.Detector, error) { return detector.New(name, det) })
	}
	for _, name := range recognizer.Names() {
		_ = o.RegisterRecognizer(name, func() (recognizer.Recognizer, error) { return recognizer.New(name, rec) })
	}
	return o
}

// RegisterDetector adds a named detector factory. Names are unique per kind.
func (o *Orchestrator) RegisterDetector(name string, f DetectorFactory) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.detectors[name]; ok {
		return fmt.Errorf("detector %q already registered", name)
	}
	o.detectors[name] = &entry[detector.Detector]{kind: KindDetector, name: name, factory: f}
	o.order = append(o.order, BackendInfo{Kind: KindDetector, Name: name})
	return nil
}

// RegisterRecognizer adds a named recognizer factory.
func (o *Orchestrator) RegisterRecognizer(name string, f RecognizerFactory) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.recognizers[name]; ok {
		return fmt.Errorf("recognizer %q already registered", name)
	}
	o.recognizers[name] = &entry[recognizer.Recognizer]{kind: KindRecognizer, name: name, factory: f}
	o.order = append(o.order, BackendInfo{Kind: KindRecognizer, Name: name})
	return nil
}

// Detector returns the named detector, loading it on first use.
func (o *Orchestrator) Detector(name string) (detector.Detector, error) {
	o.mu.RLock()
	e, ok := o.detectors[name]
	closed := o.closed
	o.mu.RUnlock()
	switch {
	case closed:
		return nil, ErrClosed
	case !ok:
		return nil, &ledger.BackendError{Backend: name, Op: "load", Err: ErrUnknownBackend}
	}
	return e.get()
}

// Recognizer returns the named recognizer, loading it on first use.
func (o *Orchestrator) Recognizer(name string) (recognizer.Recognizer, error) {
	o.mu.RLock()
	e, ok := o.recognizers[name]
	closed := o.closed
	o.mu.RUnlock()
	switch {
	case closed:
		return nil, ErrClosed
	case !ok:
		return nil, &ledger.BackendError{Backend: name, Op: "load", Err: ErrUnknownBackend}
	}
	return e.get()
}

// Backends lists registered backends in registration order.
func (o *Orchestrator) Backends() []BackendInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]BackendInfo, 0, len(o.order))
	for _, b := range o.order {
		if b.Kind == KindDetector {
			out = append(out, o.detectors[b.Name].info())
		} else {
			out = append(out, o.recognizers[b.Name].info())
		}
	}
	return out
}

// Versions maps "kind/name" to the model version of every loaded backend
// that reports one.
func (o *Orchestrator) Versions() map[string]string {
	out := map[string]string{}
	for _, b := range o.Backends() {
		if b.Version != "" {
			out[b.Kind+"/"+b.Name] = b.Version
		}
	}
	return out
}

// Close releases every loaded backend. Later lookups return ErrClosed.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	var errs []error
	for _, b := range o.order {
		var err error
		if b.Kind == KindDetector {
			err = o.detectors[b.Name].close()
		} else {
			err = o.recognizers[b.Name].close()
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ExecuteWithFallback recognizes crop with each backend of chain in turn and
// returns the first result whose confidence reaches threshold. When none
// does, the most confident result is returned flagged LowConfidence. Load
// failures, inference errors and timeouts move on to the next backend; an
// error is returned only when no backend produced a result or ctx ended.
func (o *Orchestrator) ExecuteWithFallback(ctx context.Context, crop layout.Crop, chain []string,
	threshold float64, timeout time.Duration,
) (recognizer.Result, error) {
	var (
		best  recognizer.Result
		found bool
		errs  []error
	)
	for _, name := range chain {
		if err := ctx.Err(); err != nil {
			return recognizer.Result{}, err
		}
		rec, err := o.Recognizer(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		res, err := withTimeout(ctx, timeout, name, "recognize", func(ctx context.Context) (recognizer.Result, error) {
			return rec.Recognize(ctx, crop)
		})
		if err != nil {
			if ctx.Err() != nil {
				return recognizer.Result{}, ctx.Err()
			}
			slog.Warn("Recognizer failed, falling back", "backend", name, "crop", crop.Order, "error", err)
			errs = append(errs, err)
			continue
		}
		if res.Backend == "" {
			res.Backend = name
		}
		if res.Confidence >= threshold {
			res.LowConfidence = false
			return res, nil
		}
		slog.Debug("Recognition below threshold", "backend", name, "crop", crop.Order,
			"confidence", res.Confidence, "threshold", threshold)
		if !found || res.Confidence > best.Confidence {
			best, found = res, true
		}
	}
	if found {
		best.LowConfidence = true
		return best, nil
	}
	return recognizer.Result{}, fmt.Errorf("no usable recognizer in chain %v: %w",
		chain, errors.Join(append([]error{ledger.ErrNoBackend}, errs...)...))
}

// DetectWithFallback runs the detectors of chain in turn and returns the
// regions of the first one that finds any, with its name. A chain whose
// backends all succeed with zero regions returns an empty result from the
// first of them.
func (o *Orchestrator) DetectWithFallback(ctx context.Context, r *ingest.Raster, chain []string,
	timeout time.Duration,
) ([]layout.Region, string, error) {
	var (
		errs  []error
		empty string
	)
	for _, name := range chain {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		det, err := o.Detector(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		regions, err := withTimeout(ctx, timeout, name, "detect", func(ctx context.Context) ([]layout.Region, error) {
			return det.Detect(ctx, r)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			slog.Warn("Detector failed, falling back", "backend", name, "page", r.Meta.Page, "error", err)
			errs = append(errs, err)
			continue
		}
		if len(regions) > 0 {
			return regions, name, nil
		}
		if empty == "" {
			empty = name
		}
	}
	if empty != "" {
		return []layout.Region{}, empty, nil
	}
	return nil, "", fmt.Errorf("no usable detector in chain %v: %w",
		chain, errors.Join(append([]error{ledger.ErrNoBackend}, errs...)...))
}

// Detection is the outcome of detecting one raster.
type Detection struct {
	Regions []layout.Region
	Backend string
}

// DetectBatch detects every raster in parallel. Results are in input order
// and equal to detecting each raster alone.
func (o *Orchestrator) DetectBatch(ctx context.Context, rasters []*ingest.Raster, chain []string,
	timeout time.Duration,
) ([]Detection, error) {
	out := make([]Detection, len(rasters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxWorkers)
	for i, r := range rasters {
		g.Go(func() error {
			regions, backend, err := o.DetectWithFallback(gctx, r, chain, timeout)
			if err != nil {
				return fmt.Errorf("raster %d: %w", i, err)
			}
			out[i] = Detection{Regions: regions, Backend: backend}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// RecognizeBatch runs ExecuteWithFallback over crops in parallel. Results
// are in input order.
func (o *Orchestrator) RecognizeBatch(ctx context.Context, crops []layout.Crop, chain []string,
	threshold float64, timeout time.Duration,
) ([]recognizer.Result, error) {
	out := make([]recognizer.Result, len(crops))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxWorkers)
	for i, c := range crops {
		g.Go(func() error {
			res, err := o.ExecuteWithFallback(gctx, c, chain, threshold, timeout)
			if err != nil {
				return fmt.Errorf("crop %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// RecognizerNames returns the registered recognizer names in registration
// order.
func (o *Orchestrator) RecognizerNames() []string {
	return o.names(KindRecognizer)
}

// DetectorNames returns the registered detector names in registration order.
func (o *Orchestrator) DetectorNames() []string {
	return o.names(KindDetector)
}

func (o *Orchestrator) names(kind string) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []string
	for _, b := range o.order {
		if b.Kind == kind {
			out = append(out, b.Name)
		}
	}
	return slices.Clip(out)
}

// withTimeout runs fn under timeout. A deadline hit is reported as a
// BackendError wrapping ErrInferenceTimeout; other failures are wrapped as
// BackendError for op. A timeout of zero or less only inherits ctx.
func withTimeout[T any](ctx context.Context, timeout time.Duration, backend, op string,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T
	if timeout <= 0 {
		v, err := fn(ctx)
		if err != nil {
			return zero, &ledger.BackendError{Backend: backend, Op: op, Err: err}
		}
		return v, nil
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(tctx)
		done <- outcome{v, err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return res.v, nil
		}
		if errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, &ledger.BackendError{Backend: backend, Op: op,
				Err: fmt.Errorf("%w after %s", ledger.ErrInferenceTimeout, timeout)}
		}
		return zero, &ledger.BackendError{Backend: backend, Op: op, Err: res.err}
	case <-tctx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, &ledger.BackendError{Backend: backend, Op: op,
			Err: fmt.Errorf("%w after %s", ledger.ErrInferenceTimeout, timeout)}
	}
}
