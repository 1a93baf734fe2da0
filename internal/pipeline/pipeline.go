// Package pipeline sequences ingestion, detection, recognition, table
// reconstruction, rule parsing, validation and scoring into one
// deterministic run per document.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/ingest"
	"github.com/MeKo-Tech/ledgerscan/internal/layout"
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/orchestrator"
	"github.com/MeKo-Tech/ledgerscan/internal/preprocess"
	"github.com/MeKo-Tech/ledgerscan/internal/recognizer"
	"github.com/MeKo-Tech/ledgerscan/internal/rules"
	"github.com/MeKo-Tech/ledgerscan/internal/scoring"
	"github.com/MeKo-Tech/ledgerscan/internal/table"
	"github.com/MeKo-Tech/ledgerscan/internal/validate"
	"github.com/google/uuid"
)

// BackendTextLayer names results read from an embedded PDF text layer.
const BackendTextLayer = "pdf-text"

var documentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/MeKo-Tech/ledgerscan/document"))

// Pipeline runs documents through every stage. It is safe for concurrent
// use; each Run owns its intermediate data.
type Pipeline struct {
	cfg       Config
	orch      *orchestrator.Orchestrator
	ownsOrch  bool
	ingestor  *ingest.Ingestor
	parser    *rules.Parser
	tables    *table.Reconstructor
	validator *validate.Validator
	scorer    *scoring.Scorer
	progress  ProgressCallback
}

// New builds a pipeline from cfg with its own orchestrator.
func New(cfg Config) (*Pipeline, error) {
	return NewBuilderFrom(cfg).Build()
}

func newPipeline(cfg Config, orch *orchestrator.Orchestrator, progress ProgressCallback) (*Pipeline, error) {
	v, err := validate.New(cfg.Validation)
	if err != nil {
		return nil, fmt.Errorf("init validator: %w", err)
	}
	s, err := scoring.New(cfg.Scoring)
	if err != nil {
		return nil, fmt.Errorf("init scorer: %w", err)
	}
	owns := orch == nil
	if owns {
		orch = orchestrator.NewFromConfig(cfg.Detector, cfg.Recognizer, orchestrator.Options{MaxWorkers: cfg.MaxWorkers})
	}
	if progress == nil {
		progress = NoOpProgressCallback{}
	}
	parser := rules.New(cfg.Rules)
	return &Pipeline{
		cfg:       cfg,
		orch:      orch,
		ownsOrch:  owns,
		ingestor:  ingest.New(cfg.Ingest),
		parser:    parser,
		tables:    table.New(cfg.Table, parser),
		validator: v,
		scorer:    s,
		progress:  progress,
	}, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Orchestrator returns the backend owner used by the pipeline.
func (p *Pipeline) Orchestrator() *orchestrator.Orchestrator { return p.orch }

// Close releases the backends when the pipeline owns its orchestrator.
func (p *Pipeline) Close() error {
	if p.ownsOrch && p.orch != nil {
		return p.orch.Close()
	}
	return nil
}

// run holds the state of one document.
type run struct {
	p        *Pipeline
	progress ProgressCallback
	stageMs  map[string]int64
	warnings []string
	pages    int
}

func (r *run) finish(stage string, page int, start time.Time, status, summary string, err error) {
	elapsed := time.Since(start)
	ms := elapsed.Milliseconds()
	r.stageMs[stage] += ms
	stageDuration.WithLabelValues(stage, status).Observe(elapsed.Seconds())

	ev := StageEvent{Stage: stage, Page: page, Status: status, Summary: summary, DurationMs: ms}
	if page > 0 {
		ev.Pages = r.pages
	}
	attrs := []any{"stage", stage, "page", page, "status", status, "summary", summary, "duration_ms", ms}
	switch status {
	case StatusFailed:
		ev.Err = err.Error()
		slog.Error("Pipeline stage failed", append(attrs, "error", err)...)
	case StatusDegraded:
		slog.Warn("Pipeline stage degraded", attrs...)
	default:
		slog.Debug("Pipeline stage completed", attrs...)
	}
	r.progress.OnStage(ev)
}

func (r *run) warn(page int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if page > 0 {
		msg = fmt.Sprintf("page %d: %s", page, msg)
	}
	r.warnings = append(r.warnings, msg)
}

func (r *run) fail(stage string, page int, start time.Time, err error) error {
	r.finish(stage, page, start, StatusFailed, "", err)
	runsTotal.WithLabelValues(StatusFailed).Inc()
	return &ledger.PipelineError{Stage: stage, Err: err}
}

// pageResult is everything a page contributes to the document.
type pageResult struct {
	page         ledger.Page
	detector     string
	regions      []layout.Region
	recognitions []recognizer.Result
	parseErrors  []ledger.ParseError
}

// Run extracts a ledger document from src.
func (p *Pipeline) Run(ctx context.Context, src ingest.Source) (*ledger.Document, error) {
	return p.RunWithProgress(ctx, src, nil)
}

// RunWithProgress is Run with an extra per-call progress callback.
func (p *Pipeline) RunWithProgress(ctx context.Context, src ingest.Source, cb ProgressCallback) (*ledger.Document, error) {
	begin := time.Now()
	r := &run{p: p, progress: NewMultiProgressCallback(p.progress, cb), stageMs: map[string]int64{}}

	start := time.Now()
	rasters, err := p.ingestor.Load(ctx, src)
	if err != nil {
		return nil, r.fail(StageIngest, 0, start, err)
	}
	r.pages = len(rasters)
	r.finish(StageIngest, 0, start, StatusOK, fmt.Sprintf("%d page(s) from %s", len(rasters), src.Label()), nil)

	results := make([]pageResult, len(rasters))
	detections, sources, err := p.detect(ctx, r, rasters)
	if err != nil {
		return nil, err
	}
	for i, raster := range rasters {
		if err := ctx.Err(); err != nil {
			return nil, r.fail(StageRecognize, raster.Meta.Page, time.Now(), err)
		}
		res, err := p.processPage(ctx, r, sources[i], detections[i])
		if err != nil {
			return nil, err
		}
		results[i] = res
	}

	doc := p.assemble(r, rasters, results)

	start = time.Now()
	doc.Validation = p.validator.Validate(doc.Transactions)
	status := StatusOK
	if !doc.Validation.Valid {
		status = StatusDegraded
	}
	r.finish(StageValidate, 0, start, status,
		fmt.Sprintf("%d error(s), %d warning(s)", len(doc.Validation.Errors), len(doc.Validation.Warnings)), nil)

	start = time.Now()
	in := scoring.Input{Transactions: doc.Transactions, Validation: doc.Validation}
	for _, res := range results {
		in.Regions = append(in.Regions, res.regions...)
		in.Recognitions = append(in.Recognitions, res.recognitions...)
	}
	doc.Confidence = p.scorer.Score(in)
	r.finish(StageScore, 0, start, StatusOK,
		fmt.Sprintf("confidence %.3f, %s", doc.Confidence.DocumentConfidence, doc.Confidence.Recommendation), nil)

	doc.Warnings = append(doc.Warnings, r.warnings...)
	if p.cfg.IncludeTimings {
		doc.Metadata.ElapsedMs = time.Since(begin).Milliseconds()
		doc.Metadata.StageMs = r.stageMs
	}
	runsTotal.WithLabelValues(StatusOK).Inc()
	transactionsExtracted.Observe(float64(len(doc.Transactions)))
	slog.Info("Pipeline completed",
		"document", doc.ID,
		"source", src.Label(),
		"pages", len(doc.Pages),
		"transactions", len(doc.Transactions),
		"errors", len(doc.Validation.Errors),
		"confidence", doc.Confidence.DocumentConfidence,
		"recommendation", doc.Confidence.Recommendation,
		"duration_ms", time.Since(begin).Milliseconds())
	return doc, nil
}

// usesTextLayer reports whether a page is read from its embedded text.
func (p *Pipeline) usesTextLayer(r *ingest.Raster) bool {
	return p.cfg.UseTextLayer && len(r.TextLayer) > 0
}

// detect cleans the image pages and detects them in one batch. Pages read
// from their text layer get an empty detection. The second result holds the
// rasters to crop from: a deskewed page is cropped from its rotated copy so
// the crops match the detected boxes.
func (p *Pipeline) detect(ctx context.Context, r *run, rasters []*ingest.Raster) ([]orchestrator.Detection, []*ingest.Raster, error) {
	out := make([]orchestrator.Detection, len(rasters))
	sources := slices.Clone(rasters)
	var (
		cleaned []*ingest.Raster
		index   []int
	)
	for i, raster := range rasters {
		if p.usesTextLayer(raster) {
			out[i] = orchestrator.Detection{Backend: BackendTextLayer}
			continue
		}
		start := time.Now()
		res := preprocess.Clean(raster.Image, p.cfg.Preprocess)
		summary := "skipped"
		if res.Binarized {
			summary = fmt.Sprintf("threshold %d, %d ruled-line pixels", res.Threshold, res.LinePixels)
		}
		if res.SkewDeg != 0 {
			straight := *raster
			straight.Image = preprocess.Rotate(raster.Image, res.SkewDeg)
			sources[i] = &straight
			summary += fmt.Sprintf(", deskewed %.1f°", res.SkewDeg)
		}
		r.finish(StagePreprocess, raster.Meta.Page, start, StatusOK, summary, nil)
		cleaned = append(cleaned, &ingest.Raster{Image: res.Image, Meta: raster.Meta})
		index = append(index, i)
	}
	if len(cleaned) == 0 {
		return out, sources, nil
	}

	start := time.Now()
	dets, err := p.orch.DetectBatch(ctx, cleaned, p.cfg.DetectorChain, p.cfg.Timeout)
	if err != nil {
		return nil, nil, r.fail(StageDetect, 0, start, err)
	}
	total := 0
	status := StatusOK
	for j, d := range dets {
		out[index[j]] = d
		total += len(d.Regions)
		if len(d.Regions) == 0 {
			status = StatusDegraded
			r.warn(cleaned[j].Meta.Page, "no text regions detected")
		}
	}
	r.finish(StageDetect, 0, start, status, fmt.Sprintf("%d region(s) on %d page(s)", total, len(cleaned)), nil)
	return out, sources, nil
}

func (p *Pipeline) processPage(ctx context.Context, r *run, raster *ingest.Raster, det orchestrator.Detection) (pageResult, error) {
	page := raster.Meta.Page
	res := pageResult{
		page:     ledger.Page{Number: page, Source: raster.Meta.Format, Transactions: []ledger.Transaction{}},
		detector: det.Backend,
		regions:  det.Regions,
	}

	var frags []table.Fragment
	if p.usesTextLayer(raster) {
		start := time.Now()
		frags = textLayerFragments(raster)
		for _, f := range frags {
			res.recognitions = append(res.recognitions, recognizer.Result{Text: f.Text, Confidence: 1, Backend: BackendTextLayer})
		}
		r.finish(StageRecognize, page, start, StatusOK, fmt.Sprintf("%d text-layer fragment(s)", len(frags)), nil)
	} else {
		start := time.Now()
		crops, dropped := layout.OrderAndCrop(raster.Image, det.Regions, page, p.cfg.Crop)
		status := StatusOK
		if len(dropped) > 0 {
			status = StatusDegraded
			r.warn(page, "%d region(s) dropped outside the raster or by the crop size filter", len(dropped))
		}
		r.finish(StageCrop, page, start, status, fmt.Sprintf("%d crop(s)", len(crops)), nil)

		start = time.Now()
		recs, err := p.orch.RecognizeBatch(ctx, crops, p.cfg.RecognizerChain, p.cfg.ConfidenceThreshold, p.cfg.Timeout)
		if err != nil {
			return res, r.fail(StageRecognize, page, start, err)
		}
		low := 0
		for i, rec := range recs {
			if rec.LowConfidence {
				low++
			}
			if strings.TrimSpace(rec.Text) == "" {
				continue
			}
			frags = append(frags, table.Fragment{
				Text:       rec.Text,
				Box:        crops[i].Region.Box,
				Confidence: rec.Confidence,
				Order:      crops[i].Order,
				Page:       page,
			})
		}
		res.recognitions = recs
		status = StatusOK
		if low > 0 {
			status = StatusDegraded
			r.warn(page, "%d crop(s) recognized below confidence %.2f", low, p.cfg.ConfidenceThreshold)
		}
		r.finish(StageRecognize, page, start, status, fmt.Sprintf("%d text(s), %d low confidence", len(recs), low), nil)
	}
	res.page.Regions = len(frags)

	start := time.Now()
	tab := p.tables.Reconstruct(frags)
	for _, w := range tab.Warnings {
		r.warn(page, "%s", w)
	}
	status := StatusOK
	if tab.Dropped > 0 || len(tab.Rows) == 0 {
		status = StatusDegraded
	}
	r.finish(StageTable, page, start, status, fmt.Sprintf("%d row(s), header %t", len(tab.Rows), tab.Header), nil)

	start = time.Now()
	txs, perrs := p.parser.ParseRows(tab.Rows)
	res.page.Transactions = append(res.page.Transactions, txs...)
	for _, tx := range txs {
		res.page.DateRange = res.page.DateRange.Extend(tx.Date)
	}
	res.parseErrors = perrs
	status = StatusOK
	if len(perrs) > 0 {
		status = StatusDegraded
	}
	r.finish(StageParse, page, start, status, fmt.Sprintf("%d transaction(s), %d parse error(s)", len(txs), len(perrs)), nil)
	return res, nil
}

func textLayerFragments(r *ingest.Raster) []table.Fragment {
	frags := make([]table.Fragment, 0, len(r.TextLayer))
	for i, t := range r.TextLayer {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		frags = append(frags, table.Fragment{Text: t.Text, Box: t.Box, Confidence: 1, Order: i, Page: r.Meta.Page})
	}
	return frags
}

// assemble builds the document from the page results. Everything here is a
// pure function of the rasters, the results and the configuration.
func (p *Pipeline) assemble(r *run, rasters []*ingest.Raster, results []pageResult) *ledger.Document {
	doc := &ledger.Document{
		ID:           documentID(rasters, p.cfg),
		Pages:        make([]ledger.Page, 0, len(results)),
		Transactions: []ledger.Transaction{},
		ParseErrors:  []ledger.ParseError{},
		Warnings:     []string{},
	}
	var detectors, recognizers []string
	for _, res := range results {
		doc.Pages = append(doc.Pages, res.page)
		doc.Transactions = append(doc.Transactions, res.page.Transactions...)
		doc.ParseErrors = append(doc.ParseErrors, res.parseErrors...)
		if res.detector != "" && !slices.Contains(detectors, res.detector) {
			detectors = append(detectors, res.detector)
		}
		for _, rec := range res.recognitions {
			if rec.Backend != "" && !slices.Contains(recognizers, rec.Backend) {
				recognizers = append(recognizers, rec.Backend)
			}
		}
	}
	doc.Summary = ledger.Summarize(doc.Transactions)

	format := ""
	if len(rasters) > 0 {
		format = rasters[0].Meta.Format
	}
	doc.Metadata = ledger.ProcessingMetadata{
		SourceFormat: format,
		PageCount:    len(rasters),
		Detector:     strings.Join(detectors, ","),
		Recognizers:  recognizers,
		DecodeMode:   p.cfg.Recognizer.Decode.Mode,
		Strictness:   p.validator.Config().Strictness,
		Versions:     p.orch.Versions(),
	}
	if len(doc.Metadata.Versions) == 0 {
		doc.Metadata.Versions = nil
	}
	return doc
}

// documentID derives a stable id from the page pixels and the configuration.
func documentID(rasters []*ingest.Raster, cfg Config) string {
	h := sha256.New()
	for _, r := range rasters {
		_, _ = fmt.Fprintf(h, "%d:%dx%d:", r.Meta.Page, r.Meta.Width, r.Meta.Height)
		h.Write(r.Image.Pix)
		for _, t := range r.TextLayer {
			_, _ = fmt.Fprintf(h, "%s@%v;", t.Text, t.Box)
		}
	}
	cfg.IncludeTimings = false
	if b, err := json.Marshal(cfg); err == nil {
		h.Write(b)
	}
	return uuid.NewSHA1(documentNamespace, h.Sum(nil)).String()
}
