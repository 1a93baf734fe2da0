package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/ledgerscan/internal/detector"
	"github.com/MeKo-Tech/ledgerscan/internal/ingest"
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/orchestrator"
	"github.com/MeKo-Tech/ledgerscan/internal/recognizer"
	"github.com/MeKo-Tech/ledgerscan/internal/testutil"
	"github.com/MeKo-Tech/ledgerscan/internal/utils"
	"github.com/disintegration/imaging"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, b *Builder) *Pipeline {
	t.Helper()
	p, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func statementPNG(t *testing.T, rows [][]string) []byte {
	t.Helper()
	img, _ := testutil.RenderStatement(testutil.StatementHeader, rows, testutil.DefaultRenderOptions())
	return testutil.EncodePNG(t, img)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRunThreeRowStatement(t *testing.T) {
	p := build(t, NewBuilder())
	doc, err := p.Run(context.Background(), ingest.FromBytes("statement.png", statementPNG(t, testutil.SampleRows())))
	require.NoError(t, err)

	require.Len(t, doc.Transactions, 3)
	assert.Empty(t, doc.ParseErrors)
	assert.True(t, doc.Validation.Valid)
	assert.Empty(t, doc.Validation.Errors)
	assert.GreaterOrEqual(t, doc.Confidence.DocumentConfidence, 0.9)
	assert.Equal(t, ledger.AutoApprove, doc.Confidence.Recommendation)

	first, second, third := doc.Transactions[0], doc.Transactions[1], doc.Transactions[2]
	assert.Equal(t, "2024-01-01", first.Date.String())
	assert.True(t, first.Balance.Valid)
	assert.True(t, first.Balance.Decimal.Equal(dec("50000")))
	assert.True(t, second.Credit.Equal(dec("10000")))
	assert.True(t, third.Debit.Equal(dec("2000")))
	assert.Equal(t, ledger.CategoryATM, third.Category)
	for _, tx := range doc.Transactions {
		assert.Equal(t, "NGN", tx.Currency)
		assert.Equal(t, 1, tx.Metadata.Page)
	}

	assert.True(t, doc.Summary.TotalCredits.Equal(dec("10000")))
	assert.True(t, doc.Summary.TotalDebits.Equal(dec("2000")))
	assert.True(t, doc.Summary.ClosingBalance.Decimal.Equal(dec("58000")))

	require.Len(t, doc.Pages, 1)
	assert.Equal(t, 1, doc.Pages[0].Number)
	assert.Len(t, doc.Pages[0].Transactions, 3)
	assert.Equal(t, "2024-01-03", doc.Pages[0].DateRange.To.String())

	assert.Equal(t, "png", doc.Metadata.SourceFormat)
	assert.Equal(t, 1, doc.Metadata.PageCount)
	assert.Equal(t, detector.BackendProjection, doc.Metadata.Detector)
	assert.Equal(t, []string{recognizer.BackendGlyph}, doc.Metadata.Recognizers)
	assert.Equal(t, "medium", doc.Metadata.Strictness)
	assert.Zero(t, doc.Metadata.ElapsedMs)
	assert.Nil(t, doc.Metadata.StageMs)
	assert.NotEmpty(t, doc.ID)
}

func TestRunIsDeterministic(t *testing.T) {
	data := statementPNG(t, testutil.SampleRows())
	p := build(t, NewBuilder())

	var outputs [][]byte
	for range 2 {
		doc, err := p.Run(context.Background(), ingest.FromBytes("statement.png", data))
		require.NoError(t, err)
		b, err := json.Marshal(doc)
		require.NoError(t, err)
		outputs = append(outputs, b)
	}
	assert.Equal(t, string(outputs[0]), string(outputs[1]))

	other := build(t, NewBuilder().WithStrictness("strict"))
	doc, err := other.Run(context.Background(), ingest.FromBytes("statement.png", data))
	require.NoError(t, err)
	var first ledger.Document
	require.NoError(t, json.Unmarshal(outputs[0], &first))
	assert.NotEqual(t, first.ID, doc.ID, "configuration is part of the id")
}

func TestRunBalanceMismatch(t *testing.T) {
	rows := testutil.SampleRows()
	rows[2][4] = "57000.00"
	p := build(t, NewBuilder())
	doc, err := p.Run(context.Background(), ingest.FromBytes("statement.png", statementPNG(t, rows)))
	require.NoError(t, err)
	require.Len(t, doc.Transactions, 3)
	assert.False(t, doc.Validation.Valid)
	require.Len(t, doc.Validation.Errors, 1)
	f := doc.Validation.Errors[0]
	assert.Equal(t, "balance", f.Check)
	assert.Equal(t, 2, f.TransactionIndex)
	assert.True(t, f.Diff.Equal(dec("-1000")))
	assert.Less(t, doc.Confidence.BalanceAccuracy, 1.0)
}

func TestRunBlankPageDegrades(t *testing.T) {
	blank := imaging.New(300, 200, utils.White)
	p := build(t, NewBuilder())
	doc, err := p.Run(context.Background(), ingest.FromImage("blank", blank))
	require.NoError(t, err)
	assert.NotNil(t, doc.Transactions)
	assert.Empty(t, doc.Transactions)
	assert.NotNil(t, doc.ParseErrors)
	assert.Contains(t, doc.Warnings, "page 1: no text regions detected")
	assert.Equal(t, ledger.Reject, doc.Confidence.Recommendation)
	assert.True(t, doc.Validation.Valid)
}

func TestRunUnsupportedInput(t *testing.T) {
	p := build(t, NewBuilder())
	_, err := p.Run(context.Background(), ingest.FromBytes("notes.txt", []byte("just some text")))
	require.Error(t, err)

	var perr *ledger.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageIngest, perr.Stage)
	assert.Equal(t, ledger.CodeUnsupportedFormat, ledger.Code(err))
	assert.True(t, ledger.IsInputError(err))
}

func TestRunWithoutUsableRecognizer(t *testing.T) {
	p := build(t, NewBuilder().WithRecognizerChain(recognizer.BackendCTC))
	_, err := p.Run(context.Background(), ingest.FromBytes("statement.png", statementPNG(t, testutil.SampleRows())))
	require.Error(t, err)

	var perr *ledger.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageRecognize, perr.Stage)
	assert.ErrorIs(t, err, ledger.ErrNoBackend)
}

func TestRunCancelled(t *testing.T) {
	p := build(t, NewBuilder())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, ingest.FromBytes("statement.png", statementPNG(t, testutil.SampleRows())))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunReportsStagesInOrder(t *testing.T) {
	var stages []string
	p := build(t, NewBuilder().WithTimings(true))
	doc, err := p.RunWithProgress(context.Background(),
		ingest.FromBytes("statement.png", statementPNG(t, testutil.SampleRows())),
		ProgressFunc(func(ev StageEvent) {
			assert.NotEqual(t, StatusFailed, ev.Status)
			stages = append(stages, ev.Stage)
		}))
	require.NoError(t, err)
	assert.Equal(t, Stages, stages)
	for _, s := range Stages {
		assert.Contains(t, doc.Metadata.StageMs, s)
	}
}

func TestRunSharedOrchestrator(t *testing.T) {
	cfg := DefaultConfig()
	orch := orchestrator.NewFromConfig(cfg.Detector, cfg.Recognizer, orchestrator.Options{})
	defer func() { _ = orch.Close() }()

	p := build(t, NewBuilder().WithOrchestrator(orch))
	_, err := p.Run(context.Background(), ingest.FromBytes("statement.png", statementPNG(t, testutil.SampleRows())))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	// The pipeline does not own the orchestrator, so its backends stay usable.
	_, err = orch.Recognizer(recognizer.BackendGlyph)
	assert.NoError(t, err)
}

func TestTextLayerFragments(t *testing.T) {
	r := &ingest.Raster{
		Image: imaging.New(10, 10, color.NRGBA{A: 255}),
		Meta:  ingest.Metadata{Page: 2},
		TextLayer: []ingest.TextFragment{
			{Text: "01/02/2024", Box: utils.NewBox(0, 0, 50, 10)},
			{Text: "  ", Box: utils.NewBox(60, 0, 70, 10)},
			{Text: "Transfer", Box: utils.NewBox(80, 0, 120, 10)},
		},
	}
	frags := textLayerFragments(r)
	require.Len(t, frags, 2)
	assert.Equal(t, "Transfer", frags[1].Text)
	assert.Equal(t, 2, frags[1].Order)
	assert.Equal(t, 2, frags[1].Page)
	assert.InDelta(t, 1.0, frags[1].Confidence, 1e-12)
}

func TestDetectCropsDeskewedPageFromRotatedRaster(t *testing.T) {
	p := build(t, NewBuilder().WithPreprocessing(true).WithDeskew(true))
	img, _ := testutil.RenderStatement(testutil.StatementHeader, testutil.SampleRows(), testutil.DefaultRenderOptions())
	tilted := imaging.Rotate(img, 2, utils.White)
	straight := &ingest.Raster{Image: img, Meta: ingest.Metadata{Format: "png", Page: 1}}
	skewed := &ingest.Raster{Image: tilted, Meta: ingest.Metadata{Format: "png", Page: 2}}

	r := &run{p: p, progress: NewMultiProgressCallback(), stageMs: map[string]int64{}}
	dets, sources, err := p.detect(context.Background(), r, []*ingest.Raster{straight, skewed})
	require.NoError(t, err)
	require.Len(t, dets, 2)
	require.Len(t, sources, 2)

	assert.Same(t, straight, sources[0])
	assert.NotSame(t, skewed, sources[1])
	assert.Same(t, tilted, skewed.Image, "input raster untouched")
	assert.Equal(t, 2, sources[1].Meta.Page)
	assert.Greater(t, sources[1].Image.Bounds().Dx(), tilted.Bounds().Dx())
	for _, region := range dets[1].Regions {
		assert.True(t, region.Box.MaxX <= float64(sources[1].Image.Bounds().Dx())+1e-9)
		assert.True(t, region.Box.MaxY <= float64(sources[1].Image.Bounds().Dy())+1e-9)
	}
}
