package pipeline

import (
	"testing"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/recognizer"
	"github.com/MeKo-Tech/ledgerscan/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderOptions(t *testing.T) {
	cfg := NewBuilder().
		WithRecognizerChain(recognizer.BackendCTC, recognizer.BackendGlyph).
		WithDecoding("beam", 5, 0.5).
		WithCurrency("USD", "$").
		WithDateLayouts("2006/01/02").
		WithReviewThreshold(0.8).
		WithTimeout(5 * time.Second).
		WithParallelWorkers(3).
		WithTextLayer(false).
		WithDeskew(true).
		WithModelsDir("/opt/models").
		Config()

	assert.Equal(t, []string{recognizer.BackendCTC, recognizer.BackendGlyph}, cfg.RecognizerChain)
	assert.Equal(t, "beam", cfg.Recognizer.Decode.Mode)
	assert.Equal(t, 5, cfg.Recognizer.Decode.BeamWidth)
	assert.Equal(t, "USD", cfg.Rules.Currency)
	assert.Contains(t, cfg.Rules.DateLayouts, "2006/01/02")
	assert.InDelta(t, 0.8, cfg.Scoring.ReviewThreshold, 1e-12)
	assert.InDelta(t, 0.8, cfg.Rules.ReviewThreshold, 1e-12)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxWorkers)
	assert.False(t, cfg.UseTextLayer)
	assert.True(t, cfg.Preprocess.Deskew)
	assert.Contains(t, cfg.Recognizer.CTC.ModelPath, "/opt/models")
	assert.Contains(t, cfg.Detector.DB.ModelPath, "/opt/models")
}

func TestBuilderStrictnessKeepsDateBounds(t *testing.T) {
	cfg := NewBuilder().WithMaxDate("2030-12-31").WithStrictness(validate.StrictnessLenient).Config()
	assert.Equal(t, validate.StrictnessLenient, cfg.Validation.Strictness)
	assert.Equal(t, "2030-12-31", cfg.Validation.MaxDate)
	assert.InDelta(t, 1.0, cfg.Validation.BalanceTolerance, 1e-12)
	assert.InDelta(t, 1.0, cfg.Scoring.BalanceTolerance, 1e-12)
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	tests := map[string]*Builder{
		"empty recognizer chain": NewBuilderFrom(func() Config { c := DefaultConfig(); c.RecognizerChain = nil; return c }()),
		"empty detector chain":   NewBuilderFrom(func() Config { c := DefaultConfig(); c.DetectorChain = nil; return c }()),
		"threshold":              NewBuilder().WithConfidenceThreshold(1.5),
		"decode mode":            NewBuilder().WithDecoding("sampling", 0, 0),
		"strictness":             NewBuilder().WithStrictness("paranoid"),
		"max date":               NewBuilder().WithMaxDate("soon"),
	}
	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := b.Build()
			assert.Error(t, err)
		})
	}
}

func TestNewBuildsDefaultPipeline(t *testing.T) {
	p, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, p.Orchestrator())
	assert.Equal(t, DefaultConfig().RecognizerChain, p.Config().RecognizerChain)
	assert.NoError(t, p.Close())
}
