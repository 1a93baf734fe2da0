package scoring

import (
	"testing"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/layout"
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/recognizer"
	"github.com/MeKo-Tech/ledgerscan/internal/validate"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := New(DefaultConfig())
	require.NoError(t, err)
	return s
}

func tx(day int, desc, debit, credit, balance string, conf float64) ledger.Transaction {
	d, _ := ledger.NewDate(2024, time.March, day)
	out := ledger.Transaction{
		Date:        d,
		Description: desc,
		Debit:       decimal.RequireFromString(debit),
		Credit:      decimal.RequireFromString(credit),
		Confidence:  conf,
	}
	if balance != "" {
		out.Balance = decimal.NewNullDecimal(decimal.RequireFromString(balance))
	}
	return out
}

func results(confs ...float64) []recognizer.Result {
	out := make([]recognizer.Result, 0, len(confs))
	for _, c := range confs {
		out = append(out, recognizer.Result{Text: "x", Confidence: c})
	}
	return out
}

func TestScorePerfectDocument(t *testing.T) {
	txs := []ledger.Transaction{
		tx(1, "Opening", "0", "500", "500", 1),
		tx(2, "Airtime", "100", "0", "400", 1),
		tx(3, "Salary", "0", "1000", "1400", 0.95),
	}
	v, err := validate.New(validate.DefaultConfig())
	require.NoError(t, err)
	report := scorer(t).Score(Input{
		Regions:      []layout.Region{layout.NewRegion(0, 0, 10, 10, 0.9)},
		Recognitions: results(1, 1, 1),
		Transactions: txs,
		Validation:   v.Validate(txs),
	})
	assert.InDelta(t, 1.0, report.OCRConfidence, 1e-12)
	assert.InDelta(t, 1.0, report.ValidationScore, 1e-12)
	assert.InDelta(t, 1.0, report.BalanceAccuracy, 1e-12)
	assert.InDelta(t, 1.0, report.CompletenessScore, 1e-12)
	assert.InDelta(t, 1.0, report.DocumentConfidence, 1e-12)
	assert.Equal(t, ledger.AutoApprove, report.Recommendation)
	assert.Equal(t, []float64{1, 1, 0.95}, report.TransactionConfidences)
	assert.Empty(t, report.LowConfidenceIndices)
	assert.Equal(t, ledger.ConfidenceStats{Total: 3, HighConfidence: 3}, report.Stats)
}

func TestScoreWeightedSum(t *testing.T) {
	txs := []ledger.Transaction{
		tx(1, "A", "1", "0", "", 0.5),
		tx(2, "", "2", "0", "", 0.8),
	}
	validation := ledger.ValidationReport{
		Errors:   make([]ledger.Finding, 2),
		Warnings: make([]ledger.Finding, 1),
	}
	report := scorer(t).Score(Input{Recognitions: results(0.6, 0.8), Transactions: txs, Validation: validation})

	assert.InDelta(t, 0.7, report.OCRConfidence, 1e-12)
	assert.InDelta(t, 0.75, report.ValidationScore, 1e-12)
	assert.InDelta(t, 0.5, report.BalanceAccuracy, 1e-12)
	assert.InDelta(t, 5.0/6, report.CompletenessScore, 1e-12)
	want := 0.4*0.7 + 0.3*0.75 + 0.2*0.5 + 0.1*5.0/6
	assert.InDelta(t, want, report.DocumentConfidence, 1e-12)
	assert.Equal(t, ledger.ManualReview, report.Recommendation)
	assert.Equal(t, []int{0}, report.LowConfidenceIndices)
	assert.Equal(t, 2, report.Stats.Total)
	assert.Equal(t, 0, report.Stats.HighConfidence)
	assert.Equal(t, 1, report.Stats.NeedsReview)
}

func TestScoreNeedsReviewFlagCounts(t *testing.T) {
	flagged := tx(1, "A", "1", "0", "", 0.95)
	flagged.NeedsReview = true
	report := scorer(t).Score(Input{Transactions: []ledger.Transaction{flagged}})
	assert.Equal(t, 1, report.Stats.NeedsReview)
	assert.Empty(t, report.LowConfidenceIndices)
}

func TestScoreEmptyDocument(t *testing.T) {
	report := scorer(t).Score(Input{})
	assert.Zero(t, report.OCRConfidence)
	assert.InDelta(t, 1.0, report.ValidationScore, 1e-12)
	assert.InDelta(t, 0.5, report.BalanceAccuracy, 1e-12)
	assert.Zero(t, report.CompletenessScore)
	assert.InDelta(t, 0.4, report.DocumentConfidence, 1e-12)
	assert.Equal(t, ledger.Reject, report.Recommendation)
	assert.NotNil(t, report.TransactionConfidences)
	assert.NotNil(t, report.LowConfidenceIndices)
}

func TestRecommendBoundaries(t *testing.T) {
	s := scorer(t)
	assert.Equal(t, ledger.AutoApprove, s.Recommend(0.9))
	assert.Equal(t, ledger.ManualReview, s.Recommend(0.8999))
	assert.Equal(t, ledger.ManualReview, s.Recommend(0.6))
	assert.Equal(t, ledger.Reject, s.Recommend(0.5999))
}

func TestBalanceAccuracyPartial(t *testing.T) {
	txs := []ledger.Transaction{
		tx(1, "A", "0", "100", "100", 1),
		tx(2, "B", "0", "100", "200", 1),
		tx(3, "C", "0", "100", "250", 1),
	}
	// Second check expects 300 and sees 250.
	got := BalanceAccuracy(txs, decimal.RequireFromString("0.01"))
	assert.InDelta(t, (1+(1-50.0/300))/2, got, 1e-12)
}

func TestValidationScoreFloor(t *testing.T) {
	report := ledger.ValidationReport{Errors: make([]ledger.Finding, 12)}
	assert.Zero(t, ValidationScore(report))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoApprove = 1.2
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.ManualReview = 0.95
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.BalanceTolerance = -0.1
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestDocumentConfidenceBoundsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	s := scorer(t)

	properties.Property("document confidence stays within [0,1]", prop.ForAll(
		func(ocr float64, errs, warns int, balance int64) bool {
			txs := []ledger.Transaction{
				tx(1, "A", "0", "100", "100", ocr),
				tx(2, "B", "50", "0", decimal.New(balance, -2).String(), ocr),
			}
			report := s.Score(Input{
				Recognitions: results(ocr, ocr),
				Transactions: txs,
				Validation: ledger.ValidationReport{
					Errors:   make([]ledger.Finding, errs),
					Warnings: make([]ledger.Finding, warns),
				},
			})
			c := report.DocumentConfidence
			return c >= 0 && c <= 1 && report.BalanceAccuracy >= 0 && report.BalanceAccuracy <= 1
		},
		gen.Float64Range(0, 1),
		gen.IntRange(0, 30),
		gen.IntRange(0, 30),
		gen.Int64Range(-10_000_000, 10_000_000),
	))
	properties.TestingRun(t)
}
