// Package scoring combines recognition, validation and balance signals into
// a document confidence and a review recommendation.
package scoring

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/MeKo-Tech/ledgerscan/internal/layout"
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/recognizer"
	"github.com/MeKo-Tech/ledgerscan/internal/validate"
	"github.com/shopspring/decimal"
)

// Component weights of the document confidence.
const (
	WeightOCR          = 0.4
	WeightValidation   = 0.3
	WeightBalance      = 0.2
	WeightCompleteness = 0.1
)

// Config holds the recommendation thresholds.
type Config struct {
	// ReviewThreshold sends transactions below it to the low-confidence list.
	ReviewThreshold float64 `mapstructure:"review_threshold" yaml:"review_threshold" json:"review_threshold"`
	AutoApprove     float64 `mapstructure:"auto_approve" yaml:"auto_approve" json:"auto_approve"`
	ManualReview    float64 `mapstructure:"manual_review" yaml:"manual_review" json:"manual_review"`
	// BalanceTolerance is the slack within which a balance counts as exact.
	BalanceTolerance float64 `mapstructure:"balance_tolerance" yaml:"balance_tolerance" json:"balance_tolerance"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{ReviewThreshold: 0.7, AutoApprove: 0.9, ManualReview: 0.6, BalanceTolerance: 0.01}
}

// Validate checks the thresholds are ordered and within [0,1].
func (c Config) Validate() error {
	for _, t := range []struct {
		name  string
		value float64
	}{
		{"review_threshold", c.ReviewThreshold},
		{"auto_approve", c.AutoApprove},
		{"manual_review", c.ManualReview},
	} {
		if t.value < 0 || t.value > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", t.name, t.value)
		}
	}
	if c.ManualReview > c.AutoApprove {
		return fmt.Errorf("manual_review %v must not exceed auto_approve %v", c.ManualReview, c.AutoApprove)
	}
	if c.BalanceTolerance < 0 {
		return fmt.Errorf("balance_tolerance must be >= 0, got %v", c.BalanceTolerance)
	}
	return nil
}

// Input is everything the scorer looks at.
type Input struct {
	Regions      []layout.Region
	Recognitions []recognizer.Result
	Transactions []ledger.Transaction
	Validation   ledger.ValidationReport
}

// Scorer computes confidence reports.
type Scorer struct {
	cfg       Config
	tolerance decimal.Decimal
}

// New returns a Scorer for cfg.
func New(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg, tolerance: decimal.NewFromFloat(cfg.BalanceTolerance)}, nil
}

// Score builds the confidence report for one document.
func (s *Scorer) Score(in Input) ledger.ConfidenceReport {
	r := ledger.ConfidenceReport{
		OCRConfidence:          OCRConfidence(in.Recognitions),
		ValidationScore:        ValidationScore(in.Validation),
		BalanceAccuracy:        BalanceAccuracy(in.Transactions, s.tolerance),
		CompletenessScore:      Completeness(in.Transactions),
		TransactionConfidences: make([]float64, 0, len(in.Transactions)),
		LowConfidenceIndices:   []int{},
	}
	r.DocumentConfidence = clamp01(WeightOCR*r.OCRConfidence +
		WeightValidation*r.ValidationScore +
		WeightBalance*r.BalanceAccuracy +
		WeightCompleteness*r.CompletenessScore)
	r.Recommendation = s.Recommend(r.DocumentConfidence)

	r.Stats.Total = len(in.Transactions)
	for i, tx := range in.Transactions {
		r.TransactionConfidences = append(r.TransactionConfidences, tx.Confidence)
		low := tx.Confidence < s.cfg.ReviewThreshold
		if low {
			r.LowConfidenceIndices = append(r.LowConfidenceIndices, i)
		}
		if ledger.LevelFor(tx.Confidence) == ledger.ConfidenceHigh {
			r.Stats.HighConfidence++
		}
		if low || tx.NeedsReview {
			r.Stats.NeedsReview++
		}
	}

	slog.Debug("Confidence scoring completed",
		"regions", len(in.Regions),
		"detection_confidence", meanRegionConfidence(in.Regions),
		"document_confidence", r.DocumentConfidence,
		"recommendation", r.Recommendation,
		"low_confidence", len(r.LowConfidenceIndices))
	return r
}

// Recommend maps a document confidence to an action.
func (s *Scorer) Recommend(confidence float64) ledger.Recommendation {
	switch {
	case confidence >= s.cfg.AutoApprove:
		return ledger.AutoApprove
	case confidence >= s.cfg.ManualReview:
		return ledger.ManualReview
	default:
		return ledger.Reject
	}
}

// OCRConfidence is the mean recognition confidence, 0 without recognitions.
func OCRConfidence(results []recognizer.Result) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += clamp01(r.Confidence)
	}
	return sum / float64(len(results))
}

// ValidationScore is max(0, 1 - 0.1 per error - 0.05 per warning).
func ValidationScore(report ledger.ValidationReport) float64 {
	return max(0, 1-0.1*float64(len(report.Errors))-0.05*float64(len(report.Warnings)))
}

// BalanceAccuracy is the mean closeness of every checkable balance, or 0.5
// when no balance can be checked.
func BalanceAccuracy(txs []ledger.Transaction, tolerance decimal.Decimal) float64 {
	checks := validate.BalanceChecks(txs, tolerance)
	if len(checks) == 0 {
		return 0.5
	}
	var sum float64
	for _, c := range checks {
		sum += c.Closeness()
	}
	return sum / float64(len(checks))
}

// Completeness is the mean fraction of date, description and value present
// per transaction, 0 without transactions.
func Completeness(txs []ledger.Transaction) float64 {
	if len(txs) == 0 {
		return 0
	}
	var sum float64
	for _, tx := range txs {
		present := 0
		if !tx.Date.IsZero() {
			present++
		}
		if strings.TrimSpace(tx.Description) != "" {
			present++
		}
		if tx.HasMovement() || tx.Balance.Valid {
			present++
		}
		sum += float64(present) / 3
	}
	return sum / float64(len(txs))
}

func meanRegionConfidence(regions []layout.Region) float64 {
	if len(regions) == 0 {
		return 0
	}
	var sum float64
	for _, r := range regions {
		sum += r.Confidence
	}
	return sum / float64(len(regions))
}

func clamp01(v float64) float64 {
	return min(1, max(0, v))
}
