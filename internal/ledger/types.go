// Package ledger holds the data contracts produced by the extraction pipeline:
// transactions, the assembled document, and the validation and confidence reports.
package ledger

import (
	"github.com/shopspring/decimal"
)

// Category classifies a transaction by its description.
type Category string

const (
	CategoryIncome         Category = "INCOME"
	CategoryTransfer       Category = "TRANSFER"
	CategoryATM            Category = "ATM"
	CategoryFee            Category = "FEE"
	CategoryPayment        Category = "PAYMENT"
	CategoryOpeningBalance Category = "OPENING_BALANCE"
	CategoryUncategorized  Category = "UNCATEGORIZED"
)

// ConfidenceLevel buckets a per-transaction confidence.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// LevelFor returns the bucket for a confidence value.
func LevelFor(c float64) ConfidenceLevel {
	switch {
	case c >= 0.9:
		return ConfidenceHigh
	case c >= 0.7:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Transaction is one parsed ledger line. It is not modified after parsing;
// validation results live in ValidationReport.
type Transaction struct {
	Date            Date                `json:"date"`
	Description     string              `json:"description"`
	Debit           decimal.Decimal     `json:"debit"`
	Credit          decimal.Decimal     `json:"credit"`
	Balance         decimal.NullDecimal `json:"balance"`
	Currency        string              `json:"currency,omitempty"`
	Category        Category            `json:"category"`
	Confidence      float64             `json:"confidence"`
	ConfidenceLevel ConfidenceLevel     `json:"confidence_level"`
	NeedsReview     bool                `json:"needs_review"`
	Metadata        TransactionMeta     `json:"metadata"`
}

// TransactionMeta records where a transaction came from.
type TransactionMeta struct {
	Page     int               `json:"page"`
	RowIndex int               `json:"row_index"`
	Crops    []int             `json:"crops,omitempty"`
	RawCells map[string]string `json:"raw_cells,omitempty"`
}

// Amount returns the signed movement: credit minus debit.
func (t Transaction) Amount() decimal.Decimal {
	return t.Credit.Sub(t.Debit)
}

// HasMovement reports whether debit or credit is nonzero.
func (t Transaction) HasMovement() bool {
	return !t.Debit.IsZero() || !t.Credit.IsZero()
}

// Severity of a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is a single validation error or warning.
type Finding struct {
	Check            string           `json:"check"`
	Message          string           `json:"message"`
	TransactionIndex int              `json:"transaction_index"`
	Field            string           `json:"field,omitempty"`
	Severity         Severity         `json:"severity"`
	Expected         *decimal.Decimal `json:"expected,omitempty"`
	Actual           *decimal.Decimal `json:"actual,omitempty"`
	Diff             *decimal.Decimal `json:"diff,omitempty"`
}

// ValidationReport is built once per transaction sequence.
type ValidationReport struct {
	Valid    bool      `json:"valid"`
	Errors   []Finding `json:"errors"`
	Warnings []Finding `json:"warnings"`
}

// Recommendation is the action suggested by the document confidence.
type Recommendation string

const (
	AutoApprove  Recommendation = "AUTO_APPROVE"
	ManualReview Recommendation = "MANUAL_REVIEW"
	Reject       Recommendation = "REJECT"
)

// ConfidenceStats are aggregate per-transaction counts.
type ConfidenceStats struct {
	Total          int `json:"total"`
	HighConfidence int `json:"high_confidence"`
	NeedsReview    int `json:"needs_review"`
}

// ConfidenceReport combines recognition, validation and balance signals.
type ConfidenceReport struct {
	DocumentConfidence     float64         `json:"document_confidence"`
	OCRConfidence          float64         `json:"ocr_confidence"`
	ValidationScore        float64         `json:"validation_score"`
	BalanceAccuracy        float64         `json:"balance_accuracy"`
	CompletenessScore      float64         `json:"completeness_score"`
	TransactionConfidences []float64       `json:"transaction_confidences"`
	LowConfidenceIndices   []int           `json:"low_confidence_indices"`
	Recommendation         Recommendation  `json:"recommendation"`
	Stats                  ConfidenceStats `json:"stats"`
}

// Page groups the transactions read from one page of the source.
type Page struct {
	Number       int           `json:"page_number"`
	Source       string        `json:"source"`
	Regions      int           `json:"regions"`
	Transactions []Transaction `json:"transactions"`
	DateRange    DateRange     `json:"date_range"`
}

// Summary holds document totals.
type Summary struct {
	TransactionCount int                 `json:"transaction_count"`
	TotalDebits      decimal.Decimal     `json:"total_debits"`
	TotalCredits     decimal.Decimal     `json:"total_credits"`
	Net              decimal.Decimal     `json:"net"`
	OpeningBalance   decimal.NullDecimal `json:"opening_balance"`
	ClosingBalance   decimal.NullDecimal `json:"closing_balance"`
	DateRange        DateRange           `json:"date_range"`
}

// ProcessingMetadata describes how a document was produced.
type ProcessingMetadata struct {
	SourceFormat string            `json:"source_format"`
	PageCount    int               `json:"page_count"`
	Detector     string            `json:"detector"`
	Recognizers  []string          `json:"recognizers"`
	DecodeMode   string            `json:"decode_mode"`
	Strictness   string            `json:"strictness"`
	Versions     map[string]string `json:"versions,omitempty"`
	ElapsedMs    int64             `json:"elapsed_ms,omitempty"`
	StageMs      map[string]int64  `json:"stage_ms,omitempty"`
}

// Document is the terminal artifact of a pipeline run.
type Document struct {
	ID           string             `json:"id"`
	Pages        []Page             `json:"pages"`
	Transactions []Transaction      `json:"transactions"`
	Summary      Summary            `json:"summary"`
	Validation   ValidationReport   `json:"validation_report"`
	Confidence   ConfidenceReport   `json:"confidence_report"`
	ParseErrors  []ParseError       `json:"parse_errors"`
	Warnings     []string           `json:"warnings"`
	Metadata     ProcessingMetadata `json:"metadata"`
}

// Summarize computes totals over txs in order.
func Summarize(txs []Transaction) Summary {
	s := Summary{
		TransactionCount: len(txs),
		TotalDebits:      decimal.Zero,
		TotalCredits:     decimal.Zero,
	}
	for _, t := range txs {
		s.TotalDebits = s.TotalDebits.Add(t.Debit)
		s.TotalCredits = s.TotalCredits.Add(t.Credit)
		s.DateRange = s.DateRange.Extend(t.Date)
		if t.Balance.Valid {
			if !s.OpeningBalance.Valid {
				// The first stated balance already includes its own movement.
				s.OpeningBalance = decimal.NewNullDecimal(t.Balance.Decimal.Sub(t.Amount()))
			}
			s.ClosingBalance = t.Balance
		}
	}
	s.Net = s.TotalCredits.Sub(s.TotalDebits)
	return s
}
