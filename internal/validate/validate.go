// Package validate checks a parsed transaction sequence for ordering,
// balance, sanity, duplicate and completeness problems.
package validate

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/shopspring/decimal"
)

// Check names reported in findings.
const (
	CheckDateSequence   = "date_sequence"
	CheckBalance        = "balance"
	CheckAmountSanity   = "amount_sanity"
	CheckDuplicate      = "duplicate"
	CheckRequiredFields = "required_fields"
)

// Validator runs every check over a transaction sequence. It is safe for
// concurrent use.
type Validator struct {
	cfg       Config
	tolerance decimal.Decimal
	minAmount decimal.Decimal
	maxAmount decimal.Decimal
	minDate   ledger.Date
	maxDate   ledger.Date
}

// New validates cfg and returns a Validator.
func New(cfg Config) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	v := &Validator{
		cfg:       cfg,
		tolerance: decimal.NewFromFloat(cfg.BalanceTolerance),
		minAmount: decimal.NewFromFloat(cfg.MinAmount),
		maxAmount: decimal.NewFromFloat(cfg.MaxAmount),
	}
	if cfg.MinDate != "" {
		v.minDate, _ = ledger.ParseISODate(cfg.MinDate)
	}
	if cfg.MaxDate != "" {
		v.maxDate, _ = ledger.ParseISODate(cfg.MaxDate)
	}
	return v, nil
}

// Config returns the effective configuration.
func (v *Validator) Config() Config { return v.cfg }

type report struct {
	errors   []ledger.Finding
	warnings []ledger.Finding
}

func (r *report) add(f ledger.Finding) {
	if f.Severity == ledger.SeverityWarning {
		r.warnings = append(r.warnings, f)
		return
	}
	f.Severity = ledger.SeverityError
	r.errors = append(r.errors, f)
}

// Validate runs all checks in order without short-circuiting. The report is
// valid when there are no errors; warnings never invalidate it.
func (v *Validator) Validate(txs []ledger.Transaction) ledger.ValidationReport {
	start := time.Now()
	r := &report{}
	v.checkDateSequence(txs, r)
	v.checkBalance(txs, r)
	v.checkAmounts(txs, r)
	v.checkDuplicates(txs, r)
	v.checkRequired(txs, r)

	out := ledger.ValidationReport{
		Valid:    len(r.errors) == 0,
		Errors:   append([]ledger.Finding{}, r.errors...),
		Warnings: append([]ledger.Finding{}, r.warnings...),
	}
	slog.Debug("Validation completed",
		"transactions", len(txs), "errors", len(out.Errors), "warnings", len(out.Warnings),
		"strictness", v.cfg.Strictness, "duration_ms", time.Since(start).Milliseconds())
	return out
}

func (v *Validator) checkDateSequence(txs []ledger.Transaction, r *report) {
	var last ledger.Date
	for i, tx := range txs {
		if tx.Date.IsZero() {
			continue
		}
		if !last.IsZero() && tx.Date.Before(last) {
			r.add(ledger.Finding{
				Check:            CheckDateSequence,
				Message:          fmt.Sprintf("date %s is earlier than preceding %s", tx.Date, last),
				TransactionIndex: i,
				Field:            "date",
			})
		}
		last = tx.Date
	}
}

func (v *Validator) checkBalance(txs []ledger.Transaction, r *report) {
	for _, c := range BalanceChecks(txs, v.tolerance) {
		if c.OK {
			continue
		}
		expected, actual, diff := c.Expected, c.Actual, c.Diff
		r.add(ledger.Finding{
			Check:            CheckBalance,
			Message:          fmt.Sprintf("balance %s does not match expected %s (diff %s)", actual.StringFixed(2), expected.StringFixed(2), diff.StringFixed(2)),
			TransactionIndex: c.Index,
			Field:            "balance",
			Expected:         &expected,
			Actual:           &actual,
			Diff:             &diff,
		})
	}
}

func (v *Validator) checkAmounts(txs []ledger.Transaction, r *report) {
	for i, tx := range txs {
		for _, a := range []struct {
			field string
			value decimal.Decimal
		}{{"debit", tx.Debit}, {"credit", tx.Credit}} {
			switch {
			case a.value.IsNegative():
				r.add(ledger.Finding{
					Check: CheckAmountSanity, TransactionIndex: i, Field: a.field,
					Message: fmt.Sprintf("%s %s is negative", a.field, a.value.StringFixed(2)),
				})
			case a.value.IsZero():
			case a.value.LessThan(v.minAmount) || a.value.GreaterThanOrEqual(v.maxAmount):
				r.add(ledger.Finding{
					Check: CheckAmountSanity, TransactionIndex: i, Field: a.field,
					Message: fmt.Sprintf("%s %s outside [%s, %s)", a.field, a.value.StringFixed(2), v.minAmount, v.maxAmount),
				})
			}
		}
		if !tx.Date.IsZero() {
			if (!v.minDate.IsZero() && tx.Date.Before(v.minDate)) || (!v.maxDate.IsZero() && tx.Date.After(v.maxDate)) {
				r.add(ledger.Finding{
					Check: CheckAmountSanity, TransactionIndex: i, Field: "date",
					Message: fmt.Sprintf("date %s outside plausible range", tx.Date),
				})
			}
		}
		if !tx.Debit.IsZero() && !tx.Credit.IsZero() {
			r.add(ledger.Finding{
				Check: CheckAmountSanity, TransactionIndex: i, Field: "amount", Severity: ledger.SeverityWarning,
				Message: "both debit and credit are set",
			})
		}
	}
}

func (v *Validator) checkDuplicates(txs []ledger.Transaction, r *report) {
	for j := 1; j < len(txs); j++ {
		for i := range j {
			a, b := txs[i], txs[j]
			if a.Date != b.Date || !a.Debit.Equal(b.Debit) || !a.Credit.Equal(b.Credit) {
				continue
			}
			if sim := Similarity(a.Description, b.Description); sim >= v.cfg.DuplicateSimilarity {
				r.add(ledger.Finding{
					Check: CheckDuplicate, TransactionIndex: j, Field: "description", Severity: ledger.SeverityWarning,
					Message: fmt.Sprintf("possible duplicate of transaction %d (similarity %.2f)", i, sim),
				})
				break
			}
		}
	}
}

func (v *Validator) checkRequired(txs []ledger.Transaction, r *report) {
	for i, tx := range txs {
		if tx.Date.IsZero() {
			r.add(ledger.Finding{Check: CheckRequiredFields, TransactionIndex: i, Field: "date", Message: "date is missing"})
		}
		if strings.TrimSpace(tx.Description) == "" {
			r.add(ledger.Finding{Check: CheckRequiredFields, TransactionIndex: i, Field: "description", Message: "description is missing"})
		}
		if !tx.HasMovement() && !tx.Balance.Valid {
			r.add(ledger.Finding{Check: CheckRequiredFields, TransactionIndex: i, Field: "amount", Message: "no debit, credit or balance"})
		}
	}
}
