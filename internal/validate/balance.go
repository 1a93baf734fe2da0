package validate

import (
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/shopspring/decimal"
)

// BalanceCheck is one evaluation of the balance equation.
type BalanceCheck struct {
	Index    int
	Expected decimal.Decimal
	Actual   decimal.Decimal
	Diff     decimal.Decimal
	OK       bool
}

// BalanceChecks evaluates balance[i] = balance[prev] + credit - debit for
// every transaction with a stated balance that follows an earlier stated
// balance. Movements of transactions without a balance in between are
// carried forward.
func BalanceChecks(txs []ledger.Transaction, tolerance decimal.Decimal) []BalanceCheck {
	var checks []BalanceCheck
	var running decimal.NullDecimal
	for i, tx := range txs {
		if !running.Valid {
			if tx.Balance.Valid {
				running = tx.Balance
			}
			continue
		}
		expected := running.Decimal.Add(tx.Amount())
		if !tx.Balance.Valid {
			running = decimal.NewNullDecimal(expected)
			continue
		}
		diff := tx.Balance.Decimal.Sub(expected)
		checks = append(checks, BalanceCheck{
			Index:    i,
			Expected: expected,
			Actual:   tx.Balance.Decimal,
			Diff:     diff,
			OK:       diff.Abs().LessThanOrEqual(tolerance),
		})
		running = tx.Balance
	}
	return checks
}

// Closeness scores a check: 1 within tolerance, otherwise
// max(0, 1 - |diff| / max(1, |expected|)).
func (c BalanceCheck) Closeness() float64 {
	if c.OK {
		return 1
	}
	denom := decimal.Max(decimal.NewFromInt(1), c.Expected.Abs())
	v, _ := decimal.NewFromInt(1).Sub(c.Diff.Abs().Div(denom)).Float64()
	return max(0, v)
}
