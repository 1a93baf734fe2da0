package validate

import (
	"testing"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(t *testing.T, y int, m time.Month, d int) ledger.Date {
	t.Helper()
	v, ok := ledger.NewDate(y, m, d)
	require.True(t, ok)
	return v
}

func tx(t *testing.T, day int, desc, debit, credit, balance string) ledger.Transaction {
	t.Helper()
	out := ledger.Transaction{
		Date:        date(t, 2024, time.January, day),
		Description: desc,
		Debit:       decimal.RequireFromString(debit),
		Credit:      decimal.RequireFromString(credit),
	}
	if balance != "" {
		out.Balance = decimal.NewNullDecimal(decimal.RequireFromString(balance))
	}
	return out
}

func newValidator(t *testing.T, cfg Config) *Validator {
	t.Helper()
	v, err := New(cfg)
	require.NoError(t, err)
	return v
}

func checks(fs []ledger.Finding) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Check)
	}
	return out
}

func TestValidateCleanSequence(t *testing.T) {
	txs := []ledger.Transaction{
		tx(t, 1, "Opening", "0", "1000", "1000"),
		tx(t, 2, "POS Purchase", "250.50", "0", "749.50"),
		tx(t, 3, "Salary", "0", "5000", "5749.50"),
	}
	report := newValidator(t, DefaultConfig()).Validate(txs)
	assert.True(t, report.Valid)
	assert.NotNil(t, report.Errors)
	assert.NotNil(t, report.Warnings)
	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Warnings)
}

func TestValidateEmpty(t *testing.T) {
	report := newValidator(t, DefaultConfig()).Validate(nil)
	assert.True(t, report.Valid)
	assert.NotNil(t, report.Errors)
	assert.NotNil(t, report.Warnings)
}

func TestValidateDateSequence(t *testing.T) {
	txs := []ledger.Transaction{
		tx(t, 5, "A", "10", "0", ""),
		tx(t, 3, "B", "20", "0", ""),
		tx(t, 4, "C", "30", "0", ""),
	}
	report := newValidator(t, DefaultConfig()).Validate(txs)
	require.False(t, report.Valid)
	require.Len(t, report.Errors, 1)
	f := report.Errors[0]
	assert.Equal(t, CheckDateSequence, f.Check)
	assert.Equal(t, 1, f.TransactionIndex)
	assert.Equal(t, ledger.SeverityError, f.Severity)
}

func TestValidateBalanceMismatch(t *testing.T) {
	txs := []ledger.Transaction{
		tx(t, 1, "Opening", "0", "1000", "1000"),
		tx(t, 2, "Transfer", "100", "0", "950"),
	}
	report := newValidator(t, DefaultConfig()).Validate(txs)
	require.False(t, report.Valid)
	require.Len(t, report.Errors, 1)
	f := report.Errors[0]
	assert.Equal(t, CheckBalance, f.Check)
	assert.Equal(t, 1, f.TransactionIndex)
	require.NotNil(t, f.Expected)
	require.NotNil(t, f.Actual)
	require.NotNil(t, f.Diff)
	assert.True(t, f.Expected.Equal(decimal.RequireFromString("900")))
	assert.True(t, f.Actual.Equal(decimal.RequireFromString("950")))
	assert.True(t, f.Diff.Equal(decimal.RequireFromString("50")))
}

func TestValidateBalanceTolerance(t *testing.T) {
	txs := []ledger.Transaction{
		tx(t, 1, "Opening", "0", "1000", "1000"),
		tx(t, 2, "Transfer", "100", "0", "900.50"),
	}
	assert.False(t, newValidator(t, ConfigFor(StrictnessStrict)).Validate(txs).Valid)
	assert.False(t, newValidator(t, ConfigFor(StrictnessMedium)).Validate(txs).Valid)
	assert.True(t, newValidator(t, ConfigFor(StrictnessLenient)).Validate(txs).Valid)
}

func TestBalanceChecksCarryForward(t *testing.T) {
	txs := []ledger.Transaction{
		tx(t, 1, "Opening", "0", "1000", "1000"),
		tx(t, 2, "Coffee", "5", "0", ""),
		tx(t, 3, "Lunch", "15", "0", "980"),
	}
	got := BalanceChecks(txs, decimal.RequireFromString("0.01"))
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Index)
	assert.True(t, got[0].OK)
	assert.InDelta(t, 1.0, got[0].Closeness(), 1e-12)
}

func TestBalanceCheckCloseness(t *testing.T) {
	c := BalanceCheck{
		Expected: decimal.RequireFromString("200"),
		Diff:     decimal.RequireFromString("-50"),
	}
	assert.InDelta(t, 0.75, c.Closeness(), 1e-12)

	c = BalanceCheck{Expected: decimal.RequireFromString("0.5"), Diff: decimal.RequireFromString("3")}
	assert.Zero(t, c.Closeness())
}

// Balances produced by replaying the movements always pass.
func TestValidateBalanceIdempotence(t *testing.T) {
	txs := []ledger.Transaction{
		tx(t, 1, "Opening", "0", "1234.56", ""),
		tx(t, 2, "Rent", "800", "0", ""),
		tx(t, 3, "Refund", "0", "45.10", ""),
		tx(t, 4, "Fee", "0.35", "0", ""),
	}
	running := decimal.Zero
	for i := range txs {
		running = running.Add(txs[i].Amount())
		txs[i].Balance = decimal.NewNullDecimal(running)
	}
	report := newValidator(t, ConfigFor(StrictnessStrict)).Validate(txs)
	assert.True(t, report.Valid)
	for _, c := range BalanceChecks(txs, decimal.Zero) {
		assert.True(t, c.OK)
	}
}

func TestValidateAmountSanity(t *testing.T) {
	tests := []struct {
		name     string
		tx       ledger.Transaction
		errors   int
		warnings int
	}{
		{name: "negative debit", tx: tx(t, 1, "X", "-5", "0", ""), errors: 1},
		{name: "above band", tx: tx(t, 1, "X", "0", "2000000000", ""), errors: 1},
		{name: "band is exclusive at max", tx: tx(t, 1, "X", "1000000000", "0", ""), errors: 1},
		{name: "zero amount with balance", tx: tx(t, 1, "X", "0", "0", "10")},
		{name: "both sides", tx: tx(t, 1, "X", "5", "5", ""), warnings: 1},
	}
	v := newValidator(t, DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := v.Validate([]ledger.Transaction{tt.tx})
			assert.Len(t, report.Errors, tt.errors, "%v", checks(report.Errors))
			assert.Len(t, report.Warnings, tt.warnings, "%v", checks(report.Warnings))
			for _, f := range append(report.Errors, report.Warnings...) {
				assert.Equal(t, CheckAmountSanity, f.Check)
			}
		})
	}
}

func TestValidateDateBounds(t *testing.T) {
	old := tx(t, 1, "Old", "1", "0", "")
	old.Date = date(t, 1999, time.December, 31)
	report := newValidator(t, DefaultConfig()).Validate([]ledger.Transaction{old})
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "date", report.Errors[0].Field)

	cfg := DefaultConfig()
	cfg.MaxDate = "2023-12-31"
	report = newValidator(t, cfg).Validate([]ledger.Transaction{tx(t, 1, "New", "1", "0", "")})
	require.Len(t, report.Errors, 1)
	assert.Equal(t, CheckAmountSanity, report.Errors[0].Check)
}

func TestValidateDuplicateWarningKeepsValid(t *testing.T) {
	txs := []ledger.Transaction{
		tx(t, 3, "POS PURCHASE SHOPRITE", "250", "0", ""),
		tx(t, 3, "POS PURCHASE SHOPRIT", "250", "0", ""),
		tx(t, 3, "TRANSFER TO JOHN", "250", "0", ""),
	}
	report := newValidator(t, DefaultConfig()).Validate(txs)
	assert.True(t, report.Valid)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, CheckDuplicate, report.Warnings[0].Check)
	assert.Equal(t, 1, report.Warnings[0].TransactionIndex)
	assert.Equal(t, ledger.SeverityWarning, report.Warnings[0].Severity)
}

func TestValidateRequiredFields(t *testing.T) {
	missing := ledger.Transaction{Description: "  "}
	report := newValidator(t, DefaultConfig()).Validate([]ledger.Transaction{missing})
	require.Len(t, report.Errors, 3)
	fields := []string{}
	for _, f := range report.Errors {
		assert.Equal(t, CheckRequiredFields, f.Check)
		fields = append(fields, f.Field)
	}
	assert.Equal(t, []string{"date", "description", "amount"}, fields)
}

func TestValidateChecksAreIndependent(t *testing.T) {
	txs := []ledger.Transaction{
		tx(t, 9, "Opening", "0", "100", "100"),
		tx(t, 2, "", "-10", "0", "500"),
	}
	report := newValidator(t, DefaultConfig()).Validate(txs)
	assert.Equal(t, []string{CheckDateSequence, CheckBalance, CheckAmountSanity, CheckRequiredFields}, checks(report.Errors))
}

func TestConfigPresets(t *testing.T) {
	strict, medium, lenient := ConfigFor(StrictnessStrict), ConfigFor(StrictnessMedium), ConfigFor(StrictnessLenient)
	assert.Less(t, strict.MaxAmount, medium.MaxAmount)
	assert.Less(t, medium.MaxAmount, lenient.MaxAmount)
	assert.Less(t, strict.DuplicateSimilarity, lenient.DuplicateSimilarity)
	assert.Less(t, medium.BalanceTolerance, lenient.BalanceTolerance)
	assert.Equal(t, StrictnessMedium, ConfigFor("bogus").Strictness)
	assert.Equal(t, DefaultConfig(), medium)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"strictness", func(c *Config) { c.Strictness = "paranoid" }},
		{"tolerance", func(c *Config) { c.BalanceTolerance = -1 }},
		{"band", func(c *Config) { c.MinAmount = 10; c.MaxAmount = 5 }},
		{"similarity", func(c *Config) { c.DuplicateSimilarity = 1.5 }},
		{"min date", func(c *Config) { c.MinDate = "2024-13-01" }},
		{"max date", func(c *Config) { c.MaxDate = "tomorrow" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestConfigZeroValuesUsePreset(t *testing.T) {
	v := newValidator(t, Config{Strictness: StrictnessStrict})
	assert.Equal(t, ConfigFor(StrictnessStrict), v.Config())
	assert.True(t, Config{}.Tolerance().Equal(decimal.RequireFromString("0.01")))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("", ""), 1e-12)
	assert.InDelta(t, 1.0, Similarity("POS  Purchase", "pos purchase"), 1e-12)
	assert.InDelta(t, 0.0, Similarity("abc", ""), 1e-12)
	assert.InDelta(t, 0.75, Similarity("abcd", "abed"), 1e-12)
	assert.InDelta(t, 1-3.0/7, Similarity("kitten", "sitting"), 1e-12)
	assert.InDelta(t, 0.9, Similarity("₦1,000 fee", "N1,000 FEE"), 1e-12)
}
