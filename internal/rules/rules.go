// Package rules turns reconstructed table rows into ledger transactions:
// date and amount parsing with OCR repair, description cleaning,
// categorisation and per-transaction confidence.
package rules

import (
	"log/slog"
	"strings"

	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/table"
	"github.com/shopspring/decimal"
)

// Config controls parsing.
type Config struct {
	// Currency is the ISO code stamped on transactions and stripped from amounts.
	Currency       string `mapstructure:"currency" yaml:"currency" json:"currency"`
	CurrencySymbol string `mapstructure:"currency_symbol" yaml:"currency_symbol" json:"currency_symbol"`
	// DateLayouts are Go time layouts tried after the built-in formats.
	DateLayouts          []string `mapstructure:"date_layouts" yaml:"date_layouts" json:"date_layouts"`
	UppercaseDescription bool     `mapstructure:"uppercase_description" yaml:"uppercase_description" json:"uppercase_description"`
	MaxDescription       int      `mapstructure:"max_description" yaml:"max_description" json:"max_description"`
	// ReviewThreshold flags transactions below it for review.
	ReviewThreshold float64 `mapstructure:"review_threshold" yaml:"review_threshold" json:"review_threshold"`
	// UncertainPenalty is subtracted when the description holds a '?'.
	UncertainPenalty float64 `mapstructure:"uncertain_penalty" yaml:"uncertain_penalty" json:"uncertain_penalty"`
}

// DefaultConfig parses Naira statements.
func DefaultConfig() Config {
	return Config{
		Currency:         "NGN",
		CurrencySymbol:   "₦",
		MaxDescription:   200,
		ReviewThreshold:  0.7,
		UncertainPenalty: 0.1,
	}
}

// Parser applies the ledger rules. It is safe for concurrent use.
type Parser struct {
	cfg Config
}

// New returns a Parser.
func New(cfg Config) *Parser {
	return &Parser{cfg: cfg}
}

// IsDate reports whether s parses as a date.
func (p *Parser) IsDate(s string) bool {
	_, err := p.ParseDate(s)
	return err == nil
}

// IsAmount reports whether s parses as an amount.
func (p *Parser) IsAmount(s string) bool {
	_, err := p.ParseAmount(s)
	return err == nil
}

var _ table.Classifier = (*Parser)(nil)

// ParseRow converts a row into a transaction. Header and empty rows yield
// (nil, nil); an unparseable date or amount yields a ParseError and no
// transaction.
func (p *Parser) ParseRow(row table.Row) (*ledger.Transaction, *ledger.ParseError) {
	if row.Header || row.Empty() {
		return nil, nil
	}
	fail := func(field, raw, reason string) *ledger.ParseError {
		slog.Debug("rules: row skipped", "row", row.Index, "page", row.Page, "field", field, "raw", raw, "reason", reason)
		return &ledger.ParseError{Page: row.Page, Row: row.Index, Field: field, Raw: raw, Reason: reason}
	}

	rawDate := strings.TrimSpace(row.Text(table.RoleDate))
	if rawDate == "" {
		return nil, fail("date", rawDate, "missing")
	}
	date, err := p.ParseDate(rawDate)
	if err != nil {
		return nil, fail("date", rawDate, err.Error())
	}

	tx := &ledger.Transaction{
		Date:     date,
		Debit:    decimal.Zero,
		Credit:   decimal.Zero,
		Currency: p.cfg.Currency,
	}
	amounts := []struct {
		role  table.Role
		field string
		set   func(decimal.Decimal)
	}{
		{table.RoleDebit, "debit", func(d decimal.Decimal) { tx.Debit = d.Abs() }},
		{table.RoleCredit, "credit", func(d decimal.Decimal) { tx.Credit = d.Abs() }},
		{table.RoleAmount, "amount", func(d decimal.Decimal) {
			if d.IsNegative() {
				tx.Debit = d.Abs()
			} else {
				tx.Credit = d
			}
		}},
		{table.RoleBalance, "balance", func(d decimal.Decimal) { tx.Balance = decimal.NewNullDecimal(d) }},
	}
	for _, a := range amounts {
		raw := strings.TrimSpace(row.Text(a.role))
		if raw == "" {
			continue
		}
		d, err := p.ParseAmount(raw)
		if err != nil {
			return nil, fail(a.field, raw, err.Error())
		}
		a.set(d)
	}

	rawDesc := row.Text(table.RoleDescription)
	tx.Description = p.CleanDescription(rawDesc)
	tx.Category = Categorize(tx.Description)

	conf := row.Confidence()
	if strings.Contains(rawDesc, "?") {
		conf -= p.cfg.UncertainPenalty
	}
	tx.Confidence = min(1, max(0, conf))
	tx.ConfidenceLevel = ledger.LevelFor(tx.Confidence)
	tx.NeedsReview = tx.Confidence < p.cfg.ReviewThreshold

	tx.Metadata = ledger.TransactionMeta{
		Page:     row.Page,
		RowIndex: row.Index,
		Crops:    append([]int(nil), row.Orders...),
		RawCells: make(map[string]string, len(row.Cells)),
	}
	for role, text := range row.Cells {
		if text != "" {
			tx.Metadata.RawCells[strings.ToLower(string(role))] = text
		}
	}
	return tx, nil
}

// ParseRows parses rows in order, collecting transactions and errors. An
// unsigned value in an AMOUNT column takes its direction from the running
// balance: a fall since the previous transaction books it as a debit.
func (p *Parser) ParseRows(rows []table.Row) ([]ledger.Transaction, []ledger.ParseError) {
	var txs []ledger.Transaction
	var errs []ledger.ParseError
	var prev decimal.NullDecimal
	for _, row := range rows {
		tx, perr := p.ParseRow(row)
		switch {
		case perr != nil:
			errs = append(errs, *perr)
		case tx != nil:
			if prev.Valid && tx.Balance.Valid && unsignedAmount(row) &&
				tx.Balance.Decimal.LessThan(prev.Decimal) && tx.Debit.IsZero() {
				tx.Debit, tx.Credit = tx.Credit, decimal.Zero
			}
			if tx.Balance.Valid {
				prev = tx.Balance
			}
			txs = append(txs, *tx)
		}
	}
	return txs, errs
}

// unsignedAmount reports an AMOUNT cell with no sign, parentheses or DR/CR marker.
func unsignedAmount(row table.Row) bool {
	raw := strings.ToUpper(strings.Join(strings.Fields(row.Text(table.RoleAmount)), ""))
	if raw == "" || strings.ContainsAny(raw, "+-()") {
		return false
	}
	for _, marker := range []string{"DR", "CR"} {
		if strings.HasPrefix(raw, marker) || strings.HasSuffix(raw, marker) {
			return false
		}
	}
	return true
}
