package eval

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/rules"
	"github.com/shopspring/decimal"
)

// Row is one expected transaction.
type Row struct {
	Date        ledger.Date
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Balance     decimal.NullDecimal
}

// ReadGroundTruth reads a CSV with a header naming at least the date and
// description columns; debit, credit and balance are optional. Column order
// is free and unknown columns are ignored. Dates and amounts are read with
// parser, so the same formats accepted from a statement are accepted here.
func ReadGroundTruth(r io.Reader, parser *rules.Parser) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("ground truth: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("ground truth header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{"date", "description"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("ground truth: missing %q column", name)
		}
	}
	cell := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	rows := []Row{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ground truth line %d: %w", line, err)
		}
		var row Row
		if row.Date, err = parser.ParseDate(cell(rec, "date")); err != nil {
			return nil, fmt.Errorf("ground truth line %d: %w", line, err)
		}
		row.Description = cell(rec, "description")
		if row.Debit, err = amountCell(parser, cell(rec, "debit")); err != nil {
			return nil, fmt.Errorf("ground truth line %d: debit: %w", line, err)
		}
		if row.Credit, err = amountCell(parser, cell(rec, "credit")); err != nil {
			return nil, fmt.Errorf("ground truth line %d: credit: %w", line, err)
		}
		if s := cell(rec, "balance"); s != "" {
			b, err := parser.ParseAmount(s)
			if err != nil {
				return nil, fmt.Errorf("ground truth line %d: balance: %w", line, err)
			}
			row.Balance = decimal.NewNullDecimal(b)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// LoadGroundTruth reads a ground-truth CSV file.
func LoadGroundTruth(path string, parser *rules.Parser) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadGroundTruth(f, parser)
}

func amountCell(parser *rules.Parser, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := parser.ParseAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Abs(), nil
}
