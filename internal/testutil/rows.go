package testutil

import (
	"time"

	"github.com/shopspring/decimal"
)

var generatedEntries = []struct {
	description string
	credit      bool
	amount      int64 // kobo
}{
	{"Salary Credit", true, 45000000},
	{"POS Purchase Shoprite", false, 1250050},
	{"ATM Withdrawal", false, 2000000},
	{"Transfer From Ada Obi", true, 1500000},
	{"Airtime Purchase", false, 100000},
	{"Electricity Bill", false, 850000},
	{"Interest Credit", true, 12345},
	{"Transfer To Landlord", false, 15000000},
	{"SMS Alert Charge", false, 5000},
}

// GenerateRows returns an opening balance row followed by n transactions
// whose running balances reconcile, one per day from 1 January 2024. The
// same n always yields the same rows.
func GenerateRows(n int, opening decimal.Decimal) [][]string {
	day := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	balance := opening
	rows := [][]string{{day.Format("02/01/2006"), "Opening Balance", "", "", balance.StringFixed(2)}}
	for i := range n {
		day = day.AddDate(0, 0, 1)
		e := generatedEntries[(i*7+3)%len(generatedEntries)]
		amount := decimal.New(e.amount, -2)
		debit, credit := "", ""
		if e.credit {
			balance = balance.Add(amount)
			credit = amount.StringFixed(2)
		} else {
			balance = balance.Sub(amount)
			debit = amount.StringFixed(2)
		}
		rows = append(rows, []string{day.Format("02/01/2006"), e.description, debit, credit, balance.StringFixed(2)})
	}
	return rows
}

// TruthCSV renders rows as a ground-truth file with the statement header.
func TruthCSV(rows [][]string) string {
	var b []byte
	b = appendCSVLine(b, StatementHeader)
	for _, r := range rows {
		b = appendCSVLine(b, r)
	}
	return string(b)
}

func appendCSVLine(b []byte, fields []string) []byte {
	for i, f := range fields {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, f...)
	}
	return append(b, '\n')
}
