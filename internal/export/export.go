// Package export writes ledger documents as JSON, YAML, CSV or text.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCSV  = "csv"
	FormatText = "text"
)

// Formats lists the supported output formats.
func Formats() []string {
	return []string{FormatJSON, FormatYAML, FormatCSV, FormatText}
}

// ContentType returns the media type of a format.
func ContentType(format string) string {
	switch format {
	case FormatYAML:
		return "application/yaml"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "application/json"
	}
}

// Write renders doc in format.
func Write(w io.Writer, doc *ledger.Document, format string) error {
	if doc == nil {
		return fmt.Errorf("nil document")
	}
	switch strings.ToLower(format) {
	case FormatJSON, "":
		return JSON(w, doc)
	case FormatYAML, "yml":
		return YAML(w, doc)
	case FormatCSV:
		return CSV(w, doc.Transactions)
	case FormatText, "txt":
		return Text(w, doc)
	default:
		return fmt.Errorf("unsupported output format %q (want one of %s)", format, strings.Join(Formats(), ", "))
	}
}

// JSON writes doc as indented JSON.
func JSON(w io.Writer, doc *ledger.Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// YAML writes doc as block-style YAML with the same keys and order as the
// JSON form.
func YAML(w io.Writer, doc *ledger.Document) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return fmt.Errorf("convert to yaml: %w", err)
	}
	blockStyle(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle clears the flow and quoting styles inherited from JSON. The
// encoder re-quotes strings that would otherwise change type.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// CSVHeader is the column order of CSV output.
var CSVHeader = []string{
	"page", "row", "date", "description", "debit", "credit", "balance",
	"currency", "category", "confidence", "confidence_level", "needs_review",
}

// CSV writes one line per transaction.
func CSV(w io.Writer, txs []ledger.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, tx := range txs {
		balance := ""
		if tx.Balance.Valid {
			balance = tx.Balance.Decimal.StringFixed(2)
		}
		if err := cw.Write([]string{
			strconv.Itoa(tx.Metadata.Page),
			strconv.Itoa(tx.Metadata.RowIndex),
			tx.Date.String(),
			tx.Description,
			tx.Debit.StringFixed(2),
			tx.Credit.StringFixed(2),
			balance,
			tx.Currency,
			string(tx.Category),
			strconv.FormatFloat(tx.Confidence, 'f', 3, 64),
			string(tx.ConfidenceLevel),
			strconv.FormatBool(tx.NeedsReview),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Text writes a human-readable report: the transaction table, totals,
// findings and the confidence recommendation.
func Text(w io.Writer, doc *ledger.Document) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Document %s (%s, %d page(s))\n\n", doc.ID, doc.Metadata.SourceFormat, doc.Metadata.PageCount)

	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tDate\tDescription\tDebit\tCredit\tBalance\tCategory\t")
	for i, tx := range doc.Transactions {
		balance := "-"
		if tx.Balance.Valid {
			balance = tx.Balance.Decimal.StringFixed(2)
		}
		mark := ""
		if tx.NeedsReview {
			mark = " *"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s%s\t\n", i, tx.Date, tx.Description,
			amount(tx.Debit.StringFixed(2)), amount(tx.Credit.StringFixed(2)), balance, tx.Category, mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := doc.Summary
	fmt.Fprintf(&buf, "\nTransactions: %d  Debits: %s  Credits: %s  Net: %s\n",
		s.TransactionCount, s.TotalDebits.StringFixed(2), s.TotalCredits.StringFixed(2), s.Net.StringFixed(2))
	if s.OpeningBalance.Valid && s.ClosingBalance.Valid {
		fmt.Fprintf(&buf, "Opening balance: %s  Closing balance: %s\n",
			s.OpeningBalance.Decimal.StringFixed(2), s.ClosingBalance.Decimal.StringFixed(2))
	}
	if !s.DateRange.From.IsZero() {
		fmt.Fprintf(&buf, "Period: %s to %s\n", s.DateRange.From, s.DateRange.To)
	}

	v := doc.Validation
	fmt.Fprintf(&buf, "\nValidation: valid=%t errors=%d warnings=%d\n", v.Valid, len(v.Errors), len(v.Warnings))
	for _, f := range v.Errors {
		fmt.Fprintf(&buf, "  ERROR   [%s] #%d %s\n", f.Check, f.TransactionIndex, f.Message)
	}
	for _, f := range v.Warnings {
		fmt.Fprintf(&buf, "  WARNING [%s] #%d %s\n", f.Check, f.TransactionIndex, f.Message)
	}
	for _, e := range doc.ParseErrors {
		fmt.Fprintf(&buf, "  SKIPPED page %d row %d: %s %q (%s)\n", e.Page, e.Row, e.Field, e.Raw, e.Reason)
	}
	for _, msg := range doc.Warnings {
		fmt.Fprintf(&buf, "  NOTE    %s\n", msg)
	}

	c := doc.Confidence
	fmt.Fprintf(&buf, "\nConfidence: %.3f (ocr %.3f, validation %.3f, balance %.3f, completeness %.3f) -> %s\n",
		c.DocumentConfidence, c.OCRConfidence, c.ValidationScore, c.BalanceAccuracy, c.CompletenessScore, c.Recommendation)
	if len(c.LowConfidenceIndices) > 0 {
		fmt.Fprintf(&buf, "Review transactions: %v\n", c.LowConfidenceIndices)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func amount(s string) string {
	if s == "0.00" {
		return ""
	}
	return s
}
