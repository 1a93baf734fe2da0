package batch

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/export"
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
)

// WriteDocuments renders one or more documents. Several JSON documents form
// an array, YAML documents a multi-document stream and CSV rows share one
// header.
func WriteDocuments(w io.Writer, docs []*ledger.Document, format string) error {
	if len(docs) == 1 {
		return export.Write(w, docs[0], format)
	}
	switch format {
	case export.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	case export.FormatCSV:
		var txs []ledger.Transaction
		for _, doc := range docs {
			txs = append(txs, doc.Transactions...)
		}
		return export.CSV(w, txs)
	}
	for i, doc := range docs {
		if i > 0 {
			sep := "\n"
			if format == export.FormatYAML {
				sep = "---\n"
			}
			if _, err := io.WriteString(w, sep); err != nil {
				return err
			}
		}
		if err := export.Write(w, doc, format); err != nil {
			return err
		}
	}
	return nil
}

// Stats summarises a batch run.
type Stats struct {
	Files        int
	Processed    int
	Failed       int
	Transactions int
	Workers      int
	Duration     time.Duration
	AvgPerFile   time.Duration
	FilesPerSec  float64
}

// Stats computes the summary of r.
func (r *Result) Stats() Stats {
	s := Stats{Files: len(r.Items), Workers: r.Workers, Duration: r.Duration}
	var busy time.Duration
	for _, it := range r.Items {
		busy += it.Duration
		if it.Err != nil {
			s.Failed++
			continue
		}
		s.Processed++
		if it.Document != nil {
			s.Transactions += len(it.Document.Transactions)
		}
	}
	if s.Files > 0 {
		s.AvgPerFile = busy / time.Duration(s.Files)
	}
	if r.Duration > 0 {
		s.FilesPerSec = float64(s.Files) / r.Duration.Seconds()
	}
	return s
}

// PrintStats writes the summary of r to w.
func (r *Result) PrintStats(w io.Writer) {
	stats := r.Stats()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total files: %d\n", stats.Files)
	_, _ = fmt.Fprintf(w, "  Processed: %d\n", stats.Processed)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", stats.Failed)
	_, _ = fmt.Fprintf(w, "  Transactions: %d\n", stats.Transactions)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", stats.Workers)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", stats.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per file: %v\n", stats.AvgPerFile.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f files/sec\n", stats.FilesPerSec)
}
