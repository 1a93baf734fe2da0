package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/ledgerscan/internal/eval"
	"github.com/MeKo-Tech/ledgerscan/internal/ingest"
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/pipeline"
	"github.com/MeKo-Tech/ledgerscan/internal/rules"
)

// evalResult is the JSON form of the eval command.
type evalResult struct {
	Document   string       `json:"document"`
	Report     eval.Report  `json:"report"`
	Confidence float64      `json:"document_confidence"`
	Timing     *eval.Timing `json:"timing,omitempty"`
}

func newEvalCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <file>",
		Short: "Score an extraction against ground truth",
		Long: `Extract a statement and compare the transactions with a ground-truth CSV.

The CSV needs a header with at least "date" and "description"; "debit",
"credit" and "balance" are optional. Column order does not matter.

Reported metrics: row precision, recall and F1, exact-match rate, per-field
accuracy and the character and word error rates of the descriptions.

Examples:
  ledgerscan eval scan.png --truth scan.csv
  ledgerscan eval scan.png --truth scan.csv --repeat 10
  ledgerscan eval scan.png --truth scan.csv --min-f1 0.95 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config()
			truthPath, _ := cmd.Flags().GetString("truth")
			repeat, _ := cmd.Flags().GetInt("repeat")
			minF1, _ := cmd.Flags().GetFloat64("min-f1")
			asJSON, _ := cmd.Flags().GetBool("json")
			if truthPath == "" {
				return errors.New("--truth is required")
			}
			if repeat < 1 {
				return fmt.Errorf("invalid --repeat: %d (must be at least 1)", repeat)
			}

			pcfg := cfg.ToPipelineConfig()
			truth, err := eval.LoadGroundTruth(truthPath, rules.New(pcfg.Rules))
			if err != nil {
				return err
			}
			p, err := pipeline.New(pcfg)
			if err != nil {
				return fmt.Errorf("failed to build pipeline: %w", err)
			}
			defer func() { _ = p.Close() }()

			var doc *ledger.Document
			timing := eval.Measure(cmd.Context(), args[0], repeat, func(ctx context.Context) error {
				d, err := p.Run(ctx, ingest.FromPath(args[0]))
				if err != nil {
					return err
				}
				doc = d
				return nil
			})
			if timing.Err != nil {
				return timing.Err
			}

			res := evalResult{
				Document:   doc.ID,
				Report:     eval.Compare(truth, doc.Transactions),
				Confidence: doc.Confidence.DocumentConfidence,
			}
			if repeat > 1 {
				res.Timing = &timing
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				_, _ = fmt.Fprint(out, res.Report.String())
				_, _ = fmt.Fprintf(out, "Document confidence: %.3f (%s)\n", res.Confidence, doc.Confidence.Recommendation)
				if res.Timing != nil {
					_, _ = fmt.Fprintln(out, res.Timing.String())
				}
			}

			if minF1 > 0 && res.Report.F1 < minF1 {
				return fmt.Errorf("F1 %.3f is below the required %.3f", res.Report.F1, minF1)
			}
			return nil
		},
	}
	cmd.Flags().StringP("truth", "t", "", "ground-truth CSV")
	cmd.Flags().Int("repeat", 1, "run the extraction this many times and report timings")
	cmd.Flags().Float64("min-f1", 0, "fail when the row F1 score is below this value")
	cmd.Flags().Bool("json", false, "print JSON instead of a report")
	return cmd
}
