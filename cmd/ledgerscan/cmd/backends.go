package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/ledgerscan/internal/models"
	"github.com/MeKo-Tech/ledgerscan/internal/onnx"
	"github.com/MeKo-Tech/ledgerscan/internal/orchestrator"
	"github.com/MeKo-Tech/ledgerscan/internal/pipeline"
)

// backendsReport is the JSON form of the backends command.
type backendsReport struct {
	Backends []orchestrator.BackendInfo `json:"backends"`
	Models   []models.ModelInfo         `json:"models"`
	// ONNXRuntime is the shared library loaded by an ONNX backend, if any.
	ONNXRuntime string `json:"onnxruntime_library,omitempty"`
}

func newBackendsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backends",
		Short: "List detector and recognizer backends and model files",
		Long: `List the backends compiled into this build and the model files they use.

With --load every backend is constructed once, so missing models or libraries
show up as errors.

Examples:
  ledgerscan backends
  ledgerscan backends --load --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config()
			p, err := pipeline.New(cfg.ToPipelineConfig())
			if err != nil {
				return fmt.Errorf("failed to build pipeline: %w", err)
			}
			defer func() { _ = p.Close() }()

			o := p.Orchestrator()
			if load, _ := cmd.Flags().GetBool("load"); load {
				for _, name := range o.DetectorNames() {
					_, _ = o.Detector(name)
				}
				for _, name := range o.RecognizerNames() {
					_, _ = o.Recognizer(name)
				}
			}
			report := backendsReport{
				Backends:    o.Backends(),
				Models:      models.Catalog(cfg.ModelsDir),
				ONNXRuntime: onnx.LibraryPath(),
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "KIND\tNAME\tLOADED\tVERSION\tERROR")
			for _, b := range report.Backends {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", b.Kind, b.Name, b.Loaded, b.Version, b.Error)
			}
			_, _ = fmt.Fprintln(tw)
			_, _ = fmt.Fprintln(tw, "BACKEND\tMODEL\tPRESENT\tPATH")
			for _, m := range report.Models {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", m.Backend, m.Filename, m.Present, m.Path)
			}
			if report.ONNXRuntime != "" {
				_, _ = fmt.Fprintf(tw, "\nONNX Runtime: %s\n", report.ONNXRuntime)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("load", false, "construct every backend to report load errors")
	cmd.Flags().Bool("json", false, "print JSON instead of a table")
	return cmd
}
