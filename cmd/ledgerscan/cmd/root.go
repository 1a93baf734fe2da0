package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/ledgerscan/internal/config"
	"github.com/MeKo-Tech/ledgerscan/internal/models"
)

// app is the state shared by one command tree.
type app struct {
	v       *viper.Viper
	loader  *config.Loader
	cfg     *config.Config
	cfgFile string
}

// flagBinding ties a flag to a configuration key.
type flagBinding struct {
	key  string
	flag string
}

func (a *app) bind(cmd *cobra.Command, bindings ...flagBinding) {
	for _, b := range bindings {
		f := cmd.Flags().Lookup(b.flag)
		if f == nil {
			f = cmd.PersistentFlags().Lookup(b.flag)
		}
		if err := a.v.BindPFlag(b.key, f); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", b.flag, err))
		}
	}
}

// config returns the configuration loaded in PersistentPreRunE.
func (a *app) config() *config.Config {
	if a.cfg == nil {
		cfg := config.DefaultConfig()
		a.cfg = &cfg
	}
	return a.cfg
}

// NewRootCommand builds the ledgerscan command tree on a private viper
// instance. Flags override environment variables, which override the
// config file, which overrides the preset defaults.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	a.loader = config.NewLoaderWithViper(a.v)

	root := &cobra.Command{
		Use:   "ledgerscan",
		Short: "Extract bank statement transactions from scans and PDFs",
		Long: `ledgerscan turns scanned or photographed bank statements into a validated,
scored list of transactions.

Pages are cleaned, text regions detected and recognised through a chain of
backends, rows rebuilt into a table, parsed into transactions, checked against
the running balance and scored for review.

Examples:
  ledgerscan extract statement.pdf
  ledgerscan extract scan.png --format csv --output january.csv
  ledgerscan eval scan.png --truth january.csv
  ledgerscan serve --port 8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loader.LoadWithFile(a.cfgFile)
			if err != nil {
				return fmt.Errorf("error loading configuration: %w", err)
			}
			a.cfg = cfg
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ledgerscan.yaml in ., $HOME/.config/ledgerscan, /etc/ledgerscan)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "json", "log format (json, text)")
	pf.String("models-dir", models.DefaultModelsDir,
		"directory containing ONNX models (can also be set via "+models.EnvModelsDir+")")
	pf.String("preset", config.PresetDefault, "configuration preset (default, fast, accurate, tesseract)")
	a.bind(root,
		flagBinding{"verbose", "verbose"},
		flagBinding{"log_level", "log-level"},
		flagBinding{"log_format", "log-format"},
		flagBinding{"models_dir", "models-dir"},
		flagBinding{"preset", "preset"},
	)

	root.AddCommand(
		newExtractCommand(a),
		newServeCommand(a),
		newBackendsCommand(a),
		newEvalCommand(a),
		newConfigCommand(a),
		newVersionCommand(),
	)
	return root
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		os.Exit(1)
	}
}

// newLogger writes structured logs to w; stdout is reserved for results.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	var level slog.Level
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
