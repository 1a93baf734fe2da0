package validate

import (
	"fmt"
	"strings"

	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/shopspring/decimal"
)

// Strictness levels. They change thresholds, never the set of checks.
const (
	StrictnessStrict  = "strict"
	StrictnessMedium  = "medium"
	StrictnessLenient = "lenient"
)

// DefaultMinDate is the earliest plausible statement date.
const DefaultMinDate = "2000-01-01"

// Config holds validation thresholds. Zero values are filled from the
// strictness preset.
type Config struct {
	Strictness string `mapstructure:"strictness" yaml:"strictness" json:"strictness"`
	// BalanceTolerance is the absolute slack of the balance equation.
	BalanceTolerance float64 `mapstructure:"balance_tolerance" yaml:"balance_tolerance" json:"balance_tolerance"`
	// MinAmount and MaxAmount bound nonzero debits and credits.
	MinAmount float64 `mapstructure:"min_amount" yaml:"min_amount" json:"min_amount"`
	MaxAmount float64 `mapstructure:"max_amount" yaml:"max_amount" json:"max_amount"`
	// DuplicateSimilarity is the description similarity at which two
	// same-day, same-amount transactions are reported as duplicates.
	DuplicateSimilarity float64 `mapstructure:"duplicate_similarity" yaml:"duplicate_similarity" json:"duplicate_similarity"`
	// MinDate and MaxDate are YYYY-MM-DD; an empty MaxDate leaves the
	// range open.
	MinDate string `mapstructure:"min_date" yaml:"min_date" json:"min_date"`
	MaxDate string `mapstructure:"max_date" yaml:"max_date" json:"max_date"`
}

// DefaultConfig is the medium preset.
func DefaultConfig() Config {
	return ConfigFor(StrictnessMedium)
}

// ConfigFor returns the thresholds of a strictness level; unknown levels
// fall back to medium.
func ConfigFor(strictness string) Config {
	cfg := Config{Strictness: StrictnessMedium, BalanceTolerance: 0.01, MaxAmount: 1e9, DuplicateSimilarity: 0.9, MinDate: DefaultMinDate}
	switch strings.ToLower(strictness) {
	case StrictnessStrict:
		cfg.Strictness, cfg.MaxAmount, cfg.DuplicateSimilarity = StrictnessStrict, 1e8, 0.85
	case StrictnessLenient:
		cfg.Strictness, cfg.BalanceTolerance, cfg.MaxAmount, cfg.DuplicateSimilarity = StrictnessLenient, 1.0, 1e12, 0.95
	}
	return cfg
}

// Validate rejects unknown strictness levels and malformed bounds.
func (c Config) Validate() error {
	switch strings.ToLower(c.Strictness) {
	case "", StrictnessStrict, StrictnessMedium, StrictnessLenient:
	default:
		return fmt.Errorf("unknown strictness %q", c.Strictness)
	}
	if c.BalanceTolerance < 0 {
		return fmt.Errorf("balance tolerance must be >= 0, got %v", c.BalanceTolerance)
	}
	if c.MaxAmount > 0 && c.MinAmount >= c.MaxAmount {
		return fmt.Errorf("min amount %v must be below max amount %v", c.MinAmount, c.MaxAmount)
	}
	if c.DuplicateSimilarity < 0 || c.DuplicateSimilarity > 1 {
		return fmt.Errorf("duplicate similarity must be within [0,1], got %v", c.DuplicateSimilarity)
	}
	for _, d := range []string{c.MinDate, c.MaxDate} {
		if d == "" {
			continue
		}
		if _, err := ledger.ParseISODate(d); err != nil {
			return err
		}
	}
	return nil
}

// withDefaults fills zero thresholds from the strictness preset.
func (c Config) withDefaults() Config {
	preset := ConfigFor(c.Strictness)
	if c.Strictness == "" {
		c.Strictness = preset.Strictness
	}
	if c.BalanceTolerance == 0 {
		c.BalanceTolerance = preset.BalanceTolerance
	}
	if c.MaxAmount == 0 {
		c.MaxAmount = preset.MaxAmount
	}
	if c.DuplicateSimilarity == 0 {
		c.DuplicateSimilarity = preset.DuplicateSimilarity
	}
	if c.MinDate == "" {
		c.MinDate = preset.MinDate
	}
	return c
}

// Tolerance returns the balance tolerance as a decimal.
func (c Config) Tolerance() decimal.Decimal {
	return decimal.NewFromFloat(c.withDefaults().BalanceTolerance)
}
