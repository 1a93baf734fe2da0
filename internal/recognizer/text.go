package recognizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CleanOptions controls post-processing of recognized text.
type CleanOptions struct {
	// NormalizeForm is "NFC" (default), "NFKC" or "none".
	NormalizeForm      string `mapstructure:"normalize_form" yaml:"normalize_form" json:"normalize_form"`
	CollapseWhitespace bool   `mapstructure:"collapse_whitespace" yaml:"collapse_whitespace" json:"collapse_whitespace"`
	// ASCIIPunctuation folds typographic quotes, dashes and odd spaces.
	ASCIIPunctuation bool `mapstructure:"ascii_punctuation" yaml:"ascii_punctuation" json:"ascii_punctuation"`
}

// DefaultCleanOptions normalises to NFC and collapses whitespace.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{NormalizeForm: "NFC", CollapseWhitespace: true, ASCIIPunctuation: true}
}

var punctuation = strings.NewReplacer(
	"\u2018", "'", "\u2019", "'",
	"\u201C", "\"", "\u201D", "\"",
	"\u2013", "-", "\u2014", "-", "\u2212", "-",
	"\u00A0", " ", "\u2007", " ", "\u202F", " ",
)

// dropInvisible removes control and zero-width characters but keeps tabs and
// newlines for whitespace handling.
var dropInvisible = runes.Remove(runes.Predicate(func(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return false
	case '\u200B', '\u200C', '\u200D', '\uFEFF':
		return true
	}
	return unicode.IsControl(r)
}))

// CleanText applies opts to s. The result is always trimmed.
func CleanText(s string, opts CleanOptions) string {
	if s == "" {
		return s
	}
	chain := []transform.Transformer{dropInvisible}
	switch strings.ToUpper(opts.NormalizeForm) {
	case "", "NFC":
		chain = append(chain, norm.NFC)
	case "NFKC":
		chain = append(chain, norm.NFKC)
	}
	if out, _, err := transform.String(transform.Chain(chain...), s); err == nil {
		s = out
	}
	if opts.ASCIIPunctuation {
		s = punctuation.Replace(s)
	}
	if opts.CollapseWhitespace {
		s = strings.Join(strings.Fields(s), " ")
	}
	return strings.TrimSpace(s)
}
