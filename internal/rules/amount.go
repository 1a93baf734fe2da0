package rules

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// isoCurrencies are stripped from amounts alongside the configured code.
var isoCurrencies = []string{"NGN", "USD", "EUR", "GBP", "GHS", "KES", "ZAR", "INR", "CAD", "AUD"}

// RepairDigits fixes letters OCR commonly reads for digits: O next to a
// digit becomes 0, S and I or l right after a digit become 5 and 1. Passes
// repeat so runs like "1OO" repair fully.
func RepairDigits(s string) string {
	rs := []rune(s)
	for changed := true; changed; {
		changed = false
		for i, r := range rs {
			prevDigit := i > 0 && unicode.IsDigit(rs[i-1])
			nextDigit := i+1 < len(rs) && unicode.IsDigit(rs[i+1])
			var fix rune
			switch {
			case (r == 'O' || r == 'o') && (prevDigit || nextDigit):
				fix = '0'
			case r == 'S' && prevDigit:
				fix = '5'
			case (r == 'I' || r == 'l') && prevDigit:
				fix = '1'
			default:
				continue
			}
			rs[i], changed = fix, true
		}
	}
	return string(rs)
}

// ParseAmount reads a money amount. Parentheses, a leading or trailing
// minus, or a DR marker make it negative; CR is positive.
func (p *Parser) ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errors.New("empty amount")
	}
	raw := s
	s = strings.ToUpper(RepairDigits(s))

	if p.cfg.CurrencySymbol != "" {
		s = strings.ReplaceAll(s, strings.ToUpper(p.cfg.CurrencySymbol), "")
	}
	for _, code := range append([]string{strings.ToUpper(p.cfg.Currency)}, isoCurrencies...) {
		if code != "" {
			s = strings.ReplaceAll(s, code, "")
		}
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.Is(unicode.Sc, r) {
			return -1
		}
		return r
	}, s)

	negative := false
	for _, marker := range []string{"DR", "CR"} {
		if t, ok := strings.CutSuffix(s, marker); ok {
			s, negative = t, negative || marker == "DR"
		} else if t, ok := strings.CutPrefix(s, marker); ok {
			s, negative = t, negative || marker == "DR"
		}
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s, negative = s[1:len(s)-1], true
	}
	if t, ok := strings.CutPrefix(s, "-"); ok {
		s, negative = t, true
	} else if t, ok := strings.CutSuffix(s, "-"); ok {
		s, negative = t, true
	}
	s = strings.TrimPrefix(s, "+")
	s = strings.ReplaceAll(s, ",", "")

	if strings.Count(s, ".") > 1 {
		return decimal.Zero, fmt.Errorf("amount %q has more than one decimal point", raw)
	}
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
		default:
			return decimal.Zero, fmt.Errorf("amount %q has unexpected character %q", raw, r)
		}
	}
	if digits == 0 {
		return decimal.Zero, fmt.Errorf("amount %q has no digits", raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// FormatAmount renders d with two decimals and comma grouping; negative
// values are wrapped in parentheses.
func FormatAmount(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if d.Round(2).IsNegative() {
		return "(" + out + ")"
	}
	return out
}
