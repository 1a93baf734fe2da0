package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
)

type dateFormat struct {
	name string
	re   *regexp.Regexp
	// field order of the capture groups: d, m, y
	order string
}

// builtinDateFormats are tried in order; the first that matches decides.
var builtinDateFormats = []dateFormat{
	{"DD/MM/YYYY", regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`), "dmy"},
	{"DD-MM-YYYY", regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`), "dmy"},
	{"DD.MM.YYYY", regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`), "dmy"},
	{"YYYY-MM-DD", regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`), "ymd"},
	{"DD MMM YYYY", regexp.MustCompile(`^(\d{1,2})[ -]([A-Za-z]{3,9})\.?[ -](\d{4}|\d{2})$`), "dMy"},
	{"DD/MM/YY", regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{2})$`), "dmy"},
}

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// monthByName accepts a three-letter abbreviation or any longer prefix of
// the full English name ("Sept").
func monthByName(s string) (time.Month, bool) {
	s = strings.ToLower(s)
	if len(s) < 3 {
		return 0, false
	}
	for i, name := range monthNames {
		if strings.HasPrefix(name, s) {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

// expandYear maps two-digit years below 50 to 20YY and the rest to 19YY.
func expandYear(y int, digits int) int {
	if digits != 2 {
		return y
	}
	if y < 50 {
		return 2000 + y
	}
	return 1900 + y
}

// ParseDate reads s with the built-in formats, then the configured layouts.
// Impossible dates such as 32/01/2024 fail rather than roll over.
func (p *Parser) ParseDate(s string) (ledger.Date, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ledger.Date{}, fmt.Errorf("empty date")
	}
	for _, f := range builtinDateFormats {
		m := f.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		var day, year, yearDigits int
		var month time.Month
		for i, field := range f.order {
			v := m[i+1]
			switch field {
			case 'd':
				day, _ = strconv.Atoi(v)
			case 'm':
				n, _ := strconv.Atoi(v)
				month = time.Month(n)
			case 'M':
				mm, ok := monthByName(v)
				if !ok {
					return ledger.Date{}, fmt.Errorf("unknown month %q", v)
				}
				month = mm
			case 'y':
				year, _ = strconv.Atoi(v)
				yearDigits = len(v)
			}
		}
		d, ok := ledger.NewDate(expandYear(year, yearDigits), month, day)
		if !ok {
			return ledger.Date{}, fmt.Errorf("invalid %s date %q", f.name, s)
		}
		return d, nil
	}
	for _, layout := range p.cfg.DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return ledger.DateOf(t), nil
		}
	}
	return ledger.Date{}, fmt.Errorf("unrecognised date format %q", s)
}
