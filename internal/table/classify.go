package table

import (
	"regexp"
	"strings"
	"unicode"
)

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}$`),
	regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}$`),
	regexp.MustCompile(`^\d{1,2}[ -][A-Za-z]{3,9}[ -]\d{2,4}$`),
}

// PatternClassifier recognises date and amount shapes without parsing them.
type PatternClassifier struct{}

// IsDate reports a date-shaped string.
func (PatternClassifier) IsDate(s string) bool {
	s = strings.TrimSpace(s)
	for _, re := range datePatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// IsAmount reports a number with optional currency, sign, grouping and
// DR/CR marker.
func (PatternClassifier) IsAmount(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(strings.TrimSuffix(s, "DR"), "CR")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "DR"), "CR")
	digits, dots := 0, 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '.':
			dots++
		case r == ',' || r == '(' || r == ')' || r == '-' || r == '+' || unicode.IsSpace(r) || unicode.Is(unicode.Sc, r):
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}
