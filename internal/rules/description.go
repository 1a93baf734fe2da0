package rules

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CleanDescription collapses whitespace, drops characters other than
// letters, digits, spaces and -.,/& and truncates to the configured length.
func (p *Parser) CleanDescription(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case unicode.IsSpace(r):
			return ' '
		case strings.ContainsRune("-.,/&", r):
			return r
		}
		return -1
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	if p.cfg.UppercaseDescription {
		s = cases.Upper(language.Und).String(s)
	}
	if n := p.cfg.MaxDescription; n > 0 {
		if rs := []rune(s); len(rs) > n {
			s = strings.TrimSpace(string(rs[:n]))
		}
	}
	return s
}
