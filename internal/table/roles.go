package table

import (
	"fmt"
	"strings"
	"unicode"
)

// headerKeywords lists synonyms per role in match order. Keywords of three
// letters or fewer must match a whole word.
var headerKeywords = []struct {
	role     Role
	keywords []string
}{
	{RoleDate, []string{"value date", "txn date", "posting", "date"}},
	{RoleDescription, []string{"description", "narration", "details", "particulars", "remarks"}},
	{RoleBalance, []string{"running balance", "balance", "bal"}},
	{RoleDebit, []string{"debit", "withdrawal", "paid out", "dr"}},
	{RoleCredit, []string{"credit", "deposit", "paid in", "lodgement", "cr"}},
	{RoleAmount, []string{"amount", "amt"}},
}

// HeaderRole returns the role named by a header cell, or RoleUnknown.
func HeaderRole(text string) Role {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return RoleUnknown
	}
	words := strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, entry := range headerKeywords {
		for _, kw := range entry.keywords {
			if len(kw) <= 3 {
				for _, w := range words {
					if w == kw {
						return entry.role
					}
				}
				continue
			}
			if strings.Contains(lower, kw) {
				return entry.role
			}
		}
	}
	return RoleUnknown
}

// findHeader returns the group index of the header row: of the rows above
// the first one holding a date, the one naming the most distinct roles.
// Cells carrying an amount, such as "Total Debit: 2,000.00", are summary
// lines and never count. -1 when no row names MinHeaderCells roles.
func (t *Reconstructor) findHeader(frags []Fragment, groups [][]int) int {
	best, bestRoles := -1, 0
	for gi, group := range groups {
		roles := make(map[Role]bool)
		for _, fi := range group {
			text := frags[fi].Text
			if t.classifier.IsDate(text) {
				return best
			}
			if t.hasAmount(text) {
				continue
			}
			if role := HeaderRole(text); role != RoleUnknown {
				roles[role] = true
			}
		}
		if len(roles) >= t.cfg.MinHeaderCells && len(roles) > bestRoles {
			best, bestRoles = gi, len(roles)
		}
	}
	return best
}

// hasAmount reports whether any whitespace-separated token of text is an amount.
func (t *Reconstructor) hasAmount(text string) bool {
	for _, tok := range strings.Fields(text) {
		if t.classifier.IsAmount(tok) {
			return true
		}
	}
	return false
}

type columnStats struct {
	cells, dates, amounts, runes int
}

func (s columnStats) frac(n int) float64 {
	if s.cells == 0 {
		return 0
	}
	return float64(n) / float64(s.cells)
}

// assignRoles gives each column a role: header keywords first, then content
// for the roles still missing. Each role is used at most once.
func (t *Reconstructor) assignRoles(frags []Fragment, groups [][]int, columns []int, headerRow int) ([]Role, []string) {
	n := columnCount(columns)
	roles := make([]Role, n)
	for i := range roles {
		roles[i] = RoleUnknown
	}
	used := make(map[Role]bool)
	if headerRow >= 0 {
		for _, fi := range groups[headerRow] {
			r, c := HeaderRole(frags[fi].Text), columns[fi]
			if r != RoleUnknown && !used[r] && roles[c] == RoleUnknown {
				roles[c], used[r] = r, true
			}
		}
	}

	stats := make([]columnStats, n)
	for gi, group := range groups {
		if gi == headerRow {
			continue
		}
		for _, fi := range group {
			text := strings.TrimSpace(frags[fi].Text)
			if text == "" {
				continue
			}
			s := &stats[columns[fi]]
			s.cells++
			s.runes += len([]rune(text))
			switch {
			case t.classifier.IsDate(text):
				s.dates++
			case t.classifier.IsAmount(text):
				s.amounts++
			}
		}
	}

	if !used[RoleDate] {
		best, bestFrac := -1, 0.0
		for c := range n {
			f := stats[c].frac(stats[c].dates)
			if roles[c] == RoleUnknown && f >= 0.5 && f > bestFrac {
				best, bestFrac = c, f
			}
		}
		if best >= 0 {
			roles[best], used[RoleDate] = RoleDate, true
		}
	}

	var numeric []int
	for c := range n {
		if roles[c] == RoleUnknown && stats[c].cells > 0 && stats[c].frac(stats[c].amounts) >= 0.5 {
			numeric = append(numeric, c)
		}
	}
	labelled := used[RoleDebit] || used[RoleCredit] || used[RoleBalance] || used[RoleAmount]
	for i, c := range numeric {
		if r := numericRole(i, len(numeric), labelled, used); r != RoleUnknown {
			roles[c], used[r] = r, true
		}
	}

	if !used[RoleDescription] {
		best, bestAvg := -1, 0.0
		for c := range n {
			if roles[c] != RoleUnknown || stats[c].cells == 0 {
				continue
			}
			if avg := float64(stats[c].runes) / float64(stats[c].cells); avg > bestAvg {
				best, bestAvg = c, avg
			}
		}
		if best >= 0 {
			roles[best], used[RoleDescription] = RoleDescription, true
		}
	}

	var warnings []string
	if !used[RoleDate] {
		warnings = append(warnings, "ambiguous column mapping: no date column")
	}
	if !used[RoleDebit] && !used[RoleCredit] && !used[RoleAmount] && !used[RoleBalance] {
		warnings = append(warnings, "ambiguous column mapping: no amount column")
	}
	if !used[RoleDescription] {
		warnings = append(warnings, "ambiguous column mapping: no description column")
	}
	for i, w := range warnings {
		warnings[i] = fmt.Sprintf("%s (%d columns)", w, n)
	}
	return roles, warnings
}

// numericRole maps the i-th of n unlabelled numeric columns to a role. When
// the header labelled some amount columns the rest take the free roles in
// debit, credit, balance order. Otherwise one column is a signed amount, two
// are amount and balance, three or more are debit, credit and balance.
func numericRole(i, n int, labelled bool, used map[Role]bool) Role {
	if labelled {
		for _, r := range []Role{RoleDebit, RoleCredit, RoleBalance} {
			if !used[r] {
				return r
			}
		}
		return RoleUnknown
	}
	var order []Role
	switch n {
	case 1:
		order = []Role{RoleAmount}
	case 2:
		order = []Role{RoleAmount, RoleBalance}
	default:
		order = []Role{RoleDebit, RoleCredit, RoleBalance}
	}
	if i < len(order) {
		return order[i]
	}
	return RoleUnknown
}
