package rules

import (
	"strings"
	"unicode"

	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
)

// categoryRules are checked in order; the first matching keyword wins.
// Keywords of four letters or fewer match whole words only.
var categoryRules = []struct {
	category ledger.Category
	keywords []string
}{
	{ledger.CategoryIncome, []string{"salary", "payroll", "wages", "dividend", "interest credit"}},
	{ledger.CategoryATM, []string{"atm withdrawal"}},
	{ledger.CategoryTransfer, []string{"transfer", "trf", "nip"}},
	{ledger.CategoryATM, []string{"atm", "cash withdrawal"}},
	{ledger.CategoryFee, []string{"fee", "charge", "commission", "sms alert", "vat", "stamp duty"}},
	{ledger.CategoryPayment, []string{"pos", "purchase", "payment", "bill"}},
	{ledger.CategoryOpeningBalance, []string{"opening balance", "balance b/f", "brought forward"}},
}

// Categorize classifies a description by keyword.
func Categorize(description string) ledger.Category {
	lower := strings.ToLower(description)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if matchKeyword(lower, words, kw) {
				return rule.category
			}
		}
	}
	return ledger.CategoryUncategorized
}

func matchKeyword(lower string, words []string, kw string) bool {
	if len(kw) > 4 {
		return strings.Contains(lower, kw)
	}
	for _, w := range words {
		if w == kw {
			return true
		}
	}
	return false
}
