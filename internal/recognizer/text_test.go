package recognizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	opts := DefaultCleanOptions()
	tests := []struct {
		name, in, want string
	}{
		{"empty", "", ""},
		{"trim and collapse", "  Salary \t Credit  ", "Salary Credit"},
		{"composes accents", "Cafe\u0301", "Caf\u00e9"},
		{"drops zero width", "AT\u200bM", "ATM"},
		{"folds quotes and dashes", "\u201cRent\u201d \u2013 May", "\"Rent\" - May"},
		{"non-breaking space", "10\u00a0000", "10 000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in, opts))
		})
	}
}

func TestCleanTextNFKCAndKeepSpacing(t *testing.T) {
	opts := CleanOptions{NormalizeForm: "NFKC"}
	assert.Equal(t, "fi  1", CleanText("\ufb01  1", opts))
	assert.Equal(t, "a  b", CleanText(" a  b ", CleanOptions{NormalizeForm: "none"}))
}
