package table

import (
	"testing"

	"github.com/MeKo-Tech/ledgerscan/internal/testutil"
	"github.com/MeKo-Tech/ledgerscan/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frag(text string, x, y float64, order int) Fragment {
	return Fragment{
		Text:       text,
		Box:        utils.NewBox(x, y, x+float64(len(text))*7, y+13),
		Confidence: 1,
		Order:      order,
	}
}

func statementFragments(header []string) []Fragment {
	_, cells := testutil.RenderStatement(header, testutil.SampleRows(), testutil.DefaultRenderOptions())
	frags := make([]Fragment, len(cells))
	for i, c := range cells {
		frags[i] = Fragment{Text: c.Text, Box: utils.BoxFromRect(c.Rect), Confidence: 1, Order: i}
	}
	return frags
}

func TestReconstructWithHeader(t *testing.T) {
	res := New(DefaultConfig(), nil).Reconstruct(statementFragments(testutil.StatementHeader))

	assert.True(t, res.Header)
	assert.Equal(t, []Role{RoleDate, RoleDescription, RoleDebit, RoleCredit, RoleBalance}, res.Roles)
	require.Len(t, res.Rows, 4)
	assert.True(t, res.Rows[0].Header)

	salary := res.Rows[2]
	assert.Equal(t, "02/01/2024", salary.Text(RoleDate))
	assert.Equal(t, "Salary Credit", salary.Text(RoleDescription))
	assert.Empty(t, salary.Text(RoleDebit))
	assert.Equal(t, "10000.00", salary.Text(RoleCredit))
	assert.Equal(t, "60000.00", salary.Text(RoleBalance))
	assert.Equal(t, 2, salary.Index)
	assert.InDelta(t, 1.0, salary.Confidence(), 1e-12)
	assert.Empty(t, res.Warnings)
}

func TestReconstructWithoutHeaderUsesContent(t *testing.T) {
	res := New(DefaultConfig(), nil).Reconstruct(statementFragments(nil))

	assert.False(t, res.Header)
	assert.Equal(t, []Role{RoleDate, RoleDescription, RoleDebit, RoleCredit, RoleBalance}, res.Roles)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "2000.00", res.Rows[2].Text(RoleDebit))
	assert.Equal(t, "ATM Withdrawal", res.Rows[2].Text(RoleDescription))
}

func TestContinuationMergesIntoPreviousRow(t *testing.T) {
	frags := []Fragment{
		frag("01/01/2024", 20, 20, 0), frag("POS Purchase", 120, 20, 1), frag("250.00", 300, 20, 2),
		frag("SHOPRITE LEKKI", 120, 44, 3),
		frag("02/01/2024", 20, 68, 4), frag("Transfer", 120, 68, 5), frag("100.00", 300, 68, 6),
	}
	res := New(DefaultConfig(), nil).Reconstruct(frags)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "POS Purchase SHOPRITE LEKKI", res.Rows[0].Text(RoleDescription))
	assert.Equal(t, 1, res.Rows[0].Continuations)
	assert.Equal(t, []int{0, 1, 2, 3}, res.Rows[0].Orders)
	assert.Equal(t, 1, res.Rows[1].Index)
	assert.Equal(t, RoleAmount, res.Roles[2])
}

func TestContinuationBeforeDataIsDropped(t *testing.T) {
	frags := []Fragment{
		frag("STATEMENT OF ACCOUNT FOR JANUARY 2024 CUSTOMER", 20, 0, 0),
		frag("01/01/2024", 20, 30, 1), frag("Fee", 120, 30, 2), frag("10.00", 300, 30, 3),
	}
	res := New(DefaultConfig(), nil).Reconstruct(frags)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 1, res.Dropped)
	require.NotEmpty(t, res.Warnings)
	// the wide title must not bridge the columns it spans
	assert.Len(t, res.Roles, 3)
}

func TestSummaryLineAboveHeaderIsNotHeader(t *testing.T) {
	frags := []Fragment{
		frag("Total Debit: 2,000.00", 20, 0, 0), frag("Total Credit: 10,000.00", 300, 0, 1),
		frag("Date", 20, 30, 2), frag("Description", 120, 30, 3), frag("Debit", 300, 30, 4),
		frag("Credit", 400, 30, 5), frag("Balance", 500, 30, 6),
		frag("01/01/2024", 20, 60, 7), frag("Opening Fee", 120, 60, 8), frag("2,000.00", 300, 60, 9),
		frag("58,000.00", 500, 60, 10),
		frag("02/01/2024", 20, 90, 11), frag("Salary", 120, 90, 12), frag("10,000.00", 400, 90, 13),
		frag("68,000.00", 500, 90, 14),
	}
	res := New(DefaultConfig(), nil).Reconstruct(frags)

	assert.True(t, res.Header)
	assert.Equal(t, []Role{RoleDate, RoleDescription, RoleDebit, RoleCredit, RoleBalance}, res.Roles)
	require.Len(t, res.Rows, 3)
	assert.True(t, res.Rows[0].Header)
	assert.Equal(t, "Date", res.Rows[0].Text(RoleDate))
	assert.Equal(t, "2,000.00", res.Rows[1].Text(RoleDebit))
	assert.Equal(t, "58,000.00", res.Rows[1].Text(RoleBalance))
	assert.Equal(t, "10,000.00", res.Rows[2].Text(RoleCredit))
	assert.Empty(t, res.Rows[2].Text(RoleDebit))
	assert.Equal(t, 1, res.Dropped)
}

func TestHeaderPrefersRowNamingMostRoles(t *testing.T) {
	frags := []Fragment{
		frag("Account Balance", 20, 0, 0), frag("Date Printed", 300, 0, 1),
		frag("Date", 20, 30, 2), frag("Details", 120, 30, 3), frag("Amount", 300, 30, 4), frag("Balance", 400, 30, 5),
		frag("01/01/2024", 20, 60, 6), frag("Airtime", 120, 60, 7), frag("-500.00", 300, 60, 8), frag("9,500.00", 400, 60, 9),
	}
	res := New(DefaultConfig(), nil).Reconstruct(frags)

	assert.True(t, res.Header)
	assert.Equal(t, []Role{RoleDate, RoleDescription, RoleAmount, RoleBalance}, res.Roles)
	require.Len(t, res.Rows, 2)
	assert.True(t, res.Rows[0].Header)
	assert.Equal(t, "-500.00", res.Rows[1].Text(RoleAmount))
	assert.Equal(t, 1, res.Dropped)
}

func TestHeaderRole(t *testing.T) {
	tests := map[string]Role{
		"Date":            RoleDate,
		"Value Date":      RoleDate,
		"Posting":         RoleDate,
		"Narration":       RoleDescription,
		"PARTICULARS":     RoleDescription,
		"Description":     RoleDescription,
		"Withdrawal":      RoleDebit,
		"Dr":              RoleDebit,
		"Paid Out":        RoleDebit,
		"Deposit":         RoleCredit,
		"CR":              RoleCredit,
		"Lodgement":       RoleCredit,
		"Running Balance": RoleBalance,
		"Bal":             RoleBalance,
		"Amount":          RoleAmount,
		"Reference":       RoleUnknown,
		"":                RoleUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, HeaderRole(in), in)
	}
}

func TestDuplicateHeaderRoleKeepsFirstColumn(t *testing.T) {
	frags := []Fragment{
		frag("Txn Date", 20, 0, 0), frag("Value Date", 120, 0, 1), frag("Details", 220, 0, 2), frag("Amount", 400, 0, 3),
		frag("01/01/2024", 20, 24, 4), frag("02/01/2024", 120, 24, 5), frag("Airtime", 220, 24, 6), frag("500.00", 400, 24, 7),
	}
	res := New(DefaultConfig(), nil).Reconstruct(frags)
	assert.Equal(t, []Role{RoleDate, RoleUnknown, RoleDescription, RoleAmount}, res.Roles)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "01/01/2024", res.Rows[1].Text(RoleDate))
	assert.Equal(t, "02/01/2024", res.Rows[1].Text(RoleUnknown))
}

func TestTwoNumericColumnsAreAmountAndBalance(t *testing.T) {
	frags := []Fragment{
		frag("01/01/2024", 20, 0, 0), frag("Salary", 120, 0, 1), frag("500.00", 300, 0, 2), frag("1500.00", 400, 0, 3),
		frag("02/01/2024", 20, 24, 4), frag("Rent", 120, 24, 5), frag("-200.00", 300, 24, 6), frag("1300.00", 400, 24, 7),
	}
	res := New(DefaultConfig(), nil).Reconstruct(frags)
	assert.Equal(t, []Role{RoleDate, RoleDescription, RoleAmount, RoleBalance}, res.Roles)
}

func TestReconstructEmpty(t *testing.T) {
	res := New(DefaultConfig(), nil).Reconstruct(nil)
	assert.Empty(t, res.Rows)
}

func TestPatternClassifier(t *testing.T) {
	c := PatternClassifier{}
	for _, s := range []string{"01/01/2024", "1-1-24", "2024-01-31", "01 Jan 2024", "01-Jan-2024"} {
		assert.True(t, c.IsDate(s), s)
	}
	assert.False(t, c.IsDate("Salary"))
	for _, s := range []string{"1,234.56", "(500.00)", "1,234.56 Dr", "1234.56-", "₦50,000"} {
		assert.True(t, c.IsAmount(s), s)
	}
	for _, s := range []string{"Salary", "1.2.3", "", "01/01/2024"} {
		assert.False(t, c.IsAmount(s), s)
	}
}
