package eval

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
)

// Field names used in Pair.Mismatched.
const (
	FieldDate        = "date"
	FieldDescription = "description"
	FieldDebit       = "debit"
	FieldCredit      = "credit"
	FieldBalance     = "balance"
)

// minPairScore is the share of fields two rows must agree on before they
// are aligned.
const minPairScore = 0.4

// FieldAccuracy is the share of expected rows whose field was extracted
// correctly. Unmatched expected rows count as wrong.
type FieldAccuracy struct {
	Date        float64 `json:"date"`
	Description float64 `json:"description"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
	Balance     float64 `json:"balance"`
}

// Mean averages the five field accuracies.
func (f FieldAccuracy) Mean() float64 {
	return (f.Date + f.Description + f.Debit + f.Credit + f.Balance) / 5
}

// Pair aligns an expected row with an extracted transaction.
type Pair struct {
	Truth      int      `json:"truth"`
	Extracted  int      `json:"extracted"`
	Mismatched []string `json:"mismatched,omitempty"`
}

// Report compares an extraction against ground truth.
type Report struct {
	Expected       int           `json:"expected"`
	Extracted      int           `json:"extracted"`
	Matched        int           `json:"matched"`
	ExactMatch     float64       `json:"exact_match"`
	Fields         FieldAccuracy `json:"field_accuracy"`
	DescriptionCER float64       `json:"description_cer"`
	DescriptionWER float64       `json:"description_wer"`
	Precision      float64       `json:"precision"`
	Recall         float64       `json:"recall"`
	F1             float64       `json:"f1"`
	Pairs          []Pair        `json:"pairs"`
	Missing        []int         `json:"missing"`
	Extra          []int         `json:"extra"`
}

// Compare aligns got against truth in order and scores the alignment.
// Rows are paired by a monotonic alignment that maximises the number of
// agreeing fields, so a dropped or spurious row does not shift every later
// comparison.
func Compare(truth []Row, got []ledger.Transaction) Report {
	rep := Report{
		Expected:  len(truth),
		Extracted: len(got),
		Pairs:     []Pair{},
		Missing:   []int{},
		Extra:     []int{},
	}

	pairs := align(truth, got)
	matchedTruth := make([]bool, len(truth))
	matchedGot := make([]bool, len(got))

	var correct [5]int
	exact := 0
	refRunes, charEdits := 0, 0
	refWords, wordEdits := 0, 0
	for _, p := range pairs {
		matchedTruth[p.Truth] = true
		matchedGot[p.Extracted] = true
		t, g := truth[p.Truth], got[p.Extracted]

		ok := fieldMatches(t, g)
		for i, name := range fieldNames {
			if ok[i] {
				correct[i]++
			} else {
				p.Mismatched = append(p.Mismatched, name)
			}
		}
		if len(p.Mismatched) == 0 {
			exact++
		}
		ref, hyp := normalizeText(t.Description), normalizeText(g.Description)
		refRunes += utf8.RuneCountInString(ref)
		charEdits += EditDistance(ref, hyp)
		refW := strings.Fields(ref)
		refWords += len(refW)
		wordEdits += WordEditDistance(refW, strings.Fields(hyp))
		rep.Pairs = append(rep.Pairs, p)
	}
	for i, m := range matchedTruth {
		if !m {
			rep.Missing = append(rep.Missing, i)
			ref := normalizeText(truth[i].Description)
			refRunes += len([]rune(ref))
			charEdits += len([]rune(ref))
			refWords += len(strings.Fields(ref))
			wordEdits += len(strings.Fields(ref))
		}
	}
	for i, m := range matchedGot {
		if !m {
			rep.Extra = append(rep.Extra, i)
		}
	}

	rep.Matched = len(pairs)
	rep.ExactMatch = ratio(exact, len(truth))
	rep.Fields = FieldAccuracy{
		Date:        ratio(correct[0], len(truth)),
		Description: ratio(correct[1], len(truth)),
		Debit:       ratio(correct[2], len(truth)),
		Credit:      ratio(correct[3], len(truth)),
		Balance:     ratio(correct[4], len(truth)),
	}
	rep.DescriptionCER = ratio(charEdits, refRunes)
	rep.DescriptionWER = ratio(wordEdits, refWords)
	rep.Precision = ratio(rep.Matched, len(got))
	rep.Recall = ratio(rep.Matched, len(truth))
	rep.F1 = f1(rep.Precision, rep.Recall)

	slog.Debug("Evaluation completed",
		"expected", rep.Expected,
		"extracted", rep.Extracted,
		"matched", rep.Matched,
		"exact_match", rep.ExactMatch)
	return rep
}

var fieldNames = [5]string{FieldDate, FieldDescription, FieldDebit, FieldCredit, FieldBalance}

func fieldMatches(t Row, g ledger.Transaction) [5]bool {
	balance := t.Balance.Valid == g.Balance.Valid &&
		(!t.Balance.Valid || t.Balance.Decimal.Equal(g.Balance.Decimal))
	return [5]bool{
		t.Date == g.Date,
		normalizeText(t.Description) == normalizeText(g.Description),
		t.Debit.Equal(g.Debit),
		t.Credit.Equal(g.Credit),
		balance,
	}
}

func pairScore(t Row, g ledger.Transaction) float64 {
	n := 0
	for _, ok := range fieldMatches(t, g) {
		if ok {
			n++
		}
	}
	return float64(n) / float64(len(fieldNames))
}

// align returns index pairs of a monotonic alignment maximising the summed
// pair score, ignoring pairs below minPairScore.
func align(truth []Row, got []ledger.Transaction) []Pair {
	n, m := len(truth), len(got)
	score := make([][]float64, n+1)
	for i := range score {
		score[i] = make([]float64, m+1)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			best := max(score[i-1][j], score[i][j-1])
			if s := pairScore(truth[i-1], got[j-1]); s >= minPairScore {
				best = max(best, score[i-1][j-1]+s)
			}
			score[i][j] = best
		}
	}

	var pairs []Pair
	for i, j := n, m; i > 0 && j > 0; {
		s := pairScore(truth[i-1], got[j-1])
		switch {
		case s >= minPairScore && score[i][j] == score[i-1][j-1]+s:
			pairs = append(pairs, Pair{Truth: i - 1, Extracted: j - 1})
			i--
			j--
		case score[i][j] == score[i-1][j]:
			i--
		default:
			j--
		}
	}
	for l, r := 0, len(pairs)-1; l < r; l, r = l+1, r-1 {
		pairs[l], pairs[r] = pairs[r], pairs[l]
	}
	return pairs
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// String renders a short multi-line summary.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rows: expected %d, extracted %d, matched %d\n", r.Expected, r.Extracted, r.Matched)
	fmt.Fprintf(&b, "Exact match: %.1f%%  Precision: %.3f  Recall: %.3f  F1: %.3f\n",
		r.ExactMatch*100, r.Precision, r.Recall, r.F1)
	fmt.Fprintf(&b, "Field accuracy: date %.3f, description %.3f, debit %.3f, credit %.3f, balance %.3f\n",
		r.Fields.Date, r.Fields.Description, r.Fields.Debit, r.Fields.Credit, r.Fields.Balance)
	fmt.Fprintf(&b, "Description CER: %.3f  WER: %.3f\n", r.DescriptionCER, r.DescriptionWER)
	if len(r.Missing) > 0 {
		fmt.Fprintf(&b, "Missing rows: %v\n", r.Missing)
	}
	if len(r.Extra) > 0 {
		fmt.Fprintf(&b, "Extra rows: %v\n", r.Extra)
	}
	return b.String()
}
