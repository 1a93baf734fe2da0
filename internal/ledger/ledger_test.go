package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDateRejectsOverflow(t *testing.T) {
	_, ok := NewDate(2024, time.January, 32)
	assert.False(t, ok)
	_, ok = NewDate(2023, time.February, 29)
	assert.False(t, ok)
	d, ok := NewDate(2024, time.February, 29)
	require.True(t, ok)
	assert.Equal(t, "2024-02-29", d.String())
}

func TestDateOrderingAndJSON(t *testing.T) {
	a, _ := NewDate(2024, time.January, 1)
	b, _ := NewDate(2024, time.January, 2)
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, 0, a.Compare(a))

	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-01-01"`, string(out))

	var back Date
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, a, back)

	out, err = json.Marshal(Date{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}

func TestDateRangeExtend(t *testing.T) {
	a, _ := NewDate(2024, time.March, 5)
	b, _ := NewDate(2024, time.January, 9)
	r := DateRange{}.Extend(a).Extend(Date{}).Extend(b)
	assert.Equal(t, b, r.From)
	assert.Equal(t, a, r.To)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, LevelFor(0.95))
	assert.Equal(t, ConfidenceHigh, LevelFor(0.9))
	assert.Equal(t, ConfidenceMedium, LevelFor(0.7))
	assert.Equal(t, ConfidenceLow, LevelFor(0.69))
}

func TestSummarize(t *testing.T) {
	d := func(day int) Date { v, _ := NewDate(2024, time.January, day); return v }
	txs := []Transaction{
		{Date: d(1), Debit: decimal.Zero, Credit: decimal.Zero, Balance: decimal.NewNullDecimal(decimal.NewFromInt(50000))},
		{Date: d(2), Debit: decimal.Zero, Credit: decimal.NewFromInt(10000), Balance: decimal.NewNullDecimal(decimal.NewFromInt(60000))},
		{Date: d(3), Debit: decimal.NewFromInt(2000), Credit: decimal.Zero, Balance: decimal.NewNullDecimal(decimal.NewFromInt(58000))},
	}
	s := Summarize(txs)
	assert.Equal(t, 3, s.TransactionCount)
	assert.True(t, s.TotalDebits.Equal(decimal.NewFromInt(2000)))
	assert.True(t, s.TotalCredits.Equal(decimal.NewFromInt(10000)))
	assert.True(t, s.Net.Equal(decimal.NewFromInt(8000)))
	assert.True(t, s.OpeningBalance.Decimal.Equal(decimal.NewFromInt(50000)))
	assert.True(t, s.ClosingBalance.Decimal.Equal(decimal.NewFromInt(58000)))
	assert.Equal(t, d(1), s.DateRange.From)
	assert.Equal(t, d(3), s.DateRange.To)
}

func TestTransactionAmount(t *testing.T) {
	tx := Transaction{Debit: decimal.NewFromInt(5), Credit: decimal.NewFromInt(2)}
	assert.True(t, tx.Amount().Equal(decimal.NewFromInt(-3)))
	assert.True(t, tx.HasMovement())
	assert.False(t, Transaction{Debit: decimal.Zero, Credit: decimal.Zero}.HasMovement())
}

func TestCodeClassification(t *testing.T) {
	tests := []struct {
		err  error
		code ErrorCode
	}{
		{nil, ""},
		{&UnsupportedFormatError{Signature: "00"}, CodeUnsupportedFormat},
		{fmt.Errorf("load: %w", &CorruptedSourceError{Format: "png"}), CodeCorruptedSource},
		{&QualityError{Reason: "too small"}, CodeQuality},
		{&BackendError{Backend: "glyph", Op: "load", Err: errors.New("x")}, CodeBackendLoad},
		{&BackendError{Backend: "glyph", Op: "recognize", Err: errors.New("x")}, CodeBackendInference},
		{&BackendError{Backend: "glyph", Op: "recognize", Err: ErrInferenceTimeout}, CodeBackendTimeout},
		{&BackendError{Backend: "glyph", Op: "detect", Err: context.DeadlineExceeded}, CodeBackendTimeout},
		{&ParseError{Field: "date"}, CodeParse},
		{&PipelineError{Stage: "recognize", Err: ErrNoBackend}, CodePipeline},
		{errors.New("other"), CodeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, Code(tt.err), "%v", tt.err)
	}
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsInputError(&QualityError{}))
	assert.False(t, IsInputError(&BackendError{Err: errors.New("x")}))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &BackendError{Err: errors.New("x")})))
	assert.False(t, IsRetryable(&PipelineError{Err: errors.New("x")}))

	cs := &CorruptedSourceError{Format: "jpeg", Attempts: []DecodeAttempt{
		{Strategy: "imaging", Err: errors.New("bad huffman")},
		{Strategy: "native", Err: ErrNoBackend},
	}}
	assert.ErrorIs(t, cs, ErrNoBackend)
	assert.Contains(t, cs.Error(), "2 decode attempts")
}
