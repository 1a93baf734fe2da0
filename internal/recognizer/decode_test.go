package recognizer

import (
	"context"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tableSequence serves fixed distributions keyed by prefix. Token 0 is EOS.
type tableSequence struct {
	vocab  int
	maxLen int
	probs  map[string]map[int]float64
}

func key(prefix []int) string {
	b := make([]byte, len(prefix))
	for i, p := range prefix {
		b[i] = byte('0' + p)
	}
	return string(b)
}

func (s tableSequence) EOS() int    { return 0 }
func (s tableSequence) MaxLen() int { return s.maxLen }

func (s tableSequence) Step(_ context.Context, prefix []int) ([]float64, error) {
	out := make([]float64, s.vocab)
	for i := range out {
		out[i] = math.Inf(-1)
	}
	dist, ok := s.probs[key(prefix)]
	if !ok {
		out[0] = 0
		return out, nil
	}
	for tok, p := range dist {
		out[tok] = math.Log(p)
	}
	return out, nil
}

// greedyTrap is built so the locally best first token leads to a worse
// sequence: a=1, b=2, c=3.
var greedyTrap = tableSequence{
	vocab:  4,
	maxLen: 3,
	probs: map[string]map[int]float64{
		"":   {1: 0.6, 2: 0.4},
		"1":  {1: 0.35, 3: 0.35, 2: 0.3},
		"11": {0: 1},
		"13": {0: 1},
		"12": {0: 1},
		"2":  {3: 1},
		"23": {0: 1},
	},
}

func TestGreedyPicksLocalMaximumAndLowerIDOnTies(t *testing.T) {
	h, err := Greedy(context.Background(), greedyTrap)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, h.Tokens)
	assert.True(t, h.Done)
	assert.InDelta(t, math.Sqrt(0.6*0.35), h.Confidence(), 1e-9)
}

func TestBeamFindsBetterSequence(t *testing.T) {
	h, err := Beam(context.Background(), greedyTrap, 3, 1.0)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, h.Tokens)
	assert.InDelta(t, math.Sqrt(0.4), h.Confidence(), 1e-9)

	g, err := Greedy(context.Background(), greedyTrap)
	require.NoError(t, err)
	assert.Greater(t, h.LogProb(), g.LogProb())
}

func TestBeamWidthOneIsGreedy(t *testing.T) {
	b, err := Beam(context.Background(), greedyTrap, 1, 1.0)
	require.NoError(t, err)
	g, err := Greedy(context.Background(), greedyTrap)
	require.NoError(t, err)
	assert.Equal(t, g.Tokens, b.Tokens)
}

func TestDecodeHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Decode(ctx, greedyTrap, DecodeConfig{Mode: DecodeBeam, BeamWidth: 3, LengthPenalty: 1})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecodeConfigValidate(t *testing.T) {
	require.NoError(t, DefaultDecodeConfig().Validate())
	require.NoError(t, DecodeConfig{Mode: DecodeBeam, BeamWidth: 4}.Validate())
	require.Error(t, DecodeConfig{Mode: DecodeBeam}.Validate())
	require.Error(t, DecodeConfig{Mode: DecodeBeam, BeamWidth: 2, LengthPenalty: -1}.Validate())
	require.Error(t, DecodeConfig{Mode: "sampling"}.Validate())
}

func TestGeometricMean(t *testing.T) {
	assert.Zero(t, GeometricMean(nil))
	assert.Zero(t, GeometricMean([]float64{0.5, 0}))
	assert.InDelta(t, 0.5, GeometricMean([]float64{0.25, 1}), 1e-12)
	assert.InDelta(t, 0.9, GeometricMean([]float64{0.9, 0.9, 0.9}), 1e-12)
}

func TestFrameSequenceEndsWithEOS(t *testing.T) {
	frames := [][]float64{
		{math.Log(0.9), math.Log(0.1)},
		{math.Log(0.2), math.Log(0.8)},
	}
	seq := NewFrameSequence(frames)
	assert.Equal(t, 2, seq.EOS())
	assert.Equal(t, 2, seq.MaxLen())

	h, err := Greedy(context.Background(), seq)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, h.Tokens)
	assert.InDelta(t, math.Sqrt(0.9*0.8), h.Confidence(), 1e-9)

	last, err := seq.Step(context.Background(), []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, topK(last, 3))
}

func TestTopKSkipsImpossibleTokens(t *testing.T) {
	lp := []float64{math.Inf(-1), -1, -0.5, -1, math.NaN()}
	assert.Equal(t, []int{2, 1, 3}, topK(lp, 5))
	assert.Equal(t, []int{2}, topK(lp, 1))
}

// Beam search over independent frames never scores below greedy, since the
// greedy path survives every pruning step.
func TestBeamNeverWorseThanGreedyOnFrames(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 60
	properties := gopter.NewProperties(parameters)

	properties.Property("beam log-prob >= greedy log-prob", prop.ForAll(
		func(raw []float64) bool {
			const classes = 3
			var frames [][]float64
			for i := 0; i+classes <= len(raw); i += classes {
				frames = append(frames, logSoftmax(raw[i:i+classes]))
			}
			if len(frames) == 0 {
				return true
			}
			seq := NewFrameSequence(frames)
			g, err := Greedy(context.Background(), seq)
			if err != nil {
				return false
			}
			b, err := Beam(context.Background(), seq, 3, 0)
			if err != nil {
				return false
			}
			return b.LogProb() >= g.LogProb()-1e-9 && len(g.Tokens) == len(frames)
		},
		gen.SliceOfN(12, gen.Float64Range(-4, 4)),
	))
	properties.TestingRun(t)
}

func TestRankBreaksTiesLexicographically(t *testing.T) {
	hs := []Hypothesis{
		{Tokens: []int{3}, LogProbs: []float64{-1}},
		{Tokens: []int{1}, LogProbs: []float64{-1}},
		{Tokens: []int{2}, LogProbs: []float64{-0.5}},
	}
	rank(hs, 1)
	got := make([][]int, len(hs))
	for i, h := range hs {
		got[i] = h.Tokens
	}
	assert.Equal(t, [][]int{{2}, {1}, {3}}, got)
}
