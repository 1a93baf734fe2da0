package recognizer

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
)

// Decoding modes.
const (
	DecodeGreedy = "greedy"
	DecodeBeam   = "beam"
)

// Sequence supplies next-token scores to a decoder. Backends adapt their model
// output to it: frame-synchronous models ignore the prefix and return the
// scores of frame len(prefix), autoregressive models run their decoder on it.
type Sequence interface {
	// Step returns log-probabilities over the vocabulary, EOS included, for the
	// token that follows prefix. Impossible tokens are -Inf.
	Step(ctx context.Context, prefix []int) ([]float64, error)
	// EOS is the end-of-sequence token id.
	EOS() int
	// MaxLen bounds the number of non-EOS tokens.
	MaxLen() int
}

// DecodeConfig selects and tunes the decoder.
type DecodeConfig struct {
	Mode          string  `mapstructure:"mode" yaml:"mode" json:"mode"`
	BeamWidth     int     `mapstructure:"beam_width" yaml:"beam_width" json:"beam_width"`
	LengthPenalty float64 `mapstructure:"length_penalty" yaml:"length_penalty" json:"length_penalty"`
}

// DefaultDecodeConfig uses greedy decoding.
func DefaultDecodeConfig() DecodeConfig {
	return DecodeConfig{Mode: DecodeGreedy, BeamWidth: 5, LengthPenalty: 1.0}
}

// Validate rejects unknown modes and non-positive beam widths.
func (c DecodeConfig) Validate() error {
	switch c.Mode {
	case DecodeGreedy:
		return nil
	case DecodeBeam:
		if c.BeamWidth < 1 {
			return fmt.Errorf("beam width must be >= 1, got %d", c.BeamWidth)
		}
		if c.LengthPenalty < 0 {
			return fmt.Errorf("length penalty must be >= 0, got %v", c.LengthPenalty)
		}
		return nil
	default:
		return fmt.Errorf("unknown decode mode %q", c.Mode)
	}
}

// Hypothesis is a decoded token sequence. Tokens and LogProbs exclude EOS.
type Hypothesis struct {
	Tokens   []int
	LogProbs []float64
	// EOSLogProb is the log-probability of the terminating EOS, zero when the
	// sequence was cut at the length limit.
	EOSLogProb float64
	Done       bool
}

// LogProb is the total log-probability including EOS.
func (h Hypothesis) LogProb() float64 {
	sum := h.EOSLogProb
	for _, lp := range h.LogProbs {
		sum += lp
	}
	return sum
}

// Score normalises LogProb by length^penalty, counting at least one token.
func (h Hypothesis) Score(penalty float64) float64 {
	n := max(1, len(h.Tokens))
	return h.LogProb() / math.Pow(float64(n), penalty)
}

// TokenProbs returns per-token probabilities.
func (h Hypothesis) TokenProbs() []float64 {
	out := make([]float64, len(h.LogProbs))
	for i, lp := range h.LogProbs {
		out[i] = math.Exp(lp)
	}
	return out
}

// Confidence is the geometric mean of the token probabilities, 0 for an
// empty sequence.
func (h Hypothesis) Confidence() float64 {
	return GeometricMean(h.TokenProbs())
}

func (h Hypothesis) extend(tok int, lp float64, eos int) Hypothesis {
	if tok == eos {
		return Hypothesis{Tokens: h.Tokens, LogProbs: h.LogProbs, EOSLogProb: lp, Done: true}
	}
	return Hypothesis{
		Tokens:   append(slices.Clip(h.Tokens), tok),
		LogProbs: append(slices.Clip(h.LogProbs), lp),
	}
}

// GeometricMean returns exp(mean(log p)), 0 for no values or any p <= 0.
func GeometricMean(probs []float64) float64 {
	if len(probs) == 0 {
		return 0
	}
	var sum float64
	for _, p := range probs {
		if p <= 0 {
			return 0
		}
		sum += math.Log(p)
	}
	return math.Exp(sum / float64(len(probs)))
}

// Decode runs the configured decoder.
func Decode(ctx context.Context, seq Sequence, cfg DecodeConfig) (Hypothesis, error) {
	if cfg.Mode == DecodeBeam {
		return Beam(ctx, seq, cfg.BeamWidth, cfg.LengthPenalty)
	}
	return Greedy(ctx, seq)
}

// Greedy picks the most likely token at every step, lower ids winning ties,
// until EOS or the length limit.
func Greedy(ctx context.Context, seq Sequence) (Hypothesis, error) {
	var h Hypothesis
	eos := seq.EOS()
	for len(h.Tokens) < seq.MaxLen() {
		if err := ctx.Err(); err != nil {
			return Hypothesis{}, err
		}
		lp, err := seq.Step(ctx, h.Tokens)
		if err != nil {
			return Hypothesis{}, err
		}
		top := topK(lp, 1)
		if len(top) == 0 {
			break
		}
		h = h.extend(top[0], lp[top[0]], eos)
		if h.Done {
			break
		}
	}
	return h, nil
}

// Beam keeps the width best partial sequences ranked by Score. Each live
// beam expands by its width best tokens; sequences ending in EOS move to the
// finished pool. Decoding stops when no live beam remains or the length limit
// is reached, and the best finished sequence wins. Equal scores prefer the
// lexicographically smaller token sequence.
func Beam(ctx context.Context, seq Sequence, width int, penalty float64) (Hypothesis, error) {
	if width <= 1 {
		return Greedy(ctx, seq)
	}
	eos := seq.EOS()
	live := []Hypothesis{{}}
	var finished []Hypothesis

	for step := 0; len(live) > 0 && step < seq.MaxLen(); step++ {
		if err := ctx.Err(); err != nil {
			return Hypothesis{}, err
		}
		var next []Hypothesis
		for _, h := range live {
			lp, err := seq.Step(ctx, h.Tokens)
			if err != nil {
				return Hypothesis{}, err
			}
			for _, tok := range topK(lp, width) {
				ext := h.extend(tok, lp[tok], eos)
				if ext.Done {
					finished = append(finished, ext)
				} else {
					next = append(next, ext)
				}
			}
		}
		rank(next, penalty)
		live = next[:min(width, len(next))]
	}
	// sequences still live at the limit are accepted as they stand
	finished = append(finished, live...)
	if len(finished) == 0 {
		return Hypothesis{}, nil
	}
	rank(finished, penalty)
	return finished[0], nil
}

func rank(hs []Hypothesis, penalty float64) {
	sort.SliceStable(hs, func(i, j int) bool {
		si, sj := hs[i].Score(penalty), hs[j].Score(penalty)
		if si != sj {
			return si > sj
		}
		return slices.Compare(hs[i].Tokens, hs[j].Tokens) < 0
	})
}

// topK returns the ids of the k largest finite scores, ties broken by lower
// id.
func topK(lp []float64, k int) []int {
	ids := make([]int, 0, len(lp))
	for i, v := range lp {
		if !math.IsInf(v, -1) && !math.IsNaN(v) {
			ids = append(ids, i)
		}
	}
	sort.SliceStable(ids, func(a, b int) bool { return lp[ids[a]] > lp[ids[b]] })
	return ids[:min(k, len(ids))]
}
