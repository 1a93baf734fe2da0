package recognizer

import (
	"context"
	"math"
)

// FrameSequence adapts per-frame class log-probabilities to Sequence. Frame t
// scores the token after a prefix of length t; after the last frame only EOS
// is possible. EOS is the id one past the last class.
type FrameSequence struct {
	frames  [][]float64
	classes int
}

// NewFrameSequence wraps frames of equal width.
func NewFrameSequence(frames [][]float64) *FrameSequence {
	classes := 0
	if len(frames) > 0 {
		classes = len(frames[0])
	}
	return &FrameSequence{frames: frames, classes: classes}
}

// EOS implements Sequence.
func (s *FrameSequence) EOS() int { return s.classes }

// MaxLen implements Sequence.
func (s *FrameSequence) MaxLen() int { return len(s.frames) }

// Len returns the number of frames.
func (s *FrameSequence) Len() int { return len(s.frames) }

// Step implements Sequence.
func (s *FrameSequence) Step(_ context.Context, prefix []int) ([]float64, error) {
	out := make([]float64, s.classes+1)
	t := len(prefix)
	if t >= len(s.frames) {
		for i := range s.classes {
			out[i] = math.Inf(-1)
		}
		return out, nil
	}
	copy(out, s.frames[t])
	out[s.classes] = math.Inf(-1)
	return out, nil
}
