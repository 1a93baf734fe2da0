package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/layout"
	"github.com/MeKo-Tech/ledgerscan/internal/mempool"
	"github.com/MeKo-Tech/ledgerscan/internal/models"
	"github.com/MeKo-Tech/ledgerscan/internal/onnx"
	"github.com/yalue/onnxruntime_go"
)

// Seq2SeqConfig configures the encoder-decoder recognizer.
type Seq2SeqConfig struct {
	EncoderPath   string             `mapstructure:"encoder_path" yaml:"encoder_path" json:"encoder_path"`
	DecoderPath   string             `mapstructure:"decoder_path" yaml:"decoder_path" json:"decoder_path"`
	VocabPath     string             `mapstructure:"vocab_path" yaml:"vocab_path" json:"vocab_path"`
	Input         InputSize          `mapstructure:"input" yaml:"input" json:"input"`
	Session       onnx.SessionConfig `mapstructure:"session" yaml:"session" json:"session"`
	MaxLength     int                `mapstructure:"max_length" yaml:"max_length" json:"max_length"`
	LowConfidence float64            `mapstructure:"low_confidence" yaml:"low_confidence" json:"low_confidence"`
}

// DefaultSeq2SeqConfig points at the bundled model layout.
func DefaultSeq2SeqConfig() Seq2SeqConfig {
	enc, dec, vocab := models.Seq2SeqPaths("")
	return Seq2SeqConfig{
		EncoderPath:   enc,
		DecoderPath:   dec,
		VocabPath:     vocab,
		Input:         InputSize{Height: 384, MaxWidth: 384},
		MaxLength:     64,
		LowConfidence: 0.7,
	}
}

// Special vocabulary entries.
const (
	tokenBOS = "<s>"
	tokenEOS = "</s>"
	tokenPAD = "<pad>"
)

// Seq2Seq runs an image encoder once per crop and an autoregressive text
// decoder once per decoding step.
type Seq2Seq struct {
	cfg      Seq2SeqConfig
	decode   DecodeConfig
	clean    CleanOptions
	vocab    *Charset
	bos, eos int
	pad      int
	encoder  *onnx.Session
	decoder  *onnx.Session
	// idsFirst reports whether the decoder takes input_ids before the
	// encoder states.
	idsFirst bool
}

// NewSeq2Seq loads the vocabulary and both sessions.
func NewSeq2Seq(cfg Seq2SeqConfig, decode DecodeConfig, clean CleanOptions) (*Seq2Seq, error) {
	if err := models.ValidateExists(cfg.EncoderPath, cfg.DecoderPath, cfg.VocabPath); err != nil {
		return nil, fmt.Errorf("seq2seq recognizer: %w", err)
	}
	vocab, err := LoadCharset(cfg.VocabPath, true)
	if err != nil {
		return nil, err
	}
	bos, eos, pad := vocab.Index(tokenBOS), vocab.Index(tokenEOS), vocab.Index(tokenPAD)
	if bos < 0 || eos < 0 {
		return nil, fmt.Errorf("vocabulary %s lacks %s or %s", cfg.VocabPath, tokenBOS, tokenEOS)
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultSeq2SeqConfig().MaxLength
	}
	if cfg.Input.Height <= 0 {
		cfg.Input = DefaultSeq2SeqConfig().Input
	}
	enc, err := onnx.NewSession(cfg.EncoderPath, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("seq2seq encoder: %w", err)
	}
	dec, err := onnx.NewSession(cfg.DecoderPath, cfg.Session)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("seq2seq decoder: %w", err)
	}
	names := dec.InputNames()
	if len(names) != 2 {
		_ = enc.Close()
		_ = dec.Close()
		return nil, fmt.Errorf("seq2seq decoder: expected 2 inputs, got %d", len(names))
	}
	return &Seq2Seq{
		cfg: cfg, decode: decode, clean: clean, vocab: vocab,
		bos: bos, eos: eos, pad: pad,
		encoder: enc, decoder: dec,
		idsFirst: strings.Contains(names[0], "ids"),
	}, nil
}

// Name implements Recognizer.
func (r *Seq2Seq) Name() string { return BackendSeq2Seq }

// Version returns the decoder version label.
func (r *Seq2Seq) Version() string { return models.Version(r.cfg.DecoderPath) }

// Close implements Recognizer.
func (r *Seq2Seq) Close() error {
	return errors.Join(r.encoder.Close(), r.decoder.Close())
}

// RecognizeBatch implements Recognizer.
func (r *Seq2Seq) RecognizeBatch(ctx context.Context, crops []layout.Crop) ([]Result, error) {
	return recognizeEach(ctx, crops, r.Recognize)
}

// Recognize implements Recognizer.
func (r *Seq2Seq) Recognize(ctx context.Context, crop layout.Crop) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if crop.Image == nil {
		return Result{Backend: BackendSeq2Seq}, nil
	}
	start := time.Now()
	input, err := recognitionTensor(crop.Image, r.cfg.Input)
	if err != nil {
		return Result{}, fmt.Errorf("seq2seq preprocess: %w", err)
	}
	encoded, err := r.encoder.Run(input)
	mempool.PutFloat32(input.Data)
	if err != nil {
		return Result{}, err
	}
	if len(encoded) == 0 {
		return Result{}, errors.New("seq2seq encoder returned no outputs")
	}

	seq := &decoderSequence{r: r, hidden: encoded[0]}
	hyp, err := Decode(ctx, seq, r.decode)
	if err != nil {
		return Result{}, err
	}
	var sb strings.Builder
	for _, id := range hyp.Tokens {
		sb.WriteString(detokenize(r.vocab.Token(id)))
	}
	res := Result{
		Text:             CleanText(sb.String(), r.clean),
		TokenConfidences: hyp.TokenProbs(),
		Confidence:       hyp.Confidence(),
		Backend:          BackendSeq2Seq,
	}
	res.LowConfidence = res.Confidence < r.cfg.LowConfidence
	slog.Debug("Seq2seq recognition completed",
		"order", crop.Order, "tokens", len(hyp.Tokens), "text", res.Text,
		"confidence", res.Confidence, "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// detokenize maps subword markers for a leading space to a space.
func detokenize(tok string) string {
	if rest, ok := strings.CutPrefix(tok, "Ġ"); ok {
		return " " + rest
	}
	if rest, ok := strings.CutPrefix(tok, "▁"); ok {
		return " " + rest
	}
	return tok
}

// decoderSequence adapts the decoder session to Sequence for one crop.
type decoderSequence struct {
	r      *Seq2Seq
	hidden onnx.Tensor
}

func (s *decoderSequence) EOS() int    { return s.r.eos }
func (s *decoderSequence) MaxLen() int { return s.r.cfg.MaxLength }

func (s *decoderSequence) Step(ctx context.Context, prefix []int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(prefix)+1)
	ids = append(ids, int64(s.r.bos))
	for _, p := range prefix {
		ids = append(ids, int64(p))
	}
	idsValue, err := onnx.NewInt64Value(ids, 1, int64(len(ids)))
	if err != nil {
		return nil, err
	}
	hiddenValue, err := onnx.NewFloatValue(s.hidden)
	if err != nil {
		_ = idsValue.Destroy()
		return nil, err
	}
	inputs := []onnxruntime_go.Value{hiddenValue, idsValue}
	if s.r.idsFirst {
		inputs = []onnxruntime_go.Value{idsValue, hiddenValue}
	}
	out, err := s.r.decoder.RunValues(inputs)
	_ = idsValue.Destroy()
	_ = hiddenValue.Destroy()
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("seq2seq decoder returned no outputs")
	}
	rows, err := out[0].Steps(false)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("seq2seq decoder returned empty logits")
	}
	lp := onnx.LogSoftmax(rows[len(rows)-1])
	for _, special := range []int{s.r.bos, s.r.pad} {
		if special >= 0 && special < len(lp) {
			lp[special] = math.Inf(-1)
		}
	}
	return lp, nil
}
