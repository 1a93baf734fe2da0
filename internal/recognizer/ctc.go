package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/layout"
	"github.com/MeKo-Tech/ledgerscan/internal/mempool"
	"github.com/MeKo-Tech/ledgerscan/internal/models"
	"github.com/MeKo-Tech/ledgerscan/internal/onnx"
)

// CTCConfig configures the ONNX CTC line recognizer.
type CTCConfig struct {
	ModelPath      string             `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	DictionaryPath string             `mapstructure:"dictionary_path" yaml:"dictionary_path" json:"dictionary_path"`
	Input          InputSize          `mapstructure:"input" yaml:"input" json:"input"`
	Session        onnx.SessionConfig `mapstructure:"session" yaml:"session" json:"session"`
	// UseSpaceChar appends a space token after the dictionary.
	UseSpaceChar  bool    `mapstructure:"use_space_char" yaml:"use_space_char" json:"use_space_char"`
	LowConfidence float64 `mapstructure:"low_confidence" yaml:"low_confidence" json:"low_confidence"`
}

// DefaultCTCConfig points at the bundled model layout.
func DefaultCTCConfig() CTCConfig {
	model, dict := models.CTCPaths("")
	return CTCConfig{
		ModelPath:      model,
		DictionaryPath: dict,
		Input:          InputSize{Height: 48, MaxWidth: 1600, PadMultiple: 8},
		UseSpaceChar:   true,
		LowConfidence:  0.7,
	}
}

// CTC reads lines with a frame-level classifier whose class 0 is the CTC
// blank and class i>0 is dictionary token i-1.
type CTC struct {
	cfg     CTCConfig
	decode  DecodeConfig
	clean   CleanOptions
	charset *Charset
	session *onnx.Session
}

// NewCTC loads the dictionary and model.
func NewCTC(cfg CTCConfig, decode DecodeConfig, clean CleanOptions) (*CTC, error) {
	if err := models.ValidateExists(cfg.ModelPath, cfg.DictionaryPath); err != nil {
		return nil, fmt.Errorf("ctc recognizer: %w", err)
	}
	cs, err := LoadCharset(cfg.DictionaryPath, false)
	if err != nil {
		return nil, err
	}
	if cfg.UseSpaceChar && cs.Index(" ") < 0 {
		cs = NewCharset(append(append([]string(nil), cs.Tokens...), " "))
	}
	sess, err := onnx.NewSession(cfg.ModelPath, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("ctc recognizer: %w", err)
	}
	if cfg.Input.Height <= 0 {
		cfg.Input.Height = 48
	}
	slog.Debug("CTC recognizer loaded", "model", cfg.ModelPath, "charset", cs.Size())
	return &CTC{cfg: cfg, decode: decode, clean: clean, charset: cs, session: sess}, nil
}

// Name implements Recognizer.
func (r *CTC) Name() string { return BackendCTC }

// Version returns the model version label.
func (r *CTC) Version() string { return models.Version(r.cfg.ModelPath) }

// Close implements Recognizer.
func (r *CTC) Close() error { return r.session.Close() }

// RecognizeBatch implements Recognizer.
func (r *CTC) RecognizeBatch(ctx context.Context, crops []layout.Crop) ([]Result, error) {
	return recognizeEach(ctx, crops, r.Recognize)
}

// Recognize implements Recognizer.
func (r *CTC) Recognize(ctx context.Context, crop layout.Crop) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if crop.Image == nil {
		return Result{Backend: BackendCTC}, nil
	}
	start := time.Now()
	input, err := recognitionTensor(crop.Image, r.cfg.Input)
	if err != nil {
		return Result{}, fmt.Errorf("ctc preprocess: %w", err)
	}
	outputs, err := r.session.Run(input)
	mempool.PutFloat32(input.Data)
	if err != nil {
		return Result{}, err
	}
	if len(outputs) == 0 {
		return Result{}, errors.New("ctc model returned no outputs")
	}
	frames, err := ctcFrames(outputs[0], r.charset.Size()+1)
	if err != nil {
		return Result{}, err
	}
	res, err := r.decodeFrames(ctx, frames)
	if err != nil {
		return Result{}, err
	}
	slog.Debug("CTC recognition completed",
		"order", crop.Order, "frames", len(frames), "text", res.Text,
		"confidence", res.Confidence, "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

func (r *CTC) decodeFrames(ctx context.Context, frames [][]float64) (Result, error) {
	hyp, err := Decode(ctx, NewFrameSequence(frames), r.decode)
	if err != nil {
		return Result{}, err
	}
	ids, probs := CTCCollapse(hyp.Tokens, hyp.TokenProbs(), 0)
	var sb strings.Builder
	for _, id := range ids {
		sb.WriteString(r.charset.Token(id - 1))
	}
	res := Result{
		Text:             CleanText(sb.String(), r.clean),
		TokenConfidences: probs,
		Confidence:       GeometricMean(probs),
		Backend:          BackendCTC,
	}
	res.LowConfidence = res.Confidence < r.cfg.LowConfidence
	return res, nil
}

// ctcFrames converts [1,T,C] or [1,C,T] logits into per-frame
// log-probabilities. The class axis is the one equal to classes; [1,T,C] wins
// when both match.
func ctcFrames(t onnx.Tensor, classes int) ([][]float64, error) {
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("expected 3D ctc output, got shape %v", t.Shape)
	}
	classesFirst := t.Shape[2] != int64(classes) && t.Shape[1] == int64(classes)
	rows, err := t.Steps(classesFirst)
	if err != nil {
		return nil, err
	}
	frames := make([][]float64, len(rows))
	for i, row := range rows {
		frames[i] = onnx.LogSoftmax(row)
	}
	return frames, nil
}

// CTCCollapse drops blanks and merges runs of the same id, keeping the
// highest probability within each run.
func CTCCollapse(ids []int, probs []float64, blank int) ([]int, []float64) {
	outIDs := make([]int, 0, len(ids))
	outProbs := make([]float64, 0, len(ids))
	prev := -1
	for i, id := range ids {
		p := 0.0
		if i < len(probs) {
			p = probs[i]
		}
		switch {
		case id == blank:
		case id == prev:
			last := len(outProbs) - 1
			outProbs[last] = max(outProbs[last], p)
		default:
			outIDs = append(outIDs, id)
			outProbs = append(outProbs, p)
		}
		prev = id
	}
	return outIDs, outProbs
}
