package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

// ErrSessionClosed is returned by Run after Close.
var ErrSessionClosed = errors.New("onnx session closed")

// SessionConfig controls runtime and session creation.
type SessionConfig struct {
	LibraryPath string    `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	NumThreads  int       `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	GPU         GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// Session wraps a dynamic ONNX Runtime session bound to the model's
// declared input and output names.
type Session struct {
	path    string
	inputs  []onnxruntime_go.InputOutputInfo
	outputs []onnxruntime_go.InputOutputInfo

	mu      sync.RWMutex
	session *onnxruntime_go.DynamicAdvancedSession
}

// NewSession initializes the runtime if needed and opens modelPath.
func NewSession(modelPath string, cfg SessionConfig) (*Session, error) {
	if modelPath == "" {
		return nil, errors.New("model path cannot be empty")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s: %w", modelPath, err)
	}
	if err := cfg.GPU.Validate(); err != nil {
		return nil, err
	}
	if err := Init(cfg.LibraryPath, cfg.GPU.UseGPU); err != nil {
		return nil, err
	}

	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s declares %d inputs and %d outputs", modelPath, len(inputs), len(outputs))
	}

	opts, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("Failed to destroy session options", "error", err)
		}
	}()
	if err := configureGPU(opts, cfg.GPU); err != nil {
		return nil, fmt.Errorf("failed to configure GPU: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	sess, err := onnxruntime_go.NewDynamicAdvancedSession(modelPath, names(inputs), names(outputs), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Debug("ONNX session created",
		"model_path", modelPath,
		"inputs", names(inputs),
		"outputs", names(outputs),
		"gpu", cfg.GPU.UseGPU)

	return &Session{path: modelPath, inputs: inputs, outputs: outputs, session: sess}, nil
}

func names(infos []onnxruntime_go.InputOutputInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Name
	}
	return out
}

// Path returns the model file path.
func (s *Session) Path() string { return s.path }

// InputShape returns the declared shape of input i; dynamic axes are -1.
func (s *Session) InputShape(i int) []int64 {
	if i < 0 || i >= len(s.inputs) {
		return nil
	}
	return append([]int64(nil), s.inputs[i].Dimensions...)
}

// InputNames returns the declared input names in feed order.
func (s *Session) InputNames() []string { return names(s.inputs) }

// Run feeds one float32 tensor per declared input and returns all outputs.
func (s *Session) Run(inputs ...Tensor) ([]Tensor, error) {
	values := make([]onnxruntime_go.Value, 0, len(inputs))
	for i, t := range inputs {
		v, err := NewFloatValue(t)
		if err != nil {
			destroyAll(values)
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		values = append(values, v)
	}
	out, err := s.RunValues(values)
	destroyAll(values)
	return out, err
}

// RunValues runs the session on prepared values. The caller keeps ownership
// of inputs; outputs are copied out and released.
func (s *Session) RunValues(inputs []onnxruntime_go.Value) ([]Tensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, ErrSessionClosed
	}
	if len(inputs) != len(s.inputs) {
		return nil, fmt.Errorf("expected %d inputs, got %d", len(s.inputs), len(inputs))
	}

	outputs := make([]onnxruntime_go.Value, len(s.outputs))
	if err := s.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer destroyAll(outputs)

	result := make([]Tensor, len(outputs))
	for i, v := range outputs {
		ft, ok := v.(*onnxruntime_go.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %d: expected float32 tensor, got %T", i, v)
		}
		data := ft.GetData()
		result[i] = Tensor{
			Data:  append([]float32(nil), data...),
			Shape: append([]int64(nil), v.GetShape()...),
		}
	}
	return result, nil
}

// Close releases the native session. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	if err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// NewFloatValue converts a Tensor into a runtime value.
func NewFloatValue(t Tensor) (onnxruntime_go.Value, error) {
	if err := t.Verify(); err != nil {
		return nil, err
	}
	v, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(t.Shape...), t.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	return v, nil
}

// NewInt64Value builds an int64 runtime value, typically token ids.
func NewInt64Value(data []int64, shape ...int64) (onnxruntime_go.Value, error) {
	v, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(shape...), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create int64 tensor: %w", err)
	}
	return v, nil
}

func destroyAll(values []onnxruntime_go.Value) {
	for _, v := range values {
		if v == nil {
			continue
		}
		if err := v.Destroy(); err != nil {
			slog.Warn("Failed to destroy tensor", "error", err)
		}
	}
}
