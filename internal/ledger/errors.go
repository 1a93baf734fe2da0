package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies the class of a pipeline error.
type ErrorCode string

const (
	CodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	CodeCorruptedSource   ErrorCode = "CORRUPTED_SOURCE"
	CodeQuality           ErrorCode = "QUALITY_OUT_OF_BOUNDS"
	CodeBackendLoad       ErrorCode = "BACKEND_LOAD_FAILED"
	CodeBackendInference  ErrorCode = "BACKEND_INFERENCE_FAILED"
	CodeBackendTimeout    ErrorCode = "BACKEND_TIMEOUT"
	CodeParse             ErrorCode = "PARSE_FAILED"
	CodePipeline          ErrorCode = "PIPELINE_FAILED"
	CodeUnknown           ErrorCode = "UNKNOWN"
)

var (
	// ErrNoBackend is returned when a backend is not compiled in or not registered.
	ErrNoBackend = errors.New("no backend available")
	// ErrInferenceTimeout marks a detect or recognize call that exceeded its deadline.
	ErrInferenceTimeout = errors.New("inference timed out")
)

// UnsupportedFormatError reports an unrecognized byte signature.
type UnsupportedFormatError struct {
	Signature string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Signature == "" {
		return "unsupported format: empty input"
	}
	return fmt.Sprintf("unsupported format (signature %s)", e.Signature)
}

// DecodeAttempt records one failed decode strategy.
type DecodeAttempt struct {
	Strategy string
	Err      error
}

// CorruptedSourceError is returned after every decode strategy failed.
type CorruptedSourceError struct {
	Format   string
	Attempts []DecodeAttempt
}

func (e *CorruptedSourceError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Strategy, a.Err))
	}
	return fmt.Sprintf("corrupted %s source after %d decode attempts (%s)", e.Format, len(e.Attempts), strings.Join(parts, "; "))
}

// Unwrap returns the attempt errors.
func (e *CorruptedSourceError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// QualityError reports a raster outside the configured size or aspect bounds.
type QualityError struct {
	Page   int
	Width  int
	Height int
	Reason string
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("image quality out of bounds on page %d (%dx%d): %s", e.Page, e.Width, e.Height, e.Reason)
}

// BackendError wraps a detector or recognizer failure. It is retryable
// within a fallback chain.
type BackendError struct {
	Backend string
	Op      string // load, detect, recognize
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline.
func (e *BackendError) Timeout() bool {
	return errors.Is(e.Err, ErrInferenceTimeout) || errors.Is(e.Err, context.DeadlineExceeded)
}

// ParseError is a per-row failure. It is collected on the document, never returned.
type ParseError struct {
	Page   int    `json:"page"`
	Row    int    `json:"row"`
	Field  string `json:"field"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("row %d: cannot parse %s %q: %s", e.Row, e.Field, e.Raw, e.Reason)
}

// PipelineError aborts a run.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Code classifies err.
func Code(err error) ErrorCode {
	var (
		unsupported *UnsupportedFormatError
		corrupted   *CorruptedSourceError
		quality     *QualityError
		backend     *BackendError
		parse       *ParseError
		pipeline    *PipelineError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unsupported):
		return CodeUnsupportedFormat
	case errors.As(err, &corrupted):
		return CodeCorruptedSource
	case errors.As(err, &quality):
		return CodeQuality
	case errors.As(err, &backend):
		if backend.Timeout() {
			return CodeBackendTimeout
		}
		if backend.Op == "load" {
			return CodeBackendLoad
		}
		return CodeBackendInference
	case errors.As(err, &parse):
		return CodeParse
	case errors.As(err, &pipeline):
		return CodePipeline
	default:
		return CodeUnknown
	}
}

// IsInputError reports whether the caller must fix the input.
func IsInputError(err error) bool {
	switch Code(err) {
	case CodeUnsupportedFormat, CodeCorruptedSource, CodeQuality:
		return true
	}
	return false
}

// IsRetryable reports whether another backend may succeed.
func IsRetryable(err error) bool {
	var backend *BackendError
	return errors.As(err, &backend)
}
