package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
)

// ErrUnknownBackend is returned for names that were never registered.
var ErrUnknownBackend = fmt.Errorf("unknown backend: %w", ledger.ErrNoBackend)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("orchestrator closed")

// Kinds of backend.
const (
	KindDetector   = "detector"
	KindRecognizer = "recognizer"
)

type closer interface {
	Close() error
}

type versioned interface {
	Version() string
}

// entry loads one backend on first use. The per-entry mutex keeps two
// concurrent first uses from loading twice; a load failure is remembered so
// later callers fall through without retrying.
type entry[T closer] struct {
	kind    string
	name    string
	factory func() (T, error)

	mu     sync.Mutex
	loaded bool
	value  T
	err    error
}

func (e *entry[T]) get() (T, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return e.value, e.err
	}
	start := time.Now()
	v, err := e.factory()
	e.loaded = true
	if err != nil {
		e.err = &ledger.BackendError{Backend: e.name, Op: "load", Err: err}
		slog.Warn("Backend load failed", "kind", e.kind, "backend", e.name, "error", err)
		return e.value, e.err
	}
	e.value = v
	slog.Debug("Backend loaded", "kind", e.kind, "backend", e.name,
		"duration_ms", time.Since(start).Milliseconds())
	return v, nil
}

func (e *entry[T]) info() BackendInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	info := BackendInfo{Kind: e.kind, Name: e.name, Loaded: e.loaded && e.err == nil}
	if e.err != nil {
		info.Error = e.err.Error()
	}
	if info.Loaded {
		if v, ok := any(e.value).(versioned); ok {
			info.Version = v.Version()
		}
	}
	return info
}

func (e *entry[T]) close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded || e.err != nil {
		return nil
	}
	var zero T
	err := e.value.Close()
	e.value, e.loaded = zero, false
	if err != nil {
		return fmt.Errorf("close %s %s: %w", e.kind, e.name, err)
	}
	return nil
}

// BackendInfo describes a registered backend.
type BackendInfo struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Loaded  bool   `json:"loaded"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}
