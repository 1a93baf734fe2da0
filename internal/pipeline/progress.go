package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Stage names in execution order.
const (
	StageIngest     = "ingest"
	StagePreprocess = "preprocess"
	StageDetect     = "detect"
	StageCrop       = "crop"
	StageRecognize  = "recognize"
	StageTable      = "table"
	StageParse      = "parse"
	StageValidate   = "validate"
	StageScore      = "score"
)

// Stages lists every stage in order.
var Stages = []string{
	StageIngest, StagePreprocess, StageDetect, StageCrop, StageRecognize,
	StageTable, StageParse, StageValidate, StageScore,
}

// Stage statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
)

// StageEvent reports one finished stage. Page-level stages report once per
// page; Page is 0 for document-level stages.
type StageEvent struct {
	Stage      string `json:"stage"`
	Page       int    `json:"page,omitempty"`
	Pages      int    `json:"pages,omitempty"`
	Status     string `json:"status"`
	Summary    string `json:"summary,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Err        string `json:"error,omitempty"`
}

// ProgressCallback receives stage events. Calls come from the goroutine
// running the pipeline, in stage order.
type ProgressCallback interface {
	OnStage(ev StageEvent)
}

// ProgressFunc adapts a function to ProgressCallback.
type ProgressFunc func(StageEvent)

func (f ProgressFunc) OnStage(ev StageEvent) { f(ev) }

// NoOpProgressCallback discards events.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStage(StageEvent) {}

// ConsoleProgressCallback prints one line per stage.
type ConsoleProgressCallback struct {
	writer io.Writer
	prefix string
	mu     sync.Mutex
}

// NewConsoleProgressCallback writes to writer, or stderr when nil.
func NewConsoleProgressCallback(writer io.Writer, prefix string) *ConsoleProgressCallback {
	if writer == nil {
		writer = os.Stderr
	}
	return &ConsoleProgressCallback{writer: writer, prefix: prefix}
}

func (c *ConsoleProgressCallback) OnStage(ev StageEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	where := ""
	if ev.Page > 0 {
		where = fmt.Sprintf(" page %d/%d", ev.Page, ev.Pages)
	}
	line := fmt.Sprintf("%s%-10s%s %s (%d ms)", c.prefix, ev.Stage, where, ev.Status, ev.DurationMs)
	if ev.Summary != "" {
		line += " " + ev.Summary
	}
	if ev.Err != "" {
		line += ": " + ev.Err
	}
	_, _ = fmt.Fprintln(c.writer, line)
}

// LogProgressCallback logs events with slog.
type LogProgressCallback struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogProgressCallback logs at level; a nil logger uses slog.Default().
func NewLogProgressCallback(logger *slog.Logger, level slog.Level) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level}
}

func (l *LogProgressCallback) OnStage(ev StageEvent) {
	level := l.level
	if ev.Status == StatusFailed {
		level = slog.LevelError
	}
	l.logger.Log(context.Background(), level, "Pipeline progress",
		"stage", ev.Stage, "page", ev.Page, "status", ev.Status, "duration_ms", ev.DurationMs)
}

// MultiProgressCallback fans events out to several callbacks.
type MultiProgressCallback struct {
	callbacks []ProgressCallback
}

// NewMultiProgressCallback combines callbacks; nil entries are skipped.
func NewMultiProgressCallback(callbacks ...ProgressCallback) *MultiProgressCallback {
	m := &MultiProgressCallback{}
	for _, cb := range callbacks {
		m.Add(cb)
	}
	return m
}

// Add appends a callback.
func (m *MultiProgressCallback) Add(cb ProgressCallback) {
	if cb != nil {
		m.callbacks = append(m.callbacks, cb)
	}
}

func (m *MultiProgressCallback) OnStage(ev StageEvent) {
	for _, cb := range m.callbacks {
		cb.OnStage(ev)
	}
}
