package server

import (
	"context"
	"net/http"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/export"
	"github.com/MeKo-Tech/ledgerscan/internal/ingest"
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/orchestrator"
	"github.com/MeKo-Tech/ledgerscan/internal/pipeline"
	"github.com/MeKo-Tech/ledgerscan/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// extractor is the part of the pipeline the server needs.
type extractor interface {
	RunWithProgress(ctx context.Context, src ingest.Source, cb pipeline.ProgressCallback) (*ledger.Document, error)
	Orchestrator() *orchestrator.Orchestrator
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline      extractor
	corsOrigin    string
	maxUploadMB   int64
	timeout       time.Duration
	defaultFormat string
	rateLimiter   *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host          string
	Port          int
	CORSOrigin    string
	MaxUploadMB   int64
	TimeoutSec    int
	DefaultFormat string
	RateLimit     RateLimitConfig
	Pipeline      pipeline.Config
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string          `json:"status"`
	Version version.Details `json:"version"`
	Time    string          `json:"time"`
}

// BackendsResponse is returned by /v1/backends.
type BackendsResponse struct {
	Backends []orchestrator.BackendInfo `json:"backends"`
	Count    int                        `json:"count"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// NewServer builds the pipeline and the server around it.
func NewServer(config Config) (*Server, error) {
	pl, err := pipeline.New(config.Pipeline)
	if err != nil {
		return nil, err
	}
	return newServer(pl, config), nil
}

func newServer(pl extractor, config Config) *Server {
	s := &Server{
		pipeline:      pl,
		corsOrigin:    config.CORSOrigin,
		maxUploadMB:   config.MaxUploadMB,
		timeout:       time.Duration(config.TimeoutSec) * time.Second,
		defaultFormat: config.DefaultFormat,
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	if s.maxUploadMB <= 0 {
		s.maxUploadMB = 50
	}
	if s.defaultFormat == "" {
		s.defaultFormat = export.FormatJSON
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(config.RateLimit)
	}
	return s
}

// Close releases the pipeline and its backends.
func (s *Server) Close() error {
	if s.pipeline != nil {
		return s.pipeline.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.withMiddleware(s.healthHandler))
	mux.HandleFunc("/v1/backends", s.withMiddleware(s.backendsHandler))
	mux.HandleFunc("/v1/ledger", s.withMiddleware(s.rateLimitMiddleware(s.ledgerHandler)))
	mux.HandleFunc("/v1/ledger/ws", s.requestIDMiddleware(s.rateLimitMiddleware(s.ledgerWebSocketHandler)))
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns a mux with every route installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return s.requestIDMiddleware(s.corsMiddleware(next))
}

func (s *Server) maxUploadBytes() int64 {
	return s.maxUploadMB * 1024 * 1024
}
