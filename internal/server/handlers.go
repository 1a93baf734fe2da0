package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"slices"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/export"
	"github.com/MeKo-Tech/ledgerscan/internal/ingest"
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/pipeline"
	"github.com/MeKo-Tech/ledgerscan/internal/version"
)

const (
	transportHTTP      = "http"
	transportWebSocket = "websocket"

	defaultUploadName = "upload"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, HealthResponse{
		Status:  "healthy",
		Version: version.Get(),
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// backendsHandler lists the registered detector and recognizer backends.
func (s *Server) backendsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	backends := s.pipeline.Orchestrator().Backends()
	writeJSON(w, BackendsResponse{Backends: backends, Count: len(backends)})
}

// ledgerHandler extracts a ledger from a multipart "file" field or from the
// raw request body and writes it in the format named by ?format=.
func (s *Server) ledgerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = s.defaultFormat
	}
	if !slices.Contains(export.Formats(), format) {
		s.writeError(w, r, http.StatusBadRequest, "invalid_format", fmt.Sprintf("unsupported output format %q", format))
		return
	}

	name, data, status, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, r, status, "invalid_request", err.Error())
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	doc, err := s.extract(r.Context(), transportHTTP, ingest.FromBytes(name, data), nil)
	if err != nil {
		status, code := errorStatus(err)
		s.writeError(w, r, status, code, err.Error())
		return
	}

	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("X-Document-ID", doc.ID)
	if err := export.Write(w, doc, format); err != nil {
		slog.Error("Failed to write ledger response", "error", err, "request_id", requestIDFrom(r.Context()))
	}
}

// readUpload returns the uploaded document. The int is the HTTP status to
// report when err is set.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, int, error) {
	limit := s.maxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		name   = defaultUploadName
		reader io.Reader
	)
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(limit); err != nil {
			return "", nil, uploadStatus(err), fmt.Errorf("failed to parse form data: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, http.StatusBadRequest, errors.New("no file provided in form field \"file\"")
		}
		defer func() { _ = file.Close() }()
		if header.Filename != "" {
			name = header.Filename
		}
		reader = file
	} else {
		if q := r.URL.Query().Get("filename"); q != "" {
			name = q
		}
		reader = r.Body
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", nil, uploadStatus(err), fmt.Errorf("failed to read document: %w", err)
	}
	if len(data) == 0 {
		return "", nil, http.StatusBadRequest, errors.New("no document provided")
	}
	return name, data, 0, nil
}

func uploadStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// extract runs the pipeline under the server timeout and records metrics.
func (s *Server) extract(ctx context.Context, transport string, src ingest.Source,
	cb pipeline.ProgressCallback,
) (*ledger.Document, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	doc, err := s.pipeline.RunWithProgress(ctx, src, cb)
	duration := time.Since(start)
	if err != nil {
		ledgerRequestsTotal.WithLabelValues(transport, "error").Inc()
		slog.Warn("Extraction failed",
			"transport", transport,
			"source", src.Label(),
			"code", ledger.Code(err),
			"request_id", requestIDFrom(ctx),
			"error", err)
		return nil, err
	}

	ledgerRequestsTotal.WithLabelValues(transport, "success").Inc()
	ledgerProcessingDuration.WithLabelValues(transport).Observe(duration.Seconds())
	ledgerRecommendations.WithLabelValues(string(doc.Confidence.Recommendation)).Inc()
	return doc, nil
}

// errorStatus maps a pipeline error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	code := ledger.Code(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, string(ledger.CodeBackendTimeout)
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, string(code)
	}
	switch code {
	case ledger.CodeUnsupportedFormat:
		return http.StatusUnsupportedMediaType, string(code)
	case ledger.CodeCorruptedSource, ledger.CodeQuality:
		return http.StatusUnprocessableEntity, string(code)
	case ledger.CodeBackendTimeout:
		return http.StatusGatewayTimeout, string(code)
	case ledger.CodeBackendLoad, ledger.CodeBackendInference:
		return http.StatusServiceUnavailable, string(code)
	default:
		return http.StatusInternalServerError, string(code)
	}
}
