package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/ledgerscan/internal/export"
	"github.com/MeKo-Tech/ledgerscan/internal/ingest"
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/pipeline"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocket message types sent by the server.
const (
	MessageAccepted = "accepted"
	MessageStage    = "stage"
	MessageResult   = "result"
	MessageError    = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LedgerRequest is a text-frame request. Binary frames carry the document
// bytes directly and use the default format.
type LedgerRequest struct {
	Filename string `json:"filename,omitempty"`
	Format   string `json:"format,omitempty"`
	Data     []byte `json:"data"`
}

// LedgerMessage is every frame the server sends. A request produces one
// accepted frame, a stage frame per finished pipeline stage, then a result
// or error frame.
type LedgerMessage struct {
	Type      string               `json:"type"`
	RequestID string               `json:"request_id,omitempty"`
	Stage     *pipeline.StageEvent `json:"stage,omitempty"`
	Format    string               `json:"format,omitempty"`
	Document  *ledger.Document     `json:"document,omitempty"`
	Output    string               `json:"output,omitempty"`
	Error     string               `json:"error,omitempty"`
	Code      string               `json:"code,omitempty"`
}

// messageWriter is the write side of a websocket connection.
type messageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// ledgerWebSocketHandler streams stage progress and results for documents
// sent over a websocket.
func (s *Server) ledgerWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established",
		"remote_addr", r.RemoteAddr,
		"request_id", requestIDFrom(r.Context()))
	s.serveWebSocket(r.Context(), conn)
}

func (s *Server) serveWebSocket(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(s.maxUploadBytes() * 2)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket closed", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		s.handleWebSocketMessage(ctx, conn, messageType, data)
	}
}

// handleWebSocketMessage runs one extraction and reports it on conn.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn messageWriter, messageType int, data []byte) {
	requestID := uuid.NewString()
	ctx = context.WithValue(ctx, requestIDKey{}, requestID)

	req := LedgerRequest{Filename: defaultUploadName, Format: s.defaultFormat}
	switch messageType {
	case websocket.BinaryMessage:
		req.Data = data
	case websocket.TextMessage:
		if err := json.Unmarshal(data, &req); err != nil {
			s.sendMessage(conn, LedgerMessage{Type: MessageError, RequestID: requestID,
				Code: "invalid_request", Error: fmt.Sprintf("failed to parse request: %v", err)})
			return
		}
		if req.Format == "" {
			req.Format = s.defaultFormat
		}
		if req.Filename == "" {
			req.Filename = defaultUploadName
		}
	default:
		return
	}

	if !slices.Contains(export.Formats(), req.Format) {
		s.sendMessage(conn, LedgerMessage{Type: MessageError, RequestID: requestID,
			Code: "invalid_format", Error: fmt.Sprintf("unsupported output format %q", req.Format)})
		return
	}
	if len(req.Data) == 0 {
		s.sendMessage(conn, LedgerMessage{Type: MessageError, RequestID: requestID,
			Code: "invalid_request", Error: "no document provided"})
		return
	}
	uploadSizeBytes.Observe(float64(len(req.Data)))

	s.sendMessage(conn, LedgerMessage{Type: MessageAccepted, RequestID: requestID, Format: req.Format})
	progress := pipeline.ProgressFunc(func(ev pipeline.StageEvent) {
		s.sendMessage(conn, LedgerMessage{Type: MessageStage, RequestID: requestID, Stage: &ev})
	})

	doc, err := s.extract(ctx, transportWebSocket, ingest.FromBytes(req.Filename, req.Data), progress)
	if err != nil {
		_, code := errorStatus(err)
		s.sendMessage(conn, LedgerMessage{Type: MessageError, RequestID: requestID, Code: code, Error: err.Error()})
		return
	}

	result := LedgerMessage{Type: MessageResult, RequestID: requestID, Format: req.Format}
	if req.Format == export.FormatJSON {
		result.Document = doc
	} else {
		var buf bytes.Buffer
		if err := export.Write(&buf, doc, req.Format); err != nil {
			s.sendMessage(conn, LedgerMessage{Type: MessageError, RequestID: requestID,
				Code: "export_failed", Error: err.Error()})
			return
		}
		result.Output = buf.String()
	}
	s.sendMessage(conn, result)
}

// sendMessage writes msg as a JSON text frame.
func (s *Server) sendMessage(conn messageWriter, msg LedgerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal WebSocket message", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}
