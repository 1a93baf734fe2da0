package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ledgerscan/internal/export"
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/pipeline"
)

type recordingConn struct {
	messages []LedgerMessage
}

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	var msg LedgerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	c.messages = append(c.messages, msg)
	return nil
}

func dialLedger(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ledger/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntilDone collects messages up to and including a result or error.
func readUntilDone(t *testing.T, conn *websocket.Conn) []LedgerMessage {
	t.Helper()
	var out []LedgerMessage
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(30*time.Second)))
		var msg LedgerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		out = append(out, msg)
		if msg.Type == MessageResult || msg.Type == MessageError {
			return out
		}
	}
}

func TestWebSocketBinaryDocument(t *testing.T) {
	conn := dialLedger(t, newTestServer(t, Config{}))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, statementPNG(t)))

	msgs := readUntilDone(t, conn)
	require.GreaterOrEqual(t, len(msgs), 3)
	assert.Equal(t, MessageAccepted, msgs[0].Type)
	assert.Equal(t, export.FormatJSON, msgs[0].Format)

	requestID := msgs[0].RequestID
	assert.NotEmpty(t, requestID)

	var stages []string
	for _, m := range msgs[1 : len(msgs)-1] {
		assert.Equal(t, MessageStage, m.Type)
		assert.Equal(t, requestID, m.RequestID)
		require.NotNil(t, m.Stage)
		stages = append(stages, m.Stage.Stage)
	}
	assert.Equal(t, pipeline.StageIngest, stages[0])
	assert.Equal(t, pipeline.StageScore, stages[len(stages)-1])

	result := msgs[len(msgs)-1]
	require.Equal(t, MessageResult, result.Type, result.Error)
	require.NotNil(t, result.Document)
	assert.Len(t, result.Document.Transactions, 3)
	assert.Equal(t, ledger.AutoApprove, result.Document.Confidence.Recommendation)
}

func TestWebSocketTextRequestCSV(t *testing.T) {
	conn := dialLedger(t, newTestServer(t, Config{}))
	require.NoError(t, conn.WriteJSON(LedgerRequest{Filename: "jan.png", Format: export.FormatCSV, Data: statementPNG(t)}))

	msgs := readUntilDone(t, conn)
	result := msgs[len(msgs)-1]
	require.Equal(t, MessageResult, result.Type, result.Error)
	assert.Nil(t, result.Document)
	assert.Equal(t, export.FormatCSV, result.Format)
	lines := strings.Split(strings.TrimSpace(result.Output), "\n")
	assert.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], strings.Join(export.CSVHeader, ",")))
}

func TestWebSocketKeepsConnectionAfterError(t *testing.T) {
	conn := dialLedger(t, newTestServer(t, Config{}))

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("not a statement")))
	msgs := readUntilDone(t, conn)
	last := msgs[len(msgs)-1]
	assert.Equal(t, MessageError, last.Type)
	assert.Equal(t, string(ledger.CodeUnsupportedFormat), last.Code)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, statementPNG(t)))
	msgs = readUntilDone(t, conn)
	assert.Equal(t, MessageResult, msgs[len(msgs)-1].Type)
}

func TestHandleWebSocketMessageRejects(t *testing.T) {
	s := &Server{defaultFormat: export.FormatJSON}

	tests := []struct {
		name        string
		messageType int
		data        string
		code        string
	}{
		{"malformed json", websocket.TextMessage, "{", "invalid_request"},
		{"unknown format", websocket.TextMessage, `{"format":"xlsx","data":"AAEC"}`, "invalid_format"},
		{"no data", websocket.TextMessage, `{"filename":"a.png"}`, "invalid_request"},
		{"empty binary", websocket.BinaryMessage, "", "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &recordingConn{}
			s.handleWebSocketMessage(context.Background(), conn, tt.messageType, []byte(tt.data))
			require.Len(t, conn.messages, 1)
			assert.Equal(t, MessageError, conn.messages[0].Type)
			assert.Equal(t, tt.code, conn.messages[0].Code)
			assert.NotEmpty(t, conn.messages[0].RequestID)
		})
	}
}
