package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitetrace/extension/pkg/core"
	"github.com/sitetrace/extension/pkg/streaming"
)

// testServer creates an httptest server that upgrades to WebSocket,
// records received messages, and acks the session-scoped message types.
func testServer(t *testing.T) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			switch env.Type {
			case streaming.TypeStartSession, streaming.TypeEndSession, streaming.TypeAlignment:
				ack := AckMessage{Type: "ack", For: env.Type}
				data, _ := json.Marshal(ack)
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	messages []streaming.Envelope
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStartAndEndSession(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "test"}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	session := &core.Session{SessionKey: "abcd", Tag: "Survey"}
	site := &core.SiteModel{Name: "North Tower"}
	require.NoError(t, b.StartSession(session, site))

	require.NoError(t, b.EndSession())

	msgs := ml.all()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, streaming.TypeStartSession, msgs[0].Type)
	assert.Equal(t, streaming.TypeEndSession, msgs[len(msgs)-1].Type)
}

func TestFireAndForgetMessages(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "s"}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	session := &core.Session{SessionKey: "s"}
	site := &core.SiteModel{Name: "Site"}
	require.NoError(t, b.StartSession(session, site))

	require.NoError(t, b.RecordCalibrationPoint(&core.CalibrationPoint{Stage: "await_model_point_1"}))
	require.NoError(t, b.AddAnnotation(&core.Annotation{Text: "crack"}))
	require.NoError(t, b.ToggleAnnotation(&core.Annotation{ID: 1, Open: false}))
	require.NoError(t, b.RecordTrackedPose(&core.TrackedPose{Timestamp: 1}))
	require.NoError(t, b.RecordTelemetryEvent(&core.TelemetryEvent{Name: "pose_rate"}))

	require.NoError(t, b.EndSession())

	// Give a moment for all messages to arrive at server.
	time.Sleep(50 * time.Millisecond)

	msgs := ml.all()

	types := make(map[string]int)
	for _, m := range msgs {
		types[m.Type]++
	}

	assert.Equal(t, 1, types[streaming.TypeStartSession])
	assert.Equal(t, 1, types[streaming.TypeEndSession])
	assert.Equal(t, 1, types[streaming.TypeCalibrationPoint])
	assert.Equal(t, 1, types[streaming.TypeAnnotation])
	assert.Equal(t, 1, types[streaming.TypeToggleAnnotation])
	assert.Equal(t, 1, types[streaming.TypeTrackedPose])
	assert.Equal(t, 1, types[streaming.TypeTelemetry])
}

func TestSaveAlignmentWaitsForAck(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "s"}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.SaveAlignment(&core.Alignment{Scale: 2.0}))

	msgs := ml.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, streaming.TypeAlignment, msgs[0].Type)

	var decoded core.Alignment
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &decoded))
	assert.Equal(t, 2.0, decoded.Scale)
}

func TestNewThreadsLoggerThrough(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := New(Config{URL: "ws://localhost:1"}, logger)
	assert.Same(t, logger, b.conn.logger)

	fallback := New(Config{URL: "ws://localhost:1"}, nil)
	assert.Same(t, slog.Default(), fallback.conn.logger)
}

func TestEnvelopeSerialization(t *testing.T) {
	data, err := streaming.Encode(streaming.TypeStartSession, streaming.StartSessionPayload{
		Session: &core.Session{SessionKey: "abcd"},
		Site:    &core.SiteModel{Name: "North Tower"},
	})
	require.NoError(t, err)

	var decoded streaming.Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, streaming.TypeStartSession, decoded.Type)

	var sp streaming.StartSessionPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &sp))
	assert.Equal(t, "abcd", sp.Session.SessionKey)
	assert.Equal(t, "North Tower", sp.Site.Name)
}
