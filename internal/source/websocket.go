package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/sitetrace/extension/internal/wire"
)

const (
	wsMaxReconnect = 10
	wsMaxBackoff   = 30 * time.Second
)

// WebSocketSource reads binary wire records from the engine's streaming
// endpoint. A dropped connection is redialed with exponential backoff; the
// engine resends its state on reconnect so nothing is replayed from our side.
type WebSocketSource struct {
	rawURL string
	secret string
	slots  *Slots
	logger *slog.Logger

	mu     sync.Mutex
	conn   *ws.Conn
	done   chan struct{}
	closed bool
}

// NewWebSocketSource creates a source for the given endpoint. The secret is
// passed as a query parameter, matching the engine's handshake.
func NewWebSocketSource(rawURL, secret string, slots *Slots, logger *slog.Logger) *WebSocketSource {
	return &WebSocketSource{
		rawURL: rawURL,
		secret: secret,
		slots:  slots,
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (s *WebSocketSource) Name() string { return "websocket" }

// Start dials the endpoint and begins feeding the slots.
func (s *WebSocketSource) Start(ctx context.Context) error {
	conn, err := s.dialOnce(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go s.readLoop()
	return nil
}

func (s *WebSocketSource) dialOnce(ctx context.Context) (*ws.Conn, error) {
	u, err := url.Parse(s.rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", s.secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (s *WebSocketSource) readLoop() {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		msgType, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Warn("WebSocket read error", "error", err)
			go s.reconnect()
			return
		}
		if msgType != ws.BinaryMessage {
			continue
		}
		s.dispatch(message)
	}
}

// dispatch decodes one record and publishes it. Decode errors are logged and
// the record dropped; a corrupt frame must not take the stream down.
func (s *WebSocketSource) dispatch(message []byte) {
	magic, err := wire.Peek(message)
	if err != nil {
		s.logger.Warn("Unrecognized record from engine", "error", err)
		return
	}
	switch magic {
	case wire.PoseMagic:
		sample, err := wire.DecodePose(message)
		if err != nil {
			s.logger.Warn("Bad pose record", "error", err)
			return
		}
		s.slots.Pose.Put(sample)
	case wire.DepthMagic:
		frame, err := wire.DecodeDepth(message)
		if err != nil {
			s.logger.Warn("Bad depth record", "error", err)
			return
		}
		s.slots.Depth.Put(frame)
	}
}

func (s *WebSocketSource) reconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	backoff := time.Second
	for attempt := 1; attempt <= wsMaxReconnect; attempt++ {
		select {
		case <-s.done:
			return
		default:
		}

		s.logger.Info("Reconnecting to engine stream", "attempt", attempt, "backoff", backoff)
		time.Sleep(backoff)

		conn, err := s.dialOnce(context.Background())
		if err != nil {
			s.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > wsMaxBackoff {
				backoff = wsMaxBackoff
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		s.logger.Info("Engine stream reconnected", "attempt", attempt)
		go s.readLoop()
		return
	}

	s.logger.Error("Engine stream reconnect failed after max attempts", "maxAttempts", wsMaxReconnect)
}

// Close shuts the connection down.
func (s *WebSocketSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
		return conn.Close()
	}
	return nil
}
