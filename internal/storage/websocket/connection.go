package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/sitetrace/extension/pkg/streaming"
)

const (
	sendChSize   = 10_000
	ackChSize    = 16
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

// connection is the transport under the WebSocket backend. One write
// goroutine owns the socket for writing; each dial spawns a fresh pair of
// loops that exit when their socket dies.
type connection struct {
	logger *slog.Logger
	sendCh chan []byte
	ackCh  chan streaming.AckMessage
	done   chan struct{}

	mu        sync.Mutex
	conn      *ws.Conn
	closed    bool
	redialing bool
	replay    []byte

	wsURL  string
	secret string
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		logger: logger,
		sendCh: make(chan []byte, sendChSize),
		ackCh:  make(chan streaming.AckMessage, ackChSize),
		done:   make(chan struct{}),
	}
}

// dial opens the socket and starts the loops.
func (c *connection) dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.open()
	if err != nil {
		return err
	}
	c.attach(conn)
	return nil
}

// open performs one dial with the shared secret as a query parameter.
func (c *connection) open() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *connection) attach(conn *ws.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.writeLoop(conn)
	go c.readLoop(conn)
}

// writeLoop drains sendCh onto conn until the socket fails or the
// connection shuts down. The loop owns conn for writing; a redial starts a
// new loop on the new socket.
func (c *connection) writeLoop(conn *ws.Conn) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				go c.redial(conn)
				return
			}
		}
	}
}

// readLoop routes server acks to ackCh until the socket fails.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("WebSocket read error", "error", err)
				go c.redial(conn)
			}
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			c.logger.Debug("Non-ack message received", "raw", string(message))
			continue
		}

		select {
		case c.ackCh <- ack:
		default:
			c.logger.Debug("Ack channel full, dropping", "for", ack.For)
		}
	}
}

// redial re-establishes the connection with exponential backoff, replaying
// the cached start_session so the server reattaches the live session. Both
// loops report the same dead socket; only the first call proceeds.
func (c *connection) redial(dead *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.redialing {
		c.mu.Unlock()
		return
	}
	c.redialing = true
	if c.conn == dead {
		c.conn = nil
	}
	c.mu.Unlock()
	dead.Close()

	defer func() {
		c.mu.Lock()
		c.redialing = false
		c.mu.Unlock()
	}()

	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		default:
		}

		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		time.Sleep(backoff)

		conn, err := c.open()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		if err := c.replaySession(conn); err != nil {
			c.logger.Warn("Failed to replay start_session after reconnect", "error", err)
			conn.Close()
			continue
		}

		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		c.attach(conn)
		return
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

func (c *connection) replaySession(conn *ws.Conn) error {
	c.mu.Lock()
	cached := c.replay
	c.mu.Unlock()
	if cached == nil {
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(ws.TextMessage, cached)
}

// setReplay caches the start_session frame for reconnect replay.
func (c *connection) setReplay(data []byte) {
	c.mu.Lock()
	c.replay = data
	c.mu.Unlock()
}

func (c *connection) clearReplay() {
	c.setReplay(nil)
}

// send queues data for the write loop without blocking; a full queue drops
// the message.
func (c *connection) send(data []byte) {
	select {
	case c.sendCh <- data:
	default:
		c.logger.Warn("WebSocket send channel full, dropping message")
	}
}

// sendAndWait sends data and blocks until the server acks ackFor or the
// timeout expires.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == ackFor {
				return nil
			}
			// an ack for an earlier message, keep waiting
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// close sends a close frame and stops both loops.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
	return conn.Close()
}
