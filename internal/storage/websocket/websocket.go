// Package websocket streams session data live to the SiteTrace web server
// instead of persisting it locally.
package websocket

import (
	"log/slog"

	"github.com/sitetrace/extension/pkg/core"
	"github.com/sitetrace/extension/pkg/streaming"
)

// AckMessage is the server acknowledgement routed by the read loop.
type AckMessage = streaming.AckMessage

// Config holds the live streaming endpoint settings.
type Config struct {
	URL    string
	Secret string
}

// Backend implements storage.Backend over a WebSocket. It is not
// storage.Uploadable: the server already has the data.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a streaming backend logging through the given logger. A nil
// logger falls back to slog.Default.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Init connects to the streaming endpoint.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the streaming endpoint.
func (b *Backend) Close() error {
	return b.conn.close()
}

// stream pushes a fire-and-forget message to the write loop.
func (b *Backend) stream(msgType string, payload any) error {
	data, err := streaming.Encode(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// streamAcked sends a message and blocks until the server acknowledges it.
func (b *Backend) streamAcked(msgType string, payload any) error {
	data, err := streaming.Encode(msgType, payload)
	if err != nil {
		return err
	}
	return b.conn.sendAndWait(data, msgType, ackTimeout)
}

// StartSession opens the live session on the server and caches the frame
// so a reconnect can reattach to the same session.
func (b *Backend) StartSession(session *core.Session, site *core.SiteModel) error {
	data, err := streaming.Encode(streaming.TypeStartSession,
		streaming.StartSessionPayload{Session: session, Site: site})
	if err != nil {
		return err
	}
	b.conn.setReplay(data)
	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession closes the live session. The replay cache is cleared even on
// error so a reconnect never reopens a finished session.
func (b *Backend) EndSession() error {
	err := b.streamAcked(streaming.TypeEndSession, nil)
	b.conn.clearReplay()
	return err
}

// SaveAlignment streams a completed calibration result and waits for the
// server ack so the frontend switches to aligned display before the trail
// resumes.
func (b *Backend) SaveAlignment(a *core.Alignment) error {
	return b.streamAcked(streaming.TypeAlignment, a)
}

func (b *Backend) RecordCalibrationPoint(p *core.CalibrationPoint) error {
	return b.stream(streaming.TypeCalibrationPoint, p)
}

func (b *Backend) AddAnnotation(a *core.Annotation) error {
	return b.stream(streaming.TypeAnnotation, a)
}

func (b *Backend) ToggleAnnotation(a *core.Annotation) error {
	return b.stream(streaming.TypeToggleAnnotation, a)
}

func (b *Backend) RecordTrackedPose(p *core.TrackedPose) error {
	return b.stream(streaming.TypeTrackedPose, p)
}

func (b *Backend) RecordTelemetryEvent(e *core.TelemetryEvent) error {
	return b.stream(streaming.TypeTelemetry, e)
}
