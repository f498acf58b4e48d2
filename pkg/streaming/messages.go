// Package streaming defines the wire protocol between the extension and
// the SiteTrace web server's live session endpoint.
package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/sitetrace/extension/pkg/core"
)

// Message types. The session-scoped ones (start_session, end_session,
// alignment) are acknowledged by the server; the rest are fire-and-forget.
const (
	TypeStartSession     = "start_session"
	TypeEndSession       = "end_session"
	TypeAlignment        = "alignment"
	TypeCalibrationPoint = "calibration_point"
	TypeAnnotation       = "annotation"
	TypeToggleAnnotation = "toggle_annotation"
	TypeTrackedPose      = "tracked_pose"
	TypeTelemetry        = "telemetry"
)

// Envelope wraps every message on the wire.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement. For names the message type
// being acknowledged.
type AckMessage struct {
	Type string `json:"type"`
	For  string `json:"for"`
}

// StartSessionPayload opens a live session on the server.
type StartSessionPayload struct {
	Session *core.Session   `json:"session"`
	Site    *core.SiteModel `json:"site"`
}

// Encode marshals payload into a typed envelope ready to send.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
