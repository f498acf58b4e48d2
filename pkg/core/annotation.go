package core

import (
	"time"

	"github.com/golang/geo/r3"
)

// Annotation is a text note pinned to a point on the model surface. The
// anchor is stored in model space so annotations survive realignment; the
// world position is derived through the current alignment when read.
// Annotations toggle open/closed when re-selected and are never destroyed.
type Annotation struct {
	ID          uint      `json:"id"`
	SessionID   uint      `json:"sessionId"`
	Time        time.Time `json:"time"`
	ModelAnchor r3.Vector `json:"modelAnchor"`
	Text        string    `json:"text"`
	Open        bool      `json:"open"`
}

// TrackedPose is one world-space pose of the tracked rig recorded by the
// frame loop, forming the session's movement trail.
type TrackedPose struct {
	ID        uint      `json:"id"`
	SessionID uint      `json:"sessionId"`
	Timestamp float64   `json:"timestamp"` // source clock, seconds
	Position  r3.Vector `json:"position"`
	Yaw       float64   `json:"yaw"` // radians about vertical
	Clutched  bool      `json:"clutched"`
}

// TelemetryEvent is a generic named measurement recorded during a session
// (sample rates, drop counts, calibration milestones).
type TelemetryEvent struct {
	ID        uint           `json:"id"`
	SessionID uint           `json:"sessionId"`
	Time      time.Time      `json:"time"`
	Name      string         `json:"name"`
	Values    map[string]any `json:"values"`
}
