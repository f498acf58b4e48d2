package core

import (
	"time"

	"github.com/golang/geo/r3"
)

// SiteModel describes the building model being overlaid on the live site.
type SiteModel struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Revision  string    `json:"revision"`
	Units     string    `json:"units"` // model units per meter label, e.g. "m", "mm"
	Origin    r3.Vector `json:"origin"`
	Latitude  float64   `json:"latitude"`  // site geodetic origin, 0 if not georeferenced
	Longitude float64   `json:"longitude"` // site geodetic origin, 0 if not georeferenced
	GridYaw   float64   `json:"gridYaw"`   // radians from grid north to model +Z
}

// Session is one on-site tracking session: device connect through disconnect.
type Session struct {
	ID               uint      `json:"id"`
	SessionKey       string    `json:"sessionKey"` // uuid assigned at start
	SiteName         string    `json:"siteName"`
	Operator         string    `json:"operator"`
	DeviceModel      string    `json:"deviceModel"`
	ServiceVersion   string    `json:"serviceVersion"` // AR service version string
	ExtensionVersion string    `json:"extensionVersion"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	Tag              string    `json:"tag"`
}

// Alignment is the stored result of a completed two-point calibration pass.
// Immutable once computed; a new calibration produces a new record.
type Alignment struct {
	ID          uint      `json:"id"`
	SessionID   uint      `json:"sessionId"`
	Time        time.Time `json:"time"`
	Scale       float64   `json:"scale"`
	Angle       float64   `json:"angle"` // radians, unsigned
	Axis        r3.Vector `json:"axis"`  // cross(modelVec, worldVec), near-vertical
	ModelPoint1 r3.Vector `json:"modelPoint1"`
	WorldPoint1 r3.Vector `json:"worldPoint1"`
	ModelPoint2 r3.Vector `json:"modelPoint2"`
	WorldPoint2 r3.Vector `json:"worldPoint2"`
}

// CalibrationPoint records one confirmed anchor point during calibration.
type CalibrationPoint struct {
	ID        uint      `json:"id"`
	SessionID uint      `json:"sessionId"`
	Time      time.Time `json:"time"`
	Stage     string    `json:"stage"` // calibration state that accepted the point
	Point     r3.Vector `json:"point"`
}

// UploadMetadata describes an exported session file for the web frontend.
type UploadMetadata struct {
	SiteName        string  `json:"siteName"`
	SessionKey      string  `json:"sessionKey"`
	DurationSeconds float64 `json:"durationSeconds"`
	Tag             string  `json:"tag"`
}
