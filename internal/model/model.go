package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&ExtensionInfo{},
	&Site{},
	&Session{},
	&Alignment{},
	&CalibrationPoint{},
	&Annotation{},
	&TrackedPose{},
	&TelemetryEvent{},
	&Performance{},
}

// Vec3 is an embedded xyz column triple in engine world units (meters).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// ExtensionInfo contains information about the recording installation
type ExtensionInfo struct {
	gorm.Model
	CompanyName string `json:"companyName" gorm:"size:127"`
	Website     string `json:"websiteURL" gorm:"size:255"`
	Logo        string `json:"logoURL" gorm:"size:255"`
}

func (*ExtensionInfo) TableName() string {
	return "extension_infos"
}

// Performance is the model for extension performance metrics
type Performance struct {
	Time                time.Time    `json:"time" gorm:"type:timestamptz;index:idx_time"`
	SessionID           uint         `json:"sessionId" gorm:"index:idx_performance_session_id"`
	Session             Session      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	QueueLengths        QueueLengths `json:"queueLengths" gorm:"embedded;embeddedPrefix:queue_"`
	LastWriteDurationMs float32      `json:"lastWriteDurationMs"`
}

func (*Performance) TableName() string {
	return "performances"
}

// QueueLengths is the model for pending write queue depths
type QueueLengths struct {
	TrackedPoses      uint16 `json:"trackedPoses"`
	Annotations       uint16 `json:"annotations"`
	CalibrationPoints uint16 `json:"calibrationPoints"`
	TelemetryEvents   uint16 `json:"telemetryEvents"`
}

////////////////////////
// SITE AND SESSION
////////////////////////

// Site is the building model/venue a session surveys
type Site struct {
	gorm.Model
	Name      string        `json:"name" gorm:"size:127;index:idx_site_name"`
	Revision  string        `json:"revision" gorm:"size:64"`
	Units     string        `json:"units" gorm:"size:16"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	GridYaw   float64       `json:"gridYaw"`
	Location  geom.Geometry `json:"-"` // projected site origin, EPSG:3857
}

func (*Site) TableName() string {
	return "sites"
}

// Session is one on-site tracking session from device connect to disconnect
type Session struct {
	gorm.Model
	SessionKey       string    `json:"sessionKey" gorm:"size:64;index:idx_session_key"`
	SiteID           uint      `json:"siteId" gorm:"index:idx_session_site_id"`
	Site             Site      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SiteID;"`
	Operator         string    `json:"operator" gorm:"size:127"`
	DeviceModel      string    `json:"deviceModel" gorm:"size:127"`
	ServiceVersion   string    `json:"serviceVersion" gorm:"size:64"`
	ExtensionVersion string    `json:"extensionVersion" gorm:"size:64"`
	StartTime        time.Time `json:"startTime" gorm:"type:timestamptz;index:idx_session_start"`
	EndTime          time.Time `json:"endTime" gorm:"type:timestamptz"`
	Tag              string    `json:"tag" gorm:"size:127"`
}

func (*Session) TableName() string {
	return "sessions"
}

////////////////////////
// CALIBRATION
////////////////////////

// Alignment is one completed two-point calibration result
type Alignment struct {
	gorm.Model
	SessionID   uint      `json:"sessionId" gorm:"index:idx_alignment_session_id"`
	Session     Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time        time.Time `json:"time" gorm:"type:timestamptz;"`
	Scale       float64   `json:"scale"`
	Angle       float64   `json:"angle"`
	Axis        Vec3      `json:"axis" gorm:"embedded;embeddedPrefix:axis_"`
	ModelPoint1 Vec3      `json:"modelPoint1" gorm:"embedded;embeddedPrefix:model1_"`
	WorldPoint1 Vec3      `json:"worldPoint1" gorm:"embedded;embeddedPrefix:world1_"`
	ModelPoint2 Vec3      `json:"modelPoint2" gorm:"embedded;embeddedPrefix:model2_"`
	WorldPoint2 Vec3      `json:"worldPoint2" gorm:"embedded;embeddedPrefix:world2_"`
}

func (*Alignment) TableName() string {
	return "alignments"
}

// CalibrationPoint is one confirmed anchor pick during the calibration flow
type CalibrationPoint struct {
	gorm.Model
	SessionID uint      `json:"sessionId" gorm:"index:idx_calibration_session_id"`
	Time      time.Time `json:"time" gorm:"type:timestamptz;"`
	Stage     string    `json:"stage" gorm:"size:32"`
	Point     Vec3      `json:"point" gorm:"embedded;embeddedPrefix:point_"`
}

func (*CalibrationPoint) TableName() string {
	return "calibration_points"
}

////////////////////////
// RECORDING
////////////////////////

// Annotation is a pin dropped on the site model
type Annotation struct {
	gorm.Model
	SessionID   uint          `json:"sessionId" gorm:"index:idx_annotation_session_id"`
	Time        time.Time     `json:"time" gorm:"type:timestamptz;"`
	ModelAnchor Vec3          `json:"modelAnchor" gorm:"embedded;embeddedPrefix:anchor_"`
	Text        string        `json:"text" gorm:"size:512"`
	Open        bool          `json:"open"`
	Location    geom.Geometry `json:"-"` // projected anchor, EPSG:3857, when georeferenced
}

func (*Annotation) TableName() string {
	return "annotations"
}

// TrackedPose is one sample of the rig's integrated world pose.
// Time-series data; no gorm.Model to keep rows narrow.
type TrackedPose struct {
	ID        uint      `json:"-" gorm:"primarykey"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_tracked_pose_session_id"`
	Time      time.Time `json:"time" gorm:"type:timestamptz;index:idx_tracked_pose_time"`
	Timestamp float64   `json:"timestamp"` // source clock, seconds
	Position  Vec3      `json:"position" gorm:"embedded;embeddedPrefix:pos_"`
	Yaw       float64   `json:"yaw"`
	Clutched  bool      `json:"clutched"`
}

func (*TrackedPose) TableName() string {
	return "tracked_poses"
}

// TelemetryEvent is a named measurement with free-form values
type TelemetryEvent struct {
	gorm.Model
	SessionID uint           `json:"sessionId" gorm:"index:idx_telemetry_session_id"`
	Time      time.Time      `json:"time" gorm:"type:timestamptz;"`
	Name      string         `json:"name" gorm:"size:127"`
	Values    datatypes.JSON `json:"values" gorm:"type:jsonb;default:'{}'"`
}

func (*TelemetryEvent) TableName() string {
	return "telemetry_events"
}
