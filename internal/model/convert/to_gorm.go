// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"time"

	"github.com/golang/geo/r3"
	"github.com/sitetrace/extension/internal/model"
	"github.com/sitetrace/extension/pkg/core"
	"gorm.io/datatypes"
)

// vecToVec3 converts an r3.Vector to an embedded column triple
func vecToVec3(v r3.Vector) model.Vec3 {
	return model.Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

// valuesToJSON converts a map[string]any to datatypes.JSON for DB storage.
func valuesToJSON(values map[string]any) datatypes.JSON {
	if len(values) == 0 {
		return datatypes.JSON("{}")
	}
	data, _ := json.Marshal(values)
	return datatypes.JSON(data)
}

// CoreToSite converts a core.SiteModel to a GORM model.Site.
func CoreToSite(s core.SiteModel) model.Site {
	return model.Site{
		Name:      s.Name,
		Revision:  s.Revision,
		Units:     s.Units,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		GridYaw:   s.GridYaw,
	}
}

// CoreToSession converts a core.Session to a GORM model.Session.
// The Site foreign key is assigned by the storage layer once the site
// row exists.
func CoreToSession(s core.Session) model.Session {
	return model.Session{
		SessionKey:       s.SessionKey,
		Operator:         s.Operator,
		DeviceModel:      s.DeviceModel,
		ServiceVersion:   s.ServiceVersion,
		ExtensionVersion: s.ExtensionVersion,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		Tag:              s.Tag,
	}
}

// CoreToAlignment converts a core.Alignment to a GORM model.Alignment.
func CoreToAlignment(a core.Alignment) model.Alignment {
	return model.Alignment{
		SessionID:   a.SessionID,
		Time:        a.Time,
		Scale:       a.Scale,
		Angle:       a.Angle,
		Axis:        vecToVec3(a.Axis),
		ModelPoint1: vecToVec3(a.ModelPoint1),
		WorldPoint1: vecToVec3(a.WorldPoint1),
		ModelPoint2: vecToVec3(a.ModelPoint2),
		WorldPoint2: vecToVec3(a.WorldPoint2),
	}
}

// CoreToCalibrationPoint converts a core.CalibrationPoint to a GORM model.CalibrationPoint.
func CoreToCalibrationPoint(p core.CalibrationPoint) model.CalibrationPoint {
	return model.CalibrationPoint{
		SessionID: p.SessionID,
		Time:      p.Time,
		Stage:     p.Stage,
		Point:     vecToVec3(p.Point),
	}
}

// CoreToAnnotation converts a core.Annotation to a GORM model.Annotation.
// The projected Location column is filled by the storage layer when the
// site is georeferenced.
func CoreToAnnotation(a core.Annotation) model.Annotation {
	return model.Annotation{
		SessionID:   a.SessionID,
		Time:        a.Time,
		ModelAnchor: vecToVec3(a.ModelAnchor),
		Text:        a.Text,
		Open:        a.Open,
	}
}

// CoreToTrackedPose converts a core.TrackedPose to a GORM model.TrackedPose.
// at is the wall-clock receive time; Timestamp stays on the source clock.
func CoreToTrackedPose(p core.TrackedPose, at time.Time) model.TrackedPose {
	return model.TrackedPose{
		SessionID: p.SessionID,
		Time:      at,
		Timestamp: p.Timestamp,
		Position:  vecToVec3(p.Position),
		Yaw:       p.Yaw,
		Clutched:  p.Clutched,
	}
}

// CoreToTelemetryEvent converts a core.TelemetryEvent to a GORM model.TelemetryEvent.
func CoreToTelemetryEvent(e core.TelemetryEvent) model.TelemetryEvent {
	return model.TelemetryEvent{
		SessionID: e.SessionID,
		Time:      e.Time,
		Name:      e.Name,
		Values:    valuesToJSON(e.Values),
	}
}
