// Package convert provides functions to convert GORM models to core models
package convert

import (
	"encoding/json"

	"github.com/golang/geo/r3"
	"github.com/sitetrace/extension/internal/model"
	"github.com/sitetrace/extension/pkg/core"
)

// vec3ToVec converts an embedded column triple back to an r3.Vector
func vec3ToVec(v model.Vec3) r3.Vector {
	return r3.Vector{X: v.X, Y: v.Y, Z: v.Z}
}

// SiteToCore converts a GORM Site to a core.SiteModel.
func SiteToCore(s model.Site) core.SiteModel {
	return core.SiteModel{
		ID:        s.ID,
		Name:      s.Name,
		Revision:  s.Revision,
		Units:     s.Units,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		GridYaw:   s.GridYaw,
	}
}

// SessionToCore converts a GORM Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	return core.Session{
		ID:               s.ID,
		SessionKey:       s.SessionKey,
		SiteName:         s.Site.Name,
		Operator:         s.Operator,
		DeviceModel:      s.DeviceModel,
		ServiceVersion:   s.ServiceVersion,
		ExtensionVersion: s.ExtensionVersion,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		Tag:              s.Tag,
	}
}

// AlignmentToCore converts a GORM Alignment to a core.Alignment.
func AlignmentToCore(a model.Alignment) core.Alignment {
	return core.Alignment{
		ID:          a.ID,
		SessionID:   a.SessionID,
		Time:        a.Time,
		Scale:       a.Scale,
		Angle:       a.Angle,
		Axis:        vec3ToVec(a.Axis),
		ModelPoint1: vec3ToVec(a.ModelPoint1),
		WorldPoint1: vec3ToVec(a.WorldPoint1),
		ModelPoint2: vec3ToVec(a.ModelPoint2),
		WorldPoint2: vec3ToVec(a.WorldPoint2),
	}
}

// CalibrationPointToCore converts a GORM CalibrationPoint to a core.CalibrationPoint.
func CalibrationPointToCore(p model.CalibrationPoint) core.CalibrationPoint {
	return core.CalibrationPoint{
		ID:        p.ID,
		SessionID: p.SessionID,
		Time:      p.Time,
		Stage:     p.Stage,
		Point:     vec3ToVec(p.Point),
	}
}

// AnnotationToCore converts a GORM Annotation to a core.Annotation.
func AnnotationToCore(a model.Annotation) core.Annotation {
	return core.Annotation{
		ID:          a.ID,
		SessionID:   a.SessionID,
		Time:        a.Time,
		ModelAnchor: vec3ToVec(a.ModelAnchor),
		Text:        a.Text,
		Open:        a.Open,
	}
}

// TrackedPoseToCore converts a GORM TrackedPose to a core.TrackedPose.
func TrackedPoseToCore(p model.TrackedPose) core.TrackedPose {
	return core.TrackedPose{
		ID:        p.ID,
		SessionID: p.SessionID,
		Timestamp: p.Timestamp,
		Position:  vec3ToVec(p.Position),
		Yaw:       p.Yaw,
		Clutched:  p.Clutched,
	}
}

// TelemetryEventToCore converts a GORM TelemetryEvent to a core.TelemetryEvent.
func TelemetryEventToCore(e model.TelemetryEvent) core.TelemetryEvent {
	var values map[string]any
	if len(e.Values) > 0 {
		_ = json.Unmarshal(e.Values, &values)
	}

	return core.TelemetryEvent{
		ID:        e.ID,
		SessionID: e.SessionID,
		Time:      e.Time,
		Name:      e.Name,
		Values:    values,
	}
}
