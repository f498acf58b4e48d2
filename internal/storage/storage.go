// internal/storage/storage.go
package storage

import "github.com/sitetrace/extension/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(session *core.Session, site *core.SiteModel) error
	EndSession() error

	// Calibration recording
	SaveAlignment(a *core.Alignment) error
	RecordCalibrationPoint(p *core.CalibrationPoint) error

	// Annotation recording (AddAnnotation assigns an ID to the passed pointer)
	AddAnnotation(a *core.Annotation) error
	ToggleAnnotation(a *core.Annotation) error

	// Trail recording
	RecordTrackedPose(p *core.TrackedPose) error
	RecordTelemetryEvent(e *core.TelemetryEvent) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the SiteTrace web frontend.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
