// internal/storage/memory/memory.go
package memory

import (
	"sync"

	"github.com/sitetrace/extension/internal/config"
	"github.com/sitetrace/extension/internal/geo"
	"github.com/sitetrace/extension/pkg/core"
)

// Backend stores session data in memory and exports to JSON on EndSession
type Backend struct {
	cfg     config.MemoryConfig
	geo     *geo.Reference
	session *core.Session
	site    *core.SiteModel

	alignments        []core.Alignment
	calibrationPoints []core.CalibrationPoint
	annotations       map[uint]*core.Annotation // keyed by assigned ID
	trail             []core.TrackedPose
	telemetry         []core.TelemetryEvent

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend. geoRef may be nil when the site is not
// georeferenced.
func New(cfg config.MemoryConfig, geoRef *geo.Reference) *Backend {
	return &Backend{
		cfg:         cfg,
		geo:         geoRef,
		annotations: make(map[uint]*core.Annotation),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(session *core.Session, site *core.SiteModel) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = session
	b.site = site

	// Reset all collections
	b.alignments = nil
	b.calibrationPoints = nil
	b.annotations = make(map[uint]*core.Annotation)
	b.trail = nil
	b.telemetry = nil
	b.idCounter = 0

	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil
	}
	return b.exportJSON()
}

// SaveAlignment records a completed calibration result
func (b *Backend) SaveAlignment(a *core.Alignment) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	a.ID = b.idCounter
	b.alignments = append(b.alignments, *a)
	return nil
}

// RecordCalibrationPoint records a confirmed anchor pick
func (b *Backend) RecordCalibrationPoint(p *core.CalibrationPoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	p.ID = b.idCounter
	b.calibrationPoints = append(b.calibrationPoints, *p)
	return nil
}

// AddAnnotation registers a new annotation and assigns its ID
func (b *Backend) AddAnnotation(a *core.Annotation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	a.ID = b.idCounter

	stored := *a
	b.annotations[a.ID] = &stored
	return nil
}

// ToggleAnnotation stores the annotation's new open state
func (b *Backend) ToggleAnnotation(a *core.Annotation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if stored, ok := b.annotations[a.ID]; ok {
		stored.Open = a.Open
	}
	return nil
}

// GetAnnotation looks up an annotation by its assigned ID
func (b *Backend) GetAnnotation(id uint) (*core.Annotation, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if a, ok := b.annotations[id]; ok {
		copied := *a
		return &copied, true
	}
	return nil, false
}

// RecordTrackedPose appends a pose to the session trail
func (b *Backend) RecordTrackedPose(p *core.TrackedPose) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trail = append(b.trail, *p)
	return nil
}

// RecordTelemetryEvent records a telemetry event
func (b *Backend) RecordTelemetryEvent(e *core.TelemetryEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.telemetry = append(b.telemetry, *e)
	return nil
}

// TrailLen returns the number of recorded trail poses
func (b *Backend) TrailLen() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.trail)
}
