// Package recorder bridges the dispatcher streams to the domain state and
// the storage backend. It owns the session lifecycle: a Connected event
// opens a session, taps drive calibration and annotation placement, every
// integrated pose is appended to the trail, and Disconnected closes the
// session out.
package recorder

import (
	"errors"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/sitetrace/extension/internal/align"
	"github.com/sitetrace/extension/internal/annotation"
	"github.com/sitetrace/extension/internal/cache"
	"github.com/sitetrace/extension/internal/calibration"
	"github.com/sitetrace/extension/internal/dispatcher"
	"github.com/sitetrace/extension/internal/logging"
	"github.com/sitetrace/extension/internal/session"
	"github.com/sitetrace/extension/internal/storage"
	"github.com/sitetrace/extension/internal/tracker"
	"github.com/sitetrace/extension/pkg/core"
	"github.com/sitetrace/extension/pkg/spatial"
)

// Surface hit-tests rays against the building model geometry. It satisfies
// both the calibration and annotation surface contracts.
type Surface interface {
	Raycast(ray spatial.Ray) (r3.Vector, bool)
}

// Dependencies holds all dependencies needed by the recorder
type Dependencies struct {
	Backend    storage.Backend
	Tracker    *tracker.Integrator
	Rig        tracker.Mover
	Surface    Surface
	LogManager *logging.SlogManager
	SessionCtx *session.Context

	Site        core.SiteModel
	Operator    string
	DeviceModel string
	DefaultTag  string

	ServiceVersion   string
	ExtensionVersion string

	// CalibrationDebounce overrides the confirmation debounce when > 0.
	CalibrationDebounce time.Duration
	// AnnotationTolerance overrides the pin toggle radius when > 0.
	AnnotationTolerance float64
}

// Service processes dispatcher events for one device connection at a time.
type Service struct {
	deps  Dependencies
	depth *depthBuffer
	ids   *cache.AnnotationIDs

	// mu serializes session state and all tracker/rig access between the
	// frame loop and the console commands.
	mu     sync.Mutex
	active bool
	calib  *calibration.Session
	pins   *annotation.Registry

	poseCount    cache.SafeCounter
	invalidCount cache.SafeCounter
}

// NewService creates a new recorder service
func NewService(deps Dependencies) *Service {
	return &Service{
		deps:  deps,
		depth: &depthBuffer{},
		ids:   cache.NewAnnotationIDs(),
	}
}

// Attach registers the recorder on all four dispatcher streams. Depth frames
// are buffered; a burst of clouds must not stall the source read loop.
func (s *Service) Attach(d *dispatcher.Dispatcher) {
	d.OnPose(s.HandlePose)
	d.OnDepth(s.HandleDepth, dispatcher.Buffered(8))
	d.OnLifecycle(s.HandleLifecycle)
	d.OnTap(s.HandleTap)
}

// Active reports whether a session is open.
func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// HandleLifecycle opens and closes sessions around the tracking service
// connection and resets the integrator across a pause.
func (s *Service) HandleLifecycle(e dispatcher.LifecycleEvent) error {
	switch e.Kind {
	case dispatcher.Connected:
		return s.startSession(e.Timestamp)
	case dispatcher.Disconnected:
		return s.endSession(e.Timestamp)
	case dispatcher.Paused:
		s.emit("service_paused", nil)
		return nil
	case dispatcher.Resumed:
		// The tracking origin may have moved while paused. Re-anchor on the
		// next valid sample instead of integrating a bogus delta.
		s.mu.Lock()
		s.deps.Tracker.Reset()
		s.mu.Unlock()
		s.emit("service_resumed", nil)
		return nil
	}
	return nil
}

// HandlePose feeds the integrator and appends the resulting rig pose to the
// session trail. Runs under s.mu: the integrator and mover carry no locking
// of their own, and clutch commands arrive from outside the frame loop.
func (s *Service) HandlePose(p core.PoseSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deps.Tracker.HandlePose(p)

	if !p.Valid() {
		s.invalidCount.Inc()
		return nil
	}

	if !s.active || s.deps.Tracker.State() == tracker.Uninitialized {
		return nil
	}

	pos, rot := s.deps.Rig.Pose()
	s.poseCount.Inc()
	return s.deps.Backend.RecordTrackedPose(&core.TrackedPose{
		Timestamp: p.Timestamp,
		Position:  pos,
		Yaw:       spatial.Yaw(rot),
		Clutched:  s.deps.Tracker.State() == tracker.Clutched,
	})
}

// HandleDepth buffers the latest cloud for calibration hit tests.
func (s *Service) HandleDepth(f core.DepthFrame) error {
	s.depth.Store(f)
	return nil
}

// HandleTap routes a confirmed tap: to the calibration flow while it is
// incomplete, to annotation placement afterwards. Misses and debounced
// presses are expected and only logged.
func (s *Service) HandleTap(e dispatcher.TapEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil
	}

	logger := s.deps.LogManager.Logger()

	if s.calib.State() != calibration.Completed {
		err := s.calib.Confirm(e.Ray)
		switch {
		case err == nil:
		case errors.Is(err, calibration.ErrDebounced):
			return nil
		case errors.Is(err, calibration.ErrNoSurfaceHit),
			errors.Is(err, align.ErrDegenerateAnchors),
			errors.Is(err, ErrNoDepthHit), errors.Is(err, ErrNoDepthData):
			logger.Info("Calibration point rejected", "state", s.calib.State().String(), "error", err)
			return nil
		default:
			return err
		}

		if s.calib.State() == calibration.Completed {
			return s.completeCalibration(e.Timestamp)
		}
		return nil
	}

	_, _, err := s.pins.Place(e.Ray, "")
	if errors.Is(err, annotation.ErrNoSurfaceHit) {
		logger.Debug("Annotation tap missed the model")
		return nil
	}
	return err
}

// completeCalibration persists the solved alignment. Called with s.mu held.
func (s *Service) completeCalibration(at time.Time) error {
	result := s.calib.Result()
	record := result.Record(s.deps.SessionCtx.GetSession().ID, at)
	if err := s.deps.Backend.SaveAlignment(&record); err != nil {
		return err
	}

	s.deps.LogManager.Logger().Info("Calibration completed",
		"scale", result.Scale,
		"angle", result.Angle)
	s.emit("calibration_completed", map[string]any{
		"scale": result.Scale,
		"angle": result.Angle,
	})
	return nil
}

// SetClutch engages or releases the translation clutch on the rig. Commands
// come from the console goroutine; s.mu serializes them with the frame
// handlers, and without an open session there is nothing to clutch.
func (s *Service) SetClutch(engaged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	if engaged {
		s.deps.Tracker.EngageClutch()
		s.emit("clutch_engaged", nil)
		return
	}
	s.deps.Tracker.ReleaseClutch()
	s.emit("clutch_released", nil)
}

// Recalibrate discards the current alignment flow and starts a fresh one.
// The flow itself never moves backwards; starting over is a new session
// object by design of the state machine.
func (s *Service) Recalibrate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.calib = s.newCalibration()
	s.emit("calibration_restarted", nil)
}

func (s *Service) startSession(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return nil
	}

	site := s.deps.Site
	sess := &core.Session{
		SessionKey:       uuid.NewString(),
		SiteName:         site.Name,
		Operator:         s.deps.Operator,
		DeviceModel:      s.deps.DeviceModel,
		ServiceVersion:   s.deps.ServiceVersion,
		ExtensionVersion: s.deps.ExtensionVersion,
		StartTime:        at,
		Tag:              s.deps.DefaultTag,
	}

	if err := s.deps.Backend.StartSession(sess, &site); err != nil {
		return err
	}
	s.deps.SessionCtx.SetSession(sess, &site)

	s.deps.Tracker.Reset()
	s.ids.Reset()
	s.poseCount.Set(0)
	s.invalidCount.Set(0)

	s.calib = s.newCalibration()
	pinOpts := []annotation.Option{
		annotation.WithSession(sess.ID),
		annotation.WithEventRecorder(s.storePin),
	}
	if s.deps.AnnotationTolerance > 0 {
		pinOpts = append(pinOpts, annotation.WithTolerance(s.deps.AnnotationTolerance))
	}
	s.pins = annotation.NewRegistry(s.deps.Surface, pinOpts...)

	s.active = true
	s.deps.LogManager.Logger().Info("Session started",
		"sessionKey", sess.SessionKey,
		"site", site.Name)
	return nil
}

func (s *Service) endSession(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil
	}
	s.active = false

	s.emit("session_summary", map[string]any{
		"trackedPoses":   s.poseCount.Value(),
		"invalidSamples": s.invalidCount.Value(),
		"annotations":    s.pins.Len(),
	})

	sess := s.deps.SessionCtx.GetSession()
	sess.EndTime = at
	err := s.deps.Backend.EndSession()

	s.deps.LogManager.Logger().Info("Session ended",
		"sessionKey", sess.SessionKey,
		"trackedPoses", s.poseCount.Value())

	s.deps.SessionCtx.Clear()
	s.calib = nil
	s.pins = nil
	return err
}

// newCalibration builds a calibration flow recording every accepted point.
// Called with s.mu held.
func (s *Service) newCalibration() *calibration.Session {
	opts := []calibration.Option{
		calibration.WithPointRecorder(s.storeCalibrationPoint),
	}
	if s.deps.CalibrationDebounce > 0 {
		opts = append(opts, calibration.WithDebounce(s.deps.CalibrationDebounce))
	}
	return calibration.NewSession(s.deps.Surface, s.depth, opts...)
}

func (s *Service) storeCalibrationPoint(stage calibration.State, p r3.Vector) {
	err := s.deps.Backend.RecordCalibrationPoint(&core.CalibrationPoint{
		SessionID: s.deps.SessionCtx.GetSession().ID,
		Time:      time.Now(),
		Stage:     stage.String(),
		Point:     p,
	})
	if err != nil {
		s.deps.LogManager.Logger().Error("Failed to record calibration point", "error", err)
	}
}

// storePin persists registry changes. Backends assign their own row IDs on
// insert, so toggles must be translated through the ID cache.
func (s *Service) storePin(a core.Annotation, created bool) {
	logger := s.deps.LogManager.Logger()

	if created {
		stored := a
		if err := s.deps.Backend.AddAnnotation(&stored); err != nil {
			logger.Error("Failed to store annotation", "error", err)
			return
		}
		s.ids.Set(a.ID, stored.ID)
		return
	}

	stored := a
	if id, ok := s.ids.Get(a.ID); ok {
		stored.ID = id
	}
	if err := s.deps.Backend.ToggleAnnotation(&stored); err != nil {
		logger.Error("Failed to toggle annotation", "error", err)
	}
}

// emit records a telemetry event, dropping it with a log line on failure.
func (s *Service) emit(name string, values map[string]any) {
	err := s.deps.Backend.RecordTelemetryEvent(&core.TelemetryEvent{
		SessionID: s.deps.SessionCtx.GetSession().ID,
		Time:      time.Now(),
		Name:      name,
		Values:    values,
	})
	if err != nil {
		s.deps.LogManager.Logger().Error("Failed to record telemetry event", "name", name, "error", err)
	}
}
