// Package calibration walks an operator through the two-point alignment flow:
// model anchor 1, world anchor 1, model anchor 2, world anchor 2, in that
// order, one confirmed point per state. Completing the fourth point runs the
// alignment solver exactly once. The flow never moves backwards; starting
// over means constructing a new Session.
package calibration

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/r3"

	"github.com/sitetrace/extension/internal/align"
	"github.com/sitetrace/extension/pkg/core"
	"github.com/sitetrace/extension/pkg/spatial"
)

// State of the calibration flow.
type State int

const (
	AwaitModelPoint1 State = iota
	AwaitWorldPoint1
	AwaitModelPoint2
	AwaitWorldPoint2
	Completed
)

func (s State) String() string {
	switch s {
	case AwaitModelPoint1:
		return "await_model_point_1"
	case AwaitWorldPoint1:
		return "await_world_point_1"
	case AwaitModelPoint2:
		return "await_model_point_2"
	case AwaitWorldPoint2:
		return "await_world_point_2"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultDebounce is the minimum interval between accepted confirmations.
// Engine input surfaces fire several times per frame for one physical press;
// anything inside this window is the same press.
const DefaultDebounce = 500 * time.Millisecond

var (
	// ErrDebounced rejects a confirmation arriving too soon after the last
	// accepted one. Not a failure; the caller simply ignores it.
	ErrDebounced = errors.New("calibration: confirmation within debounce window")

	// ErrNoSurfaceHit means the model raycast missed. The operator re-aims
	// and confirms again; the state does not advance.
	ErrNoSurfaceHit = errors.New("calibration: ray missed the model surface")

	// ErrCompleted rejects confirmations after the flow has finished.
	ErrCompleted = errors.New("calibration: session already completed")
)

// Surface hit-tests rays against the building model geometry.
type Surface interface {
	Raycast(ray spatial.Ray) (r3.Vector, bool)
}

// DepthSource resolves a ray against the scanned environment, typically by
// fitting a plane to the depth cloud around the hit.
type DepthSource interface {
	HitTest(ray spatial.Ray) (core.DepthHit, error)
}

// PointFunc observes each accepted anchor point, for recording.
type PointFunc func(stage State, p r3.Vector)

// Option configures a Session.
type Option func(*Session)

// WithDebounce overrides the confirmation debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.debounce = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithPointRecorder registers a callback invoked for every accepted point.
func WithPointRecorder(fn PointFunc) Option {
	return func(s *Session) { s.onPoint = fn }
}

// Session is one pass through the calibration flow. Not safe for concurrent
// use; the frame loop is its sole caller.
type Session struct {
	surface  Surface
	depth    DepthSource
	debounce time.Duration
	now      func() time.Time
	onPoint  PointFunc

	state       State
	lastConfirm time.Time
	anchors     align.Anchors
	result      *align.Result
}

// NewSession starts a calibration flow against the given model surface and
// depth source.
func NewSession(surface Surface, depth DepthSource, opts ...Option) *Session {
	s := &Session{
		surface:  surface,
		depth:    depth,
		debounce: DefaultDebounce,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current flow state.
func (s *Session) State() State { return s.state }

// Result returns the solved alignment, or nil before completion.
func (s *Session) Result() *align.Result { return s.result }

// Anchors returns the points accepted so far. Entries for states not yet
// reached are zero.
func (s *Session) Anchors() align.Anchors { return s.anchors }

// Confirm processes one confirmation press aimed along ray. Model states
// raycast the model surface, world states query the depth source. A miss or
// a degenerate final geometry leaves the state unchanged so the operator can
// re-aim and confirm again.
func (s *Session) Confirm(ray spatial.Ray) error {
	if s.state == Completed {
		return ErrCompleted
	}

	now := s.now()
	if !s.lastConfirm.IsZero() && now.Sub(s.lastConfirm) < s.debounce {
		return ErrDebounced
	}

	var p r3.Vector
	switch s.state {
	case AwaitModelPoint1, AwaitModelPoint2:
		hit, ok := s.surface.Raycast(ray)
		if !ok {
			return ErrNoSurfaceHit
		}
		p = hit
	case AwaitWorldPoint1, AwaitWorldPoint2:
		hit, err := s.depth.HitTest(ray)
		if err != nil {
			return fmt.Errorf("calibration: world point hit test: %w", err)
		}
		p = hit.Point
	}

	// The fourth point completes the flow; solve before committing so a
	// degenerate pick can be retried in place.
	if s.state == AwaitWorldPoint2 {
		anchors := s.anchors
		anchors.World2 = p
		res, err := align.Solve(anchors)
		if err != nil {
			s.lastConfirm = now
			return err
		}
		s.anchors = anchors
		s.result = &res
		s.lastConfirm = now
		s.accept(AwaitWorldPoint2, p)
		s.state = Completed
		return nil
	}

	switch s.state {
	case AwaitModelPoint1:
		s.anchors.Model1 = p
	case AwaitWorldPoint1:
		s.anchors.World1 = p
	case AwaitModelPoint2:
		s.anchors.Model2 = p
	}
	s.lastConfirm = now
	s.accept(s.state, p)
	s.state++
	return nil
}

func (s *Session) accept(stage State, p r3.Vector) {
	if s.onPoint != nil {
		s.onPoint(stage, p)
	}
}
