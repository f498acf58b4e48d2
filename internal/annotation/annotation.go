// Package annotation keeps the pins an operator drops on the building model.
// Anchors are stored in model space so they survive recalibration; display
// positions are produced by mapping through the current alignment. Pins are
// toggled open/closed, never deleted.
package annotation

import (
	"errors"
	"time"

	"github.com/golang/geo/r3"

	"github.com/sitetrace/extension/internal/align"
	"github.com/sitetrace/extension/pkg/core"
	"github.com/sitetrace/extension/pkg/spatial"
)

// DefaultTolerance is the model-space radius within which a placement ray
// hit toggles an existing pin instead of creating a new one.
const DefaultTolerance = 0.25

// ErrNoSurfaceHit means the placement ray missed the model.
var ErrNoSurfaceHit = errors.New("annotation: ray missed the model surface")

// Surface hit-tests rays against the model and reports model-space points.
type Surface interface {
	Raycast(ray spatial.Ray) (r3.Vector, bool)
}

// EventFunc observes registry changes: created is true for a new pin, false
// for a toggle of an existing one.
type EventFunc func(a core.Annotation, created bool)

// Option configures a Registry.
type Option func(*Registry)

// WithTolerance overrides the toggle radius.
func WithTolerance(tol float64) Option {
	return func(r *Registry) { r.tolerance = tol }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithSession stamps new pins with the given session id.
func WithSession(id uint) Option {
	return func(r *Registry) { r.sessionID = id }
}

// WithEventRecorder registers a callback invoked on every create or toggle.
func WithEventRecorder(fn EventFunc) Option {
	return func(r *Registry) { r.onEvent = fn }
}

// Registry holds the session's annotations. Not safe for concurrent use; the
// frame loop is its sole caller.
type Registry struct {
	surface   Surface
	tolerance float64
	now       func() time.Time
	sessionID uint
	onEvent   EventFunc

	nextID uint
	items  []core.Annotation
}

// NewRegistry creates an empty registry placing pins via surface.
func NewRegistry(surface Surface, opts ...Option) *Registry {
	r := &Registry{
		surface:   surface,
		tolerance: DefaultTolerance,
		now:       time.Now,
		nextID:    1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Place raycasts the model surface. A hit within tolerance of an existing
// pin toggles that pin's open state and returns created=false; otherwise a
// new open pin is created at the hit point.
func (r *Registry) Place(ray spatial.Ray, text string) (core.Annotation, bool, error) {
	hit, ok := r.surface.Raycast(ray)
	if !ok {
		return core.Annotation{}, false, ErrNoSurfaceHit
	}

	if i := r.nearest(hit); i >= 0 {
		r.items[i].Open = !r.items[i].Open
		a := r.items[i]
		r.emit(a, false)
		return a, false, nil
	}

	a := core.Annotation{
		ID:          r.nextID,
		SessionID:   r.sessionID,
		Time:        r.now(),
		ModelAnchor: hit,
		Text:        text,
		Open:        true,
	}
	r.nextID++
	r.items = append(r.items, a)
	r.emit(a, true)
	return a, true, nil
}

// nearest returns the index of the closest pin within tolerance, or -1.
func (r *Registry) nearest(p r3.Vector) int {
	best, bestDist := -1, r.tolerance
	for i, a := range r.items {
		if d := a.ModelAnchor.Sub(p).Norm(); d <= bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Len returns the number of pins.
func (r *Registry) Len() int { return len(r.items) }

// List returns a copy of all pins in creation order.
func (r *Registry) List() []core.Annotation {
	out := make([]core.Annotation, len(r.items))
	copy(out, r.items)
	return out
}

// WorldAnchor maps a pin's model-space anchor through the alignment. With a
// nil alignment the model frame is the world frame.
func WorldAnchor(a core.Annotation, alignment *align.Result) r3.Vector {
	if alignment == nil {
		return a.ModelAnchor
	}
	return alignment.Apply(a.ModelAnchor)
}

func (r *Registry) emit(a core.Annotation, created bool) {
	if r.onEvent != nil {
		r.onEvent(a, created)
	}
}
