package annotation

import (
	"errors"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"github.com/sitetrace/extension/internal/align"
	"github.com/sitetrace/extension/pkg/core"
	"github.com/sitetrace/extension/pkg/spatial"
)

type fixedSurface struct {
	hit  r3.Vector
	miss bool
}

func (s *fixedSurface) Raycast(spatial.Ray) (r3.Vector, bool) {
	if s.miss {
		return r3.Vector{}, false
	}
	return s.hit, true
}

func TestPlaceCreatesOpenPin(t *testing.T) {
	surface := &fixedSurface{hit: r3.Vector{X: 1, Z: 2}}
	r := NewRegistry(surface,
		WithSession(7),
		WithClock(func() time.Time { return time.Unix(1234, 0) }))

	a, created, err := r.Place(spatial.Ray{}, "cracked beam")
	if err != nil {
		t.Fatalf("Place() error: %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	if !a.Open {
		t.Error("new pin not open")
	}
	if a.Text != "cracked beam" || a.SessionID != 7 || a.ID != 1 {
		t.Errorf("pin fields = %+v", a)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestPlaceNearExistingToggles(t *testing.T) {
	surface := &fixedSurface{hit: r3.Vector{X: 1}}
	r := NewRegistry(surface)

	if _, _, err := r.Place(spatial.Ray{}, ""); err != nil {
		t.Fatalf("Place() error: %v", err)
	}

	// A second hit inside the tolerance radius toggles instead of creating.
	surface.hit = r3.Vector{X: 1.1}
	a, created, err := r.Place(spatial.Ray{}, "")
	if err != nil {
		t.Fatalf("Place() error: %v", err)
	}
	if created {
		t.Error("created = true, want toggle")
	}
	if a.Open {
		t.Error("pin still open after toggle")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	// Toggling again reopens it.
	a, _, err = r.Place(spatial.Ray{}, "")
	if err != nil {
		t.Fatalf("Place() error: %v", err)
	}
	if !a.Open {
		t.Error("pin closed after second toggle")
	}
}

func TestPlaceOutsideToleranceCreates(t *testing.T) {
	surface := &fixedSurface{hit: r3.Vector{}}
	r := NewRegistry(surface, WithTolerance(0.1))

	if _, _, err := r.Place(spatial.Ray{}, ""); err != nil {
		t.Fatalf("Place() error: %v", err)
	}
	surface.hit = r3.Vector{X: 0.5}
	_, created, err := r.Place(spatial.Ray{}, "")
	if err != nil {
		t.Fatalf("Place() error: %v", err)
	}
	if !created {
		t.Error("hit outside tolerance toggled instead of creating")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestPlaceMiss(t *testing.T) {
	r := NewRegistry(&fixedSurface{miss: true})
	_, _, err := r.Place(spatial.Ray{}, "")
	if !errors.Is(err, ErrNoSurfaceHit) {
		t.Fatalf("Place() = %v, want ErrNoSurfaceHit", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestToggleTargetsNearestPin(t *testing.T) {
	surface := &fixedSurface{hit: r3.Vector{}}
	r := NewRegistry(surface, WithTolerance(1.0))

	r.Place(spatial.Ray{}, "a")
	surface.hit = r3.Vector{X: 1.5}
	r.Place(spatial.Ray{}, "b")

	// Between the two, closer to "b".
	surface.hit = r3.Vector{X: 0.9}
	a, created, err := r.Place(spatial.Ray{}, "")
	if err != nil {
		t.Fatalf("Place() error: %v", err)
	}
	if created {
		t.Fatal("created = true, want toggle")
	}
	if a.Text != "b" {
		t.Errorf("toggled pin %q, want the nearest pin b", a.Text)
	}
}

func TestEventsRecorded(t *testing.T) {
	surface := &fixedSurface{hit: r3.Vector{X: 2}}
	var creates, toggles int
	r := NewRegistry(surface, WithEventRecorder(func(_ core.Annotation, created bool) {
		if created {
			creates++
		} else {
			toggles++
		}
	}))

	r.Place(spatial.Ray{}, "")
	r.Place(spatial.Ray{}, "")
	surface.hit = r3.Vector{X: 10}
	r.Place(spatial.Ray{}, "")

	if creates != 2 || toggles != 1 {
		t.Errorf("creates=%d toggles=%d, want 2 and 1", creates, toggles)
	}
}

func TestWorldAnchorMapsThroughAlignment(t *testing.T) {
	res, err := align.Solve(align.Anchors{
		Model1: r3.Vector{},
		World1: r3.Vector{X: 10},
		Model2: r3.Vector{X: 2},
		World2: r3.Vector{X: 16},
	})
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}
	a := core.Annotation{ModelAnchor: r3.Vector{X: 1}}

	if got := WorldAnchor(a, nil); !spatial.ApproxEqual(got, a.ModelAnchor, 1e-12) {
		t.Errorf("WorldAnchor(nil alignment) = %v, want model anchor", got)
	}
	want := r3.Vector{X: 13}
	if got := WorldAnchor(a, &res); !spatial.ApproxEqual(got, want, 1e-9) {
		t.Errorf("WorldAnchor = %v, want %v", got, want)
	}
}
