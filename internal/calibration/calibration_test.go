package calibration

import (
	"errors"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"github.com/sitetrace/extension/internal/align"
	"github.com/sitetrace/extension/pkg/core"
	"github.com/sitetrace/extension/pkg/spatial"
)

// planeSurface hits a fixed point, or misses when told to.
type planeSurface struct {
	hits []r3.Vector
	miss bool
	i    int
}

func (p *planeSurface) Raycast(spatial.Ray) (r3.Vector, bool) {
	if p.miss {
		return r3.Vector{}, false
	}
	hit := p.hits[p.i%len(p.hits)]
	p.i++
	return hit, true
}

type fixedDepth struct {
	hits []r3.Vector
	err  error
	i    int
}

func (d *fixedDepth) HitTest(spatial.Ray) (core.DepthHit, error) {
	if d.err != nil {
		return core.DepthHit{}, d.err
	}
	hit := d.hits[d.i%len(d.hits)]
	d.i++
	return core.DepthHit{Point: hit}, nil
}

// fakeClock hands out times a full debounce apart unless told otherwise.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func newTestSession(t *testing.T, surface Surface, depth DepthSource, opts ...Option) *Session {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1000, 0), step: time.Second}
	opts = append([]Option{WithClock(clock.now)}, opts...)
	return NewSession(surface, depth, opts...)
}

func TestFlowAdvancesThroughAllStates(t *testing.T) {
	surface := &planeSurface{hits: []r3.Vector{{X: 0}, {X: 2}}}
	depth := &fixedDepth{hits: []r3.Vector{{X: 10}, {X: 16}}}

	var stages []State
	s := newTestSession(t, surface, depth,
		WithPointRecorder(func(stage State, _ r3.Vector) { stages = append(stages, stage) }))

	want := []State{AwaitModelPoint1, AwaitWorldPoint1, AwaitModelPoint2, AwaitWorldPoint2}
	for i, st := range want {
		if s.State() != st {
			t.Fatalf("step %d: state = %v, want %v", i, s.State(), st)
		}
		if err := s.Confirm(spatial.Ray{}); err != nil {
			t.Fatalf("step %d: Confirm() error: %v", i, err)
		}
	}
	if s.State() != Completed {
		t.Fatalf("state after four confirmations = %v, want completed", s.State())
	}

	res := s.Result()
	if res == nil {
		t.Fatal("Result() = nil after completion")
	}
	if res.Scale != 3.0 {
		t.Errorf("Scale = %v, want 3.0", res.Scale)
	}
	if len(stages) != 4 {
		t.Errorf("recorded %d points, want 4", len(stages))
	}
	for i, st := range stages {
		if st != want[i] {
			t.Errorf("recorded stage %d = %v, want %v", i, st, want[i])
		}
	}

	if err := s.Confirm(spatial.Ray{}); !errors.Is(err, ErrCompleted) {
		t.Errorf("Confirm() after completion = %v, want ErrCompleted", err)
	}
}

func TestDebounceRegistersOnce(t *testing.T) {
	surface := &planeSurface{hits: []r3.Vector{{X: 1}}}
	clock := &fakeClock{t: time.Unix(1000, 0), step: 100 * time.Millisecond}
	s := NewSession(surface, &fixedDepth{hits: []r3.Vector{{}}}, WithClock(clock.now))

	if err := s.Confirm(spatial.Ray{}); err != nil {
		t.Fatalf("first Confirm() error: %v", err)
	}
	// 100 ms later: the same physical press.
	for i := 0; i < 3; i++ {
		if err := s.Confirm(spatial.Ray{}); !errors.Is(err, ErrDebounced) {
			t.Fatalf("rapid Confirm() %d = %v, want ErrDebounced", i, err)
		}
	}
	if s.State() != AwaitWorldPoint1 {
		t.Errorf("state = %v, want await_world_point_1 after one accepted press", s.State())
	}

	// A press past the window is accepted.
	clock.step = 600 * time.Millisecond
	if err := s.Confirm(spatial.Ray{}); err != nil {
		t.Errorf("spaced Confirm() error: %v", err)
	}
	if s.State() != AwaitModelPoint2 {
		t.Errorf("state = %v, want await_model_point_2", s.State())
	}
}

func TestSurfaceMissDoesNotAdvance(t *testing.T) {
	surface := &planeSurface{miss: true}
	s := newTestSession(t, surface, &fixedDepth{hits: []r3.Vector{{}}})

	if err := s.Confirm(spatial.Ray{}); !errors.Is(err, ErrNoSurfaceHit) {
		t.Fatalf("Confirm() = %v, want ErrNoSurfaceHit", err)
	}
	if s.State() != AwaitModelPoint1 {
		t.Errorf("state = %v, want await_model_point_1 after miss", s.State())
	}

	surface.miss = false
	surface.hits = []r3.Vector{{X: 1}}
	if err := s.Confirm(spatial.Ray{}); err != nil {
		t.Errorf("Confirm() after re-aim error: %v", err)
	}
	if s.State() != AwaitWorldPoint1 {
		t.Errorf("state = %v, want await_world_point_1", s.State())
	}
}

func TestDepthErrorDoesNotAdvance(t *testing.T) {
	surface := &planeSurface{hits: []r3.Vector{{X: 1}}}
	depth := &fixedDepth{err: errors.New("no depth data")}
	s := newTestSession(t, surface, depth)

	if err := s.Confirm(spatial.Ray{}); err != nil {
		t.Fatalf("model point Confirm() error: %v", err)
	}
	if err := s.Confirm(spatial.Ray{}); err == nil {
		t.Fatal("Confirm() with failing depth source succeeded")
	}
	if s.State() != AwaitWorldPoint1 {
		t.Errorf("state = %v, want await_world_point_1 after depth failure", s.State())
	}
}

func TestDegenerateFinalPointRetries(t *testing.T) {
	// Model points coincide horizontally only after projection would be fine;
	// here the world points coincide, which surfaces at the final solve.
	surface := &planeSurface{hits: []r3.Vector{{X: 0}, {X: 2}}}
	depth := &fixedDepth{hits: []r3.Vector{{X: 5}, {X: 5}, {X: 9}}}
	s := newTestSession(t, surface, depth)

	for i := 0; i < 3; i++ {
		if err := s.Confirm(spatial.Ray{}); err != nil {
			t.Fatalf("Confirm() %d error: %v", i, err)
		}
	}
	if err := s.Confirm(spatial.Ray{}); !errors.Is(err, align.ErrDegenerateAnchors) {
		t.Fatalf("degenerate final Confirm() = %v, want ErrDegenerateAnchors", err)
	}
	if s.State() != AwaitWorldPoint2 {
		t.Fatalf("state = %v, want await_world_point_2 for retry", s.State())
	}
	if s.Result() != nil {
		t.Fatal("Result() non-nil after failed solve")
	}

	// A better pick completes the flow.
	if err := s.Confirm(spatial.Ray{}); err != nil {
		t.Fatalf("retry Confirm() error: %v", err)
	}
	if s.State() != Completed {
		t.Errorf("state = %v, want completed", s.State())
	}
	if got := s.Result().Scale; got != 2.0 {
		t.Errorf("Scale = %v, want 2.0", got)
	}
}

func TestStateStrings(t *testing.T) {
	for st, want := range map[State]string{
		AwaitModelPoint1: "await_model_point_1",
		AwaitWorldPoint2: "await_world_point_2",
		Completed:        "completed",
	} {
		if st.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int(st), st.String(), want)
		}
	}
}
