package source

import (
	"context"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/sitetrace/extension/pkg/core"
	"github.com/sitetrace/extension/pkg/spatial"
)

// MockSource synthesizes a device walking a circle at sensor rate, for
// development without a device or a recording. Samples are emitted in the
// tracking source's own convention so the full conversion path is exercised.
type MockSource struct {
	interval time.Duration
	radius   float64
	slots    *Slots

	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewMockSource emits a sample every interval, walking a circle of the given
// radius in meters.
func NewMockSource(interval time.Duration, radius float64, slots *Slots) *MockSource {
	return &MockSource{
		interval: interval,
		radius:   radius,
		slots:    slots,
		doneCh:   make(chan struct{}),
	}
}

func (s *MockSource) Name() string { return "mock" }

func (s *MockSource) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
	return nil
}

func (s *MockSource) run(ctx context.Context) {
	defer close(s.doneCh)

	// Level device orientation in source terms: a quarter turn about source
	// X. Heading about the source vertical is composed on top.
	level := spatial.FromAxisAngle(r3.Vector{X: 1}, math.Pi/2)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t := now.Sub(start).Seconds()
			theta := t * 0.25 // rad/s around the circle
			s.slots.Pose.Put(core.PoseSample{
				Timestamp: t,
				Translation: r3.Vector{
					X: s.radius * math.Cos(theta),
					Y: s.radius * math.Sin(theta),
				},
				Orientation: quat.Mul(spatial.FromAxisAngle(r3.Vector{Z: 1}, theta), level),
				Status:      core.StatusValid,
				Frames:      core.DeviceFromOrigin,
			})
		}
	}
}

func (s *MockSource) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.doneCh
	}
	return nil
}
