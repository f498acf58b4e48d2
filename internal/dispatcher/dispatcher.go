// Package dispatcher routes engine events to registered handlers. Streams
// are typed: a consumer declares what it handles by calling OnPose, OnDepth,
// OnLifecycle or OnTap at registration time. Nothing is inferred from the
// handler's type at dispatch.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sitetrace/extension/pkg/core"
	"github.com/sitetrace/extension/pkg/spatial"
)

// LifecycleKind enumerates tracking service lifecycle transitions.
type LifecycleKind int

const (
	Connected LifecycleKind = iota
	Paused
	Resumed
	Disconnected
)

func (k LifecycleKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Paused:
		return "paused"
	case Resumed:
		return "resumed"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// LifecycleEvent reports a tracking service lifecycle transition.
type LifecycleEvent struct {
	Kind      LifecycleKind
	Timestamp time.Time
}

// TapEvent is a confirmed user tap, already unprojected into a world ray.
type TapEvent struct {
	Ray       spatial.Ray
	Timestamp time.Time
}

// Handler funcs for each stream.
type (
	PoseFunc      func(core.PoseSample) error
	DepthFunc     func(core.DepthFrame) error
	LifecycleFunc func(LifecycleEvent) error
	TapFunc       func(TapEvent) error
)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// ErrQueueFull is returned by a non-blocking buffered handler when its queue
// is at capacity. The event is dropped and counted.
var ErrQueueFull = errors.New("dispatcher: queue full")

// Dispatcher fans events out to the handlers registered on each stream.
type Dispatcher struct {
	logger Logger

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter

	// Track buffer depths for the gauge callback, keyed by stream/index.
	mu     sync.RWMutex
	queues map[string]func() int

	pose      []PoseFunc
	depth     []DepthFunc
	lifecycle []LifecycleFunc
	tap       []TapFunc
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger: logger,
		queues: make(map[string]func() int),
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for name, depth := range d.queues {
				o.ObserveInt64(d.queueSize, int64(depth()),
					metric.WithAttributes(attribute.String("stream", name)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// OnPose registers a pose sample handler.
func (d *Dispatcher) OnPose(h PoseFunc, opts ...Option) {
	name := fmt.Sprintf("pose/%d", len(d.pose))
	d.pose = append(d.pose, wrap(d, name, h, opts))
}

// OnDepth registers a depth frame handler.
func (d *Dispatcher) OnDepth(h DepthFunc, opts ...Option) {
	name := fmt.Sprintf("depth/%d", len(d.depth))
	d.depth = append(d.depth, wrap(d, name, h, opts))
}

// OnLifecycle registers a lifecycle transition handler.
func (d *Dispatcher) OnLifecycle(h LifecycleFunc, opts ...Option) {
	name := fmt.Sprintf("lifecycle/%d", len(d.lifecycle))
	d.lifecycle = append(d.lifecycle, wrap(d, name, h, opts))
}

// OnTap registers a tap handler.
func (d *Dispatcher) OnTap(h TapFunc, opts ...Option) {
	name := fmt.Sprintf("tap/%d", len(d.tap))
	d.tap = append(d.tap, wrap(d, name, h, opts))
}

// Pose dispatches a sample to every pose handler.
func (d *Dispatcher) Pose(s core.PoseSample) error {
	var errs []error
	for _, h := range d.pose {
		errs = append(errs, h(s))
	}
	return errors.Join(errs...)
}

// Depth dispatches a frame to every depth handler.
func (d *Dispatcher) Depth(f core.DepthFrame) error {
	var errs []error
	for _, h := range d.depth {
		errs = append(errs, h(f))
	}
	return errors.Join(errs...)
}

// Lifecycle dispatches a transition to every lifecycle handler.
func (d *Dispatcher) Lifecycle(e LifecycleEvent) error {
	var errs []error
	for _, h := range d.lifecycle {
		errs = append(errs, h(e))
	}
	return errors.Join(errs...)
}

// Tap dispatches a tap to every tap handler.
func (d *Dispatcher) Tap(e TapEvent) error {
	var errs []error
	for _, h := range d.tap {
		errs = append(errs, h(e))
	}
	return errors.Join(errs...)
}

// HasPoseHandlers reports whether any pose handler is registered. The frame
// loop refuses to start without one.
func (d *Dispatcher) HasPoseHandlers() bool { return len(d.pose) > 0 }

// wrap applies the registration options around a handler.
func wrap[T any](d *Dispatcher, name string, h func(T) error, opts []Option) func(T) error {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.bufferSize > 0 {
		handler = withBuffer(d, name, cfg.bufferSize, cfg.blocking, handler)
	}

	if cfg.logged {
		handler = withLogging(d, name, handler)
	}

	return handler
}

func withBuffer[T any](d *Dispatcher, name string, size int, blocking bool, h func(T) error) func(T) error {
	buffer := make(chan T, size)

	d.mu.Lock()
	d.queues[name] = func() int { return len(buffer) }
	d.mu.Unlock()

	streamAttr := attribute.String("stream", name)

	go func() {
		for e := range buffer {
			if err := h(e); err != nil {
				d.logger.Error("buffered handler failed", "stream", name, "error", err)
			}
			d.processed.Add(context.Background(), 1, metric.WithAttributes(streamAttr))
		}
	}()

	if blocking {
		return func(e T) error {
			buffer <- e
			return nil
		}
	}

	return func(e T) error {
		select {
		case buffer <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(streamAttr))
			return fmt.Errorf("%w: %s", ErrQueueFull, name)
		}
	}
}

func withLogging[T any](d *Dispatcher, name string, h func(T) error) func(T) error {
	return func(e T) error {
		start := time.Now()
		d.logger.Debug("handling event", "stream", name)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "stream", name, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "stream", name, "duration", time.Since(start))
		}

		return err
	}
}
