// Package loop runs the frame tick. One goroutine drains the ingest slots at
// the configured frame rate and dispatches at most one pose sample and one
// depth frame per tick. Handlers that also take commands from outside the
// loop (the recorder) serialize the shared state themselves.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sitetrace/extension/internal/dispatcher"
	"github.com/sitetrace/extension/internal/source"
)

// DefaultInterval matches a 30 Hz frame rate.
const DefaultInterval = 33 * time.Millisecond

// ErrNoPoseHandlers means nothing is registered to consume pose samples.
// Running the loop anyway would silently discard the whole stream.
var ErrNoPoseHandlers = errors.New("loop: no pose handlers registered")

// Loop drains slots into the dispatcher at frame rate.
type Loop struct {
	interval time.Duration
	slots    *source.Slots
	disp     *dispatcher.Dispatcher
	logger   *slog.Logger

	ticks  atomic.Uint64
	cancel context.CancelFunc
	doneCh chan struct{}
}

// New creates a frame loop over the given slots and dispatcher.
func New(interval time.Duration, slots *source.Slots, disp *dispatcher.Dispatcher, logger *slog.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		interval: interval,
		slots:    slots,
		disp:     disp,
		logger:   logger,
		doneCh:   make(chan struct{}),
	}
}

// Ticks returns the number of completed frame ticks.
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// Start begins ticking in the background.
func (l *Loop) Start(ctx context.Context) error {
	if !l.disp.HasPoseHandlers() {
		return ErrNoPoseHandlers
	}
	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
	return nil
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

// tick drains each slot once. Handler errors are logged, never fatal; the
// next tick carries on with fresh data.
func (l *Loop) tick() {
	if sample, ok := l.slots.Pose.Take(); ok {
		if err := l.disp.Pose(sample); err != nil {
			l.logger.Error("Pose dispatch failed", "error", err)
		}
	}
	if frame, ok := l.slots.Depth.Take(); ok {
		if err := l.disp.Depth(frame); err != nil {
			l.logger.Error("Depth dispatch failed", "error", err)
		}
	}
	l.ticks.Add(1)
}

// Stop halts the loop and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l.cancel != nil {
		l.cancel()
		<-l.doneCh
	}
}
