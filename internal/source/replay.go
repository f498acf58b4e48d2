package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sitetrace/extension/pkg/core"
)

// replayLine is one recorded sample. Exactly one of the fields is set.
type replayLine struct {
	Pose  *core.PoseSample `json:"pose,omitempty"`
	Depth *core.DepthFrame `json:"depth,omitempty"`
}

// ReplaySource feeds slots from a recorded JSONL session file, pacing by the
// timestamp gaps in the recording. Used for development and regression work
// without a device.
type ReplaySource struct {
	path   string
	speed  float64
	slots  *Slots
	logger *slog.Logger

	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewReplaySource replays path at the given speed multiple (1.0 = realtime,
// 0 = as fast as possible).
func NewReplaySource(path string, speed float64, slots *Slots, logger *slog.Logger) *ReplaySource {
	return &ReplaySource{
		path:   path,
		speed:  speed,
		slots:  slots,
		logger: logger,
		doneCh: make(chan struct{}),
	}
}

func (s *ReplaySource) Name() string { return "replay" }

// Start opens the recording and begins replay in the background.
func (s *ReplaySource) Start(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx, f)
	return nil
}

func (s *ReplaySource) run(ctx context.Context, f *os.File) {
	defer close(s.doneCh)
	defer f.Close()

	var prevTS float64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var line replayLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			s.logger.Warn("Skipping malformed replay line", "error", err)
			continue
		}

		switch {
		case line.Pose != nil:
			s.pace(ctx, line.Pose.Timestamp, &prevTS)
			s.slots.Pose.Put(*line.Pose)
		case line.Depth != nil:
			s.pace(ctx, line.Depth.Timestamp, &prevTS)
			s.slots.Depth.Put(*line.Depth)
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Error("Replay read failed", "error", err)
		return
	}
	s.logger.Info("Replay finished", "file", s.path)
}

// pace sleeps out the recorded gap between samples, scaled by speed.
func (s *ReplaySource) pace(ctx context.Context, ts float64, prev *float64) {
	if s.speed > 0 && *prev > 0 && ts > *prev {
		d := time.Duration((ts - *prev) / s.speed * float64(time.Second))
		select {
		case <-ctx.Done():
		case <-time.After(d):
		}
	}
	*prev = ts
}

// Close stops the replay and waits for the reader goroutine.
func (s *ReplaySource) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.doneCh
	}
	return nil
}
