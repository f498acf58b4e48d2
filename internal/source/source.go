// Package source ingests pose and depth streams from the AR engine and hands
// them to the frame loop through last-value-wins slots. Transports cover a
// WebSocket feed, an MQTT feed, file replay, and a scripted mock; all of them
// decode the wire format at the boundary and publish owned values.
package source

import (
	"context"

	"github.com/sitetrace/extension/pkg/core"
)

// Slots are the hand-off points between a source's transport goroutines and
// the frame loop.
type Slots struct {
	Pose  Slot[core.PoseSample]
	Depth Slot[core.DepthFrame]
}

// Source is a running ingest transport. Start returns once the transport is
// connected and feeding the slots; Close stops it.
type Source interface {
	Name() string
	Start(ctx context.Context) error
	Close() error
}
