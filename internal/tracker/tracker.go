// Package tracker integrates device pose deltas into the pose of a tracked
// rig. Successive valid samples from the tracking source are converted to the
// engine world frame, an offset transform anchors them to a caller-chosen
// start pose, and per-frame position/rotation deltas are applied to the rig
// through a pluggable Mover. A clutch mode suppresses translation and holds
// yaw while letting pitch and roll pass through.
package tracker

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/sitetrace/extension/internal/frames"
	"github.com/sitetrace/extension/pkg/core"
	"github.com/sitetrace/extension/pkg/spatial"
)

// State of the integrator.
type State int

const (
	Uninitialized State = iota
	Tracking
	Clutched
)

func (s State) String() string {
	switch s {
	case Tracking:
		return "tracking"
	case Clutched:
		return "clutched"
	default:
		return "uninitialized"
	}
}

// Mover receives the integrated motion. Implementations may drive a physics
// controller or write a transform directly.
type Mover interface {
	// Pose returns the rig's currently displayed world pose.
	Pose() (r3.Vector, quat.Number)
	// SetPose teleports the rig.
	SetPose(pos r3.Vector, rot quat.Number)
	// Apply moves the rig by a position delta and pre-multiplies a rotation
	// delta.
	Apply(deltaPos r3.Vector, deltaRot quat.Number)
}

// DirectMover is the default Mover: it holds a pose and applies deltas to it
// without any collision response.
type DirectMover struct {
	Position r3.Vector
	Rotation quat.Number
}

// NewDirectMover returns a DirectMover at the origin with no rotation.
func NewDirectMover() *DirectMover {
	return &DirectMover{Rotation: spatial.Identity}
}

func (m *DirectMover) Pose() (r3.Vector, quat.Number) { return m.Position, m.Rotation }

func (m *DirectMover) SetPose(pos r3.Vector, rot quat.Number) {
	m.Position, m.Rotation = pos, rot
}

func (m *DirectMover) Apply(deltaPos r3.Vector, deltaRot quat.Number) {
	m.Position = m.Position.Add(deltaPos)
	m.Rotation = quat.Mul(deltaRot, m.Rotation)
}

// Integrator consumes pose samples for one frame pair and drives a Mover.
// It is not safe for concurrent use; callers must serialize access.
type Integrator struct {
	mover    Mover
	expected core.FramePair

	state   State
	offset  *mat.Dense // world offset applied on top of the converted pose
	prevPos r3.Vector
	prevRot quat.Number

	// lastRaw is the converted (un-offset) matrix of the latest valid
	// sample, kept for re-anchoring.
	lastRaw *mat.Dense

	// bookkeeping
	consecutiveValid int
	lastStatus       core.TrackingStatus
	lastTimestamp    float64
}

// New creates an integrator driving mover from samples of the given frame
// pair. It starts Uninitialized; the first valid sample anchors the rig to
// its current displayed pose.
func New(mover Mover, expected core.FramePair) *Integrator {
	return &Integrator{
		mover:    mover,
		expected: expected,
		offset:   spatial.IdentityMatrix(),
		prevRot:  spatial.Identity,
	}
}

// State returns the integrator state.
func (g *Integrator) State() State { return g.state }

// ConsecutiveValid returns how many valid samples have arrived since the
// last invalid one.
func (g *Integrator) ConsecutiveValid() int { return g.consecutiveValid }

// LastStatus returns the status of the most recent sample seen.
func (g *Integrator) LastStatus() core.TrackingStatus { return g.lastStatus }

// HandlePose consumes one pose sample. Samples for other frame pairs are
// ignored; invalid samples only update bookkeeping.
func (g *Integrator) HandlePose(s core.PoseSample) {
	if !frames.Matches(s, g.expected) {
		return
	}

	g.lastStatus = s.Status
	g.lastTimestamp = s.Timestamp
	if !s.Valid() {
		g.consecutiveValid = 0
		return
	}
	g.consecutiveValid++

	raw := frames.Matrix(s)
	g.lastRaw = raw

	if g.state == Uninitialized {
		pos, rot := g.mover.Pose()
		g.anchor(raw, pos, rot)
		g.state = Tracking
		return
	}

	world := spatial.Mul(g.offset, raw)
	newPos := spatial.TranslationOf(world)
	newRot := spatial.RotationOf(world)

	if g.state == Clutched {
		newPos = g.prevPos
		newRot = spatial.WithYaw(newRot, spatial.Yaw(g.prevRot))
	}

	deltaPos := newPos.Sub(g.prevPos)
	deltaRot := spatial.Delta(newRot, g.prevRot)

	g.prevPos = newPos
	g.prevRot = newRot
	g.mover.Apply(deltaPos, deltaRot)
}

// SetPose teleports the rig to the given world pose and re-anchors the
// offset against the latest raw device pose so the next sample produces no
// jump. Also used internally at first tracking and at clutch release. Before
// any valid sample has arrived it only positions the rig; the anchor is
// established when the first valid sample lands.
func (g *Integrator) SetPose(pos r3.Vector, rot quat.Number) {
	g.mover.SetPose(pos, rot)
	if g.lastRaw == nil {
		return
	}
	g.anchor(g.lastRaw, pos, rot)
}

// anchor sets the offset so that offset*raw equals the desired pose, and
// resets the previous pose to it.
func (g *Integrator) anchor(raw *mat.Dense, pos r3.Vector, rot quat.Number) {
	desired := spatial.PoseMatrix(rot, pos)
	g.offset = spatial.Mul(desired, spatial.Inverse(raw))
	g.prevPos = pos
	g.prevRot = rot
}

// EngageClutch freezes translation and yaw. No-op unless tracking.
func (g *Integrator) EngageClutch() {
	if g.state == Tracking {
		g.state = Clutched
	}
}

// ReleaseClutch resumes full tracking, re-anchoring to the rig's currently
// displayed pose so the release produces no jump.
func (g *Integrator) ReleaseClutch() {
	if g.state != Clutched {
		return
	}
	g.state = Tracking
	pos, rot := g.mover.Pose()
	g.SetPose(pos, rot)
}

// Reset returns the integrator to Uninitialized. Called around the tracking
// service pause/resume lifecycle.
func (g *Integrator) Reset() {
	g.state = Uninitialized
	g.lastRaw = nil
	g.offset = spatial.IdentityMatrix()
	g.prevPos = r3.Vector{}
	g.prevRot = spatial.Identity
	g.consecutiveValid = 0
}
