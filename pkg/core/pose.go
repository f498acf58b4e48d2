package core

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// TrackingStatus reports the validity of a pose sample as declared by the
// motion tracking source.
type TrackingStatus uint8

const (
	StatusInvalid TrackingStatus = iota
	StatusInitializing
	StatusValid
)

func (s TrackingStatus) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInitializing:
		return "initializing"
	default:
		return "invalid"
	}
}

// FrameRef identifies a coordinate frame known to the tracking source.
type FrameRef uint8

const (
	FrameTrackingOrigin FrameRef = iota
	FrameDevice
	FrameAreaMap
	FrameCameraColor
	FrameCameraDepth
)

func (f FrameRef) String() string {
	switch f {
	case FrameTrackingOrigin:
		return "tracking_origin"
	case FrameDevice:
		return "device"
	case FrameAreaMap:
		return "area_map"
	case FrameCameraColor:
		return "camera_color"
	case FrameCameraDepth:
		return "camera_depth"
	default:
		return "unknown"
	}
}

// FramePair identifies which two coordinate frames a pose sample relates:
// Target expressed relative to Base.
type FramePair struct {
	Base   FrameRef `json:"base"`
	Target FrameRef `json:"target"`
}

// DeviceFromOrigin is the frame pair the delta integrator consumes by default:
// the device pose relative to the tracking service origin.
var DeviceFromOrigin = FramePair{Base: FrameTrackingOrigin, Target: FrameDevice}

// DeviceFromAreaMap relates the device to a previously learned area map.
var DeviceFromAreaMap = FramePair{Base: FrameAreaMap, Target: FrameDevice}

// PoseSample is one pose reading from the tracking source. Timestamps are
// seconds on the source's monotonic clock. Orientation must be a unit
// quaternion; the source guarantees normalization and consumers do not
// re-check it.
type PoseSample struct {
	Timestamp   float64        `json:"timestamp"`
	Translation r3.Vector      `json:"translation"`
	Orientation quat.Number    `json:"orientation"`
	Status      TrackingStatus `json:"status"`
	Frames      FramePair      `json:"frames"`
}

// Valid reports whether the sample carries usable tracking data.
func (p PoseSample) Valid() bool {
	return p.Status == StatusValid
}
