// Package wire decodes the fixed-layout little-endian records the AR engine
// streams across the process boundary. Every decode validates magic, length
// and value ranges, and copies into owned structs; nothing retains or aliases
// the input buffer.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/sitetrace/extension/pkg/core"
)

const (
	// PoseMagic tags a pose record: "STP1" little-endian.
	PoseMagic uint32 = 0x31505453
	// DepthMagic tags a depth frame record: "STD1" little-endian.
	DepthMagic uint32 = 0x31445453

	// PoseRecordSize is the fixed size of an encoded pose record: magic,
	// timestamp, translation (3 x f64), orientation (x y z w, 4 x f64),
	// status byte, base/target frame bytes.
	PoseRecordSize = 4 + 8 + 3*8 + 4*8 + 3

	// depthHeaderSize covers magic, timestamp and the point count.
	depthHeaderSize = 4 + 8 + 4
	// depthPointSize is one packed xyz float32 triple.
	depthPointSize = 3 * 4

	// MaxDepthPoints bounds the declared point count. The densest depth
	// camera frame is well under this; anything larger is a corrupt length.
	MaxDepthPoints = 1 << 20
)

var (
	ErrShortBuffer   = errors.New("wire: buffer shorter than declared record")
	ErrBadMagic      = errors.New("wire: unknown record magic")
	ErrBadStatus     = errors.New("wire: tracking status out of range")
	ErrBadFrame      = errors.New("wire: frame reference out of range")
	ErrTooManyPoints = errors.New("wire: depth point count exceeds limit")
)

// DecodePose decodes one pose record.
func DecodePose(buf []byte) (core.PoseSample, error) {
	if len(buf) < PoseRecordSize {
		return core.PoseSample{}, fmt.Errorf("%w: pose record needs %d bytes, got %d",
			ErrShortBuffer, PoseRecordSize, len(buf))
	}
	if m := binary.LittleEndian.Uint32(buf); m != PoseMagic {
		return core.PoseSample{}, fmt.Errorf("%w: %#08x", ErrBadMagic, m)
	}

	f64 := func(off int) float64 {
		return math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	}

	status := buf[68]
	if status > uint8(core.StatusValid) {
		return core.PoseSample{}, fmt.Errorf("%w: %d", ErrBadStatus, status)
	}
	base, target := buf[69], buf[70]
	if base > uint8(core.FrameCameraDepth) || target > uint8(core.FrameCameraDepth) {
		return core.PoseSample{}, fmt.Errorf("%w: base=%d target=%d", ErrBadFrame, base, target)
	}

	return core.PoseSample{
		Timestamp:   f64(4),
		Translation: r3.Vector{X: f64(12), Y: f64(20), Z: f64(28)},
		Orientation: quat.Number{
			Imag: f64(36), Jmag: f64(44), Kmag: f64(52), Real: f64(60),
		},
		Status: core.TrackingStatus(status),
		Frames: core.FramePair{
			Base:   core.FrameRef(base),
			Target: core.FrameRef(target),
		},
	}, nil
}

// EncodePose encodes a pose record. Used by the replay tooling and tests.
func EncodePose(s core.PoseSample) []byte {
	buf := make([]byte, PoseRecordSize)
	binary.LittleEndian.PutUint32(buf, PoseMagic)

	put := func(off int, v float64) {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
	}
	put(4, s.Timestamp)
	put(12, s.Translation.X)
	put(20, s.Translation.Y)
	put(28, s.Translation.Z)
	put(36, s.Orientation.Imag)
	put(44, s.Orientation.Jmag)
	put(52, s.Orientation.Kmag)
	put(60, s.Orientation.Real)
	buf[68] = uint8(s.Status)
	buf[69] = uint8(s.Frames.Base)
	buf[70] = uint8(s.Frames.Target)
	return buf
}

// DecodeDepth decodes one depth frame record. The returned points slice is
// freshly allocated.
func DecodeDepth(buf []byte) (core.DepthFrame, error) {
	if len(buf) < depthHeaderSize {
		return core.DepthFrame{}, fmt.Errorf("%w: depth header needs %d bytes, got %d",
			ErrShortBuffer, depthHeaderSize, len(buf))
	}
	if m := binary.LittleEndian.Uint32(buf); m != DepthMagic {
		return core.DepthFrame{}, fmt.Errorf("%w: %#08x", ErrBadMagic, m)
	}

	n := binary.LittleEndian.Uint32(buf[12:])
	if n > MaxDepthPoints {
		return core.DepthFrame{}, fmt.Errorf("%w: %d", ErrTooManyPoints, n)
	}
	need := depthHeaderSize + int(n)*depthPointSize
	if len(buf) < need {
		return core.DepthFrame{}, fmt.Errorf("%w: %d points need %d bytes, got %d",
			ErrShortBuffer, n, need, len(buf))
	}

	frame := core.DepthFrame{
		Timestamp: math.Float64frombits(binary.LittleEndian.Uint64(buf[4:])),
		Points:    make([]r3.Vector, n),
	}
	for i := range frame.Points {
		off := depthHeaderSize + i*depthPointSize
		frame.Points[i] = r3.Vector{
			X: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))),
			Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4:]))),
			Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off+8:]))),
		}
	}
	return frame, nil
}

// EncodeDepth encodes a depth frame record.
func EncodeDepth(f core.DepthFrame) []byte {
	buf := make([]byte, depthHeaderSize+len(f.Points)*depthPointSize)
	binary.LittleEndian.PutUint32(buf, DepthMagic)
	binary.LittleEndian.PutUint64(buf[4:], math.Float64bits(f.Timestamp))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(f.Points)))
	for i, p := range f.Points {
		off := depthHeaderSize + i*depthPointSize
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(p.X)))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(float32(p.Y)))
		binary.LittleEndian.PutUint32(buf[off+8:], math.Float32bits(float32(p.Z)))
	}
	return buf
}

// Peek reports which record type starts the buffer without decoding it.
func Peek(buf []byte) (uint32, error) {
	if len(buf) < 4 {
		return 0, ErrShortBuffer
	}
	m := binary.LittleEndian.Uint32(buf)
	switch m {
	case PoseMagic, DepthMagic:
		return m, nil
	}
	return 0, fmt.Errorf("%w: %#08x", ErrBadMagic, m)
}
