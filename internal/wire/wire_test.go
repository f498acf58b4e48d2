package wire

import (
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"

	"github.com/sitetrace/extension/pkg/core"
)

func samplePose() core.PoseSample {
	return core.PoseSample{
		Timestamp:   12.5,
		Translation: r3.Vector{X: 1, Y: -2, Z: 3.25},
		Orientation: quat.Number{Real: 0.5, Imag: 0.5, Jmag: -0.5, Kmag: 0.5},
		Status:      core.StatusValid,
		Frames:      core.DeviceFromOrigin,
	}
}

func TestPoseRoundTrip(t *testing.T) {
	want := samplePose()
	got, err := DecodePose(EncodePose(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodePoseRejectsShortBuffer(t *testing.T) {
	buf := EncodePose(samplePose())
	for _, n := range []int{0, 3, 4, PoseRecordSize - 1} {
		_, err := DecodePose(buf[:n])
		assert.ErrorIs(t, err, ErrShortBuffer, "length %d", n)
	}
}

func TestDecodePoseRejectsBadMagic(t *testing.T) {
	buf := EncodePose(samplePose())
	buf[0] ^= 0xff
	_, err := DecodePose(buf)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodePoseRejectsBadValues(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		buf := EncodePose(samplePose())
		buf[68] = 200
		_, err := DecodePose(buf)
		assert.ErrorIs(t, err, ErrBadStatus)
	})
	t.Run("frame", func(t *testing.T) {
		buf := EncodePose(samplePose())
		buf[70] = 99
		_, err := DecodePose(buf)
		assert.ErrorIs(t, err, ErrBadFrame)
	})
}

func TestDepthRoundTrip(t *testing.T) {
	want := core.DepthFrame{
		Timestamp: 99.75,
		Points: []r3.Vector{
			{X: 1, Y: 2, Z: 3},
			{X: -0.5, Y: 0.25, Z: 8},
		},
	}
	got, err := DecodeDepth(EncodeDepth(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeDepthOwnsItsPoints(t *testing.T) {
	buf := EncodeDepth(core.DepthFrame{Points: []r3.Vector{{X: 7}}})
	frame, err := DecodeDepth(buf)
	require.NoError(t, err)

	// Corrupting the source buffer afterwards must not change the decoded
	// frame.
	for i := range buf {
		buf[i] = 0
	}
	assert.Equal(t, r3.Vector{X: 7}, frame.Points[0])
}

func TestDecodeDepthRejectsDeclaredLengthOverrun(t *testing.T) {
	buf := EncodeDepth(core.DepthFrame{Points: make([]r3.Vector, 3)})
	// Claim more points than the buffer carries.
	buf[12] = 200
	_, err := DecodeDepth(buf)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestDecodeDepthRejectsHugeCount(t *testing.T) {
	buf := EncodeDepth(core.DepthFrame{})
	buf[12], buf[13], buf[14], buf[15] = 0xff, 0xff, 0xff, 0xff
	_, err := DecodeDepth(buf)
	assert.ErrorIs(t, err, ErrTooManyPoints)
}

func TestPeek(t *testing.T) {
	m, err := Peek(EncodePose(samplePose()))
	require.NoError(t, err)
	assert.Equal(t, PoseMagic, m)

	m, err = Peek(EncodeDepth(core.DepthFrame{}))
	require.NoError(t, err)
	assert.Equal(t, DepthMagic, m)

	_, err = Peek([]byte{1, 2})
	assert.True(t, errors.Is(err, ErrShortBuffer))

	_, err = Peek([]byte{9, 9, 9, 9})
	assert.ErrorIs(t, err, ErrBadMagic)
}
