package audio

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuffer(t *testing.T) {
	t.Run("allocates equal channels", func(t *testing.T) {
		buf, err := NewBuffer(2, 480, 48000)
		require.NoError(t, err)
		assert.Equal(t, 2, buf.Channels())
		assert.Equal(t, 480, buf.Frames())
		assert.Equal(t, 10*time.Millisecond, buf.Duration())
		assert.NoError(t, buf.Validate())
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := NewBuffer(0, 10, 48000)
		assert.ErrorIs(t, err, ErrInvalidFormat)
		_, err = NewBuffer(1, 10, 0)
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})

	t.Run("rejects oversize allocation", func(t *testing.T) {
		_, err := NewBuffer(1, MaxFrames+1, 48000)
		assert.ErrorIs(t, err, ErrTooLarge)
	})
}

func TestBufferValidate(t *testing.T) {
	buf := &Buffer{Samples: [][]float32{make([]float32, 10), make([]float32, 9)}, SampleRate: 44100}
	assert.ErrorIs(t, buf.Validate(), ErrChannelLength)
}

func TestBufferSliceAndClone(t *testing.T) {
	buf, err := NewBuffer(1, 10, 1000)
	require.NoError(t, err)
	for i := range buf.Samples[0] {
		buf.Samples[0][i] = float32(i)
	}

	s := buf.Slice(2, 5)
	assert.Equal(t, []float32{2, 3, 4}, s.Samples[0])

	clone := buf.Clone()
	clone.Samples[0][0] = 99
	assert.Equal(t, float32(0), buf.Samples[0][0], "clone must not alias")
	assert.False(t, buf.Equal(clone))

	// out of range bounds clamp rather than panic
	assert.Equal(t, 0, buf.Slice(20, 30).Frames())
}

func TestFrameConversions(t *testing.T) {
	assert.Equal(t, 48000, DurationToFrames(time.Second, 48000))
	assert.Equal(t, 441, DurationToFrames(10*time.Millisecond, 44100))
	assert.Equal(t, 500*time.Millisecond, FramesToDuration(22050, 44100))

	buf, err := NewBuffer(1, 48000, 48000)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, buf.TimeAt(12000))
	assert.Equal(t, 12000, buf.FrameAt(buf.TimeAt(12000)))
	assert.Equal(t, 48000, buf.FrameAt(2*time.Second))
}

func TestLevels(t *testing.T) {
	buf, err := NewBuffer(1, 1000, 1000)
	require.NoError(t, err)
	for i := range buf.Samples[0] {
		buf.Samples[0][i] = 0.5
	}
	assert.InDelta(t, 0.5, buf.RMS(), 1e-9)
	assert.InDelta(t, 0.5, buf.Peak(), 1e-9)
	assert.InDelta(t, -6.0206, LinearToDB(0.5), 1e-3)
	assert.InDelta(t, 0.5, DBToLinear(-6.0206), 1e-4)
	assert.Equal(t, SilenceDB, LinearToDB(0))
	assert.False(t, buf.HasNonFinite())

	buf.Samples[0][10] = float32(math.NaN())
	assert.True(t, buf.HasNonFinite())
}

func TestClippingEvents(t *testing.T) {
	buf := &Buffer{Samples: [][]float32{{0, 1, 1, 1, 0, -1, 0, 0.5}}, SampleRate: 8}
	assert.Equal(t, 2, buf.ClippingEvents())
}
