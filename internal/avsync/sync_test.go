package avsync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/timing"
)

func secs(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func TestSelectStrategy(t *testing.T) {
	frame := Options{}.FramePeriod()
	tests := []struct {
		drift time.Duration
		want  Strategy
	}{
		{0, None},
		{20 * time.Millisecond, None},
		{-20 * time.Millisecond, None},
		{frame, VolumeAutomation},
		{secs(0.2), VolumeAutomation},
		{secs(-0.999), VolumeAutomation},
		{secs(1.0), VisualTransition},
		{secs(-3), VisualTransition},
		{secs(5.0), VisualTransition},
		{secs(6.0), TrimVideo},
		{secs(-6.0), TrimVideo},
	}
	for _, tt := range tests {
		t.Run(tt.drift.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, SelectStrategy(tt.drift, frame))
		})
	}
}

func TestCompensate(t *testing.T) {
	t.Run("one second long audio gets a visual transition", func(t *testing.T) {
		c, err := Compensate(timing.Identity(secs(61)), timing.Identity(secs(60)), Options{})
		require.NoError(t, err)
		assert.Equal(t, VisualTransition, c.Strategy)
		assert.Equal(t, secs(1), c.Offset)
		assert.Less(t, c.Residual.Abs(), c.Tolerance)
		assert.Equal(t, secs(61), c.At, "nothing removed, edit at the tail")
	})

	t.Run("small drift uses volume automation", func(t *testing.T) {
		c, err := Compensate(timing.Identity(secs(60.2)), timing.Identity(secs(60)), Options{})
		require.NoError(t, err)
		assert.Equal(t, VolumeAutomation, c.Strategy)
		assert.Equal(t, secs(-0.2), c.AudioAdjust)
		assert.Zero(t, c.VideoAdjust)
		assert.Zero(t, c.Residual)
		assert.Equal(t, DefaultFade, c.Fade)
	})

	t.Run("large drift trims longer video", func(t *testing.T) {
		c, err := Compensate(timing.Identity(secs(60)), timing.Identity(secs(66)), Options{FrameRate: 25})
		require.NoError(t, err)
		assert.Equal(t, TrimVideo, c.Strategy)
		assert.Equal(t, secs(-6), c.VideoAdjust)
		assert.Equal(t, 40*time.Millisecond, c.Tolerance)
	})

	t.Run("large drift with shorter video is uncompensable", func(t *testing.T) {
		_, err := Compensate(timing.Identity(secs(66)), timing.Identity(secs(60)), Options{})
		require.ErrorIs(t, err, ErrUncompensable)
		var se *SyncError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, TrimVideo, se.Strategy)
		assert.Equal(t, secs(6), se.Drift)
	})

	t.Run("forced fallback closes the gap", func(t *testing.T) {
		c, err := Compensate(timing.Identity(secs(66)), timing.Identity(secs(60)), Options{Force: VisualTransition})
		require.NoError(t, err)
		assert.Equal(t, VisualTransition, c.Strategy)
		assert.Less(t, c.Residual.Abs(), c.Tolerance)
	})

	t.Run("capped trim leaves drift", func(t *testing.T) {
		_, err := Compensate(timing.Identity(secs(60)), timing.Identity(secs(70)),
			Options{MaxVideoTrim: 8 * time.Second})
		assert.ErrorIs(t, err, ErrDriftExceeded)
	})

	t.Run("forced none with real drift", func(t *testing.T) {
		_, err := Compensate(timing.Identity(secs(62)), timing.Identity(secs(60)), Options{Force: None})
		assert.ErrorIs(t, err, ErrDriftExceeded)
	})

	t.Run("within a frame", func(t *testing.T) {
		c, err := Compensate(timing.Identity(secs(60.01)), timing.Identity(secs(60)), Options{})
		require.NoError(t, err)
		assert.Equal(t, None, c.Strategy)
	})

	t.Run("placed at the largest removal", func(t *testing.T) {
		am := timing.NewBuilder(1000).
			Keep(10000).Remove(500, timing.SilenceTrimmed).
			Keep(10000).Remove(4000, timing.SilenceTrimmed).
			Keep(10000).Build()
		c, err := Compensate(am, timing.Identity(secs(28)), Options{})
		require.NoError(t, err)
		assert.Equal(t, VisualTransition, c.Strategy)
		assert.Equal(t, secs(20), c.At)
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := Compensate(nil, timing.Identity(time.Second), Options{})
		assert.ErrorIs(t, err, ErrInvalidOptions)
		_, err = Compensate(timing.Identity(time.Second), timing.Identity(time.Second), Options{FrameRate: -1})
		assert.ErrorIs(t, err, ErrInvalidOptions)
		_, err = Compensate(timing.Identity(time.Second), timing.Identity(time.Second), Options{Force: "speed_up"})
		assert.ErrorIs(t, err, ErrInvalidOptions)
	})
}

func TestCompensationJSON(t *testing.T) {
	c, err := Compensate(timing.Identity(secs(61)), timing.Identity(secs(60)), Options{})
	require.NoError(t, err)
	b, err := json.Marshal(c)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "visual_transition", got["strategy"])
	assert.InDelta(t, 1.0, got["offset"], 1e-9)
	assert.InDelta(t, 60.0, got["video_duration"], 1e-9)
}

func TestApplyVolumeAutomation(t *testing.T) {
	const rate = 1000
	ones := func(n int) *audio.Buffer {
		buf, err := audio.NewBuffer(2, n, rate)
		require.NoError(t, err)
		for ch := range buf.Samples {
			for i := range buf.Samples[ch] {
				buf.Samples[ch][i] = 1
			}
		}
		return buf
	}

	t.Run("trims long audio under a fade", func(t *testing.T) {
		buf := ones(10200)
		c, err := Compensate(timing.Identity(buf.Duration()), timing.Identity(10*time.Second), Options{})
		require.NoError(t, err)

		out, err := ApplyVolumeAutomation(buf, c)
		require.NoError(t, err)
		assert.Equal(t, 10*time.Second, out.Duration())
		assert.Equal(t, float32(1), out.Samples[1][9499])
		assert.Less(t, out.Samples[1][9999], float32(0.001))
		for i := 9501; i < 10000; i++ {
			require.LessOrEqual(t, out.Samples[0][i], out.Samples[0][i-1])
		}
	})

	t.Run("pads short audio with silence", func(t *testing.T) {
		buf := ones(9700)
		c, err := Compensate(timing.Identity(buf.Duration()), timing.Identity(10*time.Second), Options{Fade: 100 * time.Millisecond})
		require.NoError(t, err)

		out, err := ApplyVolumeAutomation(buf, c)
		require.NoError(t, err)
		require.Equal(t, 10000, out.Frames())
		assert.Equal(t, float32(1), out.Samples[0][9599])
		assert.Less(t, out.Samples[0][9699], float32(0.001))
		assert.Zero(t, out.Samples[0][9800])
	})

	t.Run("other strategies leave audio alone", func(t *testing.T) {
		buf := ones(100)
		out, err := ApplyVolumeAutomation(buf, &Compensation{Strategy: VisualTransition})
		require.NoError(t, err)
		assert.Same(t, buf, out)
	})
}
