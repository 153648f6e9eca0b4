package assembly

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linuxmatters/takemaster/internal/audio"
)

const testRate = 48000

// constant returns a mono buffer holding v for n frames at rate.
func constant(t *testing.T, v float32, n, rate int) *audio.Buffer {
	t.Helper()
	buf, err := audio.NewBuffer(1, n, rate)
	require.NoError(t, err)
	for i := range buf.Samples[0] {
		buf.Samples[0][i] = v
	}
	return buf
}

// toneBuffer renders a sine at peak level db, plus deterministic white noise
// at noiseDB RMS when noiseDB < 0.
func toneBuffer(t *testing.T, d time.Duration, hz, db, noiseDB float64) *audio.Buffer {
	t.Helper()
	n := audio.DurationToFrames(d, testRate)
	buf, err := audio.NewBuffer(1, n, testRate)
	require.NoError(t, err)

	seed := uint32(2024)
	amp := 0.0
	if hz > 0 {
		amp = audio.DBToLinear(db)
	}
	noise := 0.0
	if noiseDB < 0 {
		noise = audio.DBToLinear(noiseDB) * math.Sqrt(3)
	}
	for i := range n {
		v := amp * math.Sin(2*math.Pi*hz*float64(i)/testRate)
		if noise > 0 {
			seed = seed*1664525 + 1013904223
			v += noise * (float64(seed)/float64(math.MaxUint32)*2 - 1)
		}
		buf.Samples[0][i] = float32(v)
	}
	return buf
}
