package silence

import (
	"math"
	"testing"
	"time"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/stretchr/testify/require"
)

const testRate = 16000

// part is one stretch of a synthetic take: a tone when toneDB is set,
// otherwise low-level noise at noiseDB.
type part struct {
	dur     time.Duration
	toneDB  float64
	noiseDB float64
}

func speech(d time.Duration) part { return part{dur: d, toneDB: -20} }
func room(d time.Duration) part   { return part{dur: d, noiseDB: -70} }

// synth renders parts into a mono buffer. Noise comes from a fixed-seed LCG
// so results are deterministic.
func synth(t *testing.T, parts ...part) *audio.Buffer {
	t.Helper()
	total := 0
	for _, p := range parts {
		total += audio.DurationToFrames(p.dur, testRate)
	}
	buf, err := audio.NewBuffer(1, total, testRate)
	require.NoError(t, err)

	state := uint32(12345)
	noise := func() float64 {
		state = state*1664525 + 1013904223
		return float64(state)/float64(math.MaxUint32)*2 - 1
	}

	pos := 0
	for _, p := range parts {
		n := audio.DurationToFrames(p.dur, testRate)
		for i := 0; i < n; i++ {
			var v float64
			if p.toneDB != 0 {
				v = audio.DBToLinear(p.toneDB) * math.Sin(2*math.Pi*220*float64(pos+i)/testRate)
			} else if p.noiseDB != 0 {
				v = audio.DBToLinear(p.noiseDB) * noise()
			}
			buf.Samples[0][pos+i] = float32(v)
		}
		pos += n
	}
	return buf
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func requireContiguous(t *testing.T, regions []Region, total int) {
	t.Helper()
	require.NotEmpty(t, regions)
	require.Equal(t, 0, regions[0].StartFrame)
	for i := 1; i < len(regions); i++ {
		require.Equal(t, regions[i-1].EndFrame, regions[i].StartFrame, "gap before region %d", i)
	}
	require.Equal(t, total, regions[len(regions)-1].EndFrame)
}
