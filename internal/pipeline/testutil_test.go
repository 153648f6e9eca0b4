package pipeline

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/preset"
)

const testRate = 48000

// testPreset is a light chain so tests stay quick: two filters in Pass 1,
// dead-air trimming in Pass 2 and a short crossfade.
const testPreset = `
name: test
pass1:
  - processor: highpass
    params:
      frequency_hz: 80.0
  - processor: limiter
    params:
      ceiling_db: -1.0
pass2:
  strategy: trim
assembly:
  transition: crossfade
  duration_ms: 40
mastering:
  target_lufs: -16
  eq_preset: flat
`

func loadPreset(t *testing.T, doc string) *preset.Preset {
	t.Helper()
	p, err := preset.Parse([]byte(doc))
	require.NoError(t, err)
	return p
}

// writeTake writes a mono take: room noise, a tone standing in for speech,
// then room noise again. seed varies the noise between takes.
func writeTake(t *testing.T, dir, name string, lead, voice, tail time.Duration, seed uint32) string {
	t.Helper()
	n := func(d time.Duration) int { return audio.DurationToFrames(d, testRate) }
	buf, err := audio.NewBuffer(1, n(lead)+n(voice)+n(tail), testRate)
	require.NoError(t, err)

	state := seed
	noise := func() float64 {
		state = state*1664525 + 1013904223
		return float64(state)/float64(math.MaxUint32)*2 - 1
	}
	floor := audio.DBToLinear(-60)
	level := audio.DBToLinear(-20)
	for i := range buf.Samples[0] {
		v := floor * noise()
		if i >= n(lead) && i < n(lead)+n(voice) {
			v += level * math.Sin(2*math.Pi*220*float64(i)/testRate)
		}
		buf.Samples[0][i] = float32(v)
	}

	path := filepath.Join(dir, name+".wav")
	require.NoError(t, audio.NewWAVCodec().Encode(path, buf))
	return path
}

func decode(t *testing.T, path string) *audio.Buffer {
	t.Helper()
	buf, _, err := audio.NewWAVCodec().Decode(path)
	require.NoError(t, err)
	return buf
}
