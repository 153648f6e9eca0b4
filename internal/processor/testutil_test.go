package processor

import (
	"math"
	"testing"
	"time"

	"github.com/linuxmatters/takemaster/internal/audio"
)

const testRate = 48000

// signal describes a synthetic test signal. Segments are concatenated.
type signal struct {
	dur      time.Duration
	toneHz   float64 // 0 = no tone
	toneDB   float64 // tone peak level in dBFS
	noiseDB  float64 // white noise RMS in dBFS, 0 = none
	channels int
}

// generate renders parts into one buffer at testRate. Noise comes from a
// fixed LCG so every run sees the same samples.
func generate(t *testing.T, parts ...signal) *audio.Buffer {
	t.Helper()

	channels := 1
	total := 0
	for _, p := range parts {
		total += audio.DurationToFrames(p.dur, testRate)
		channels = max(channels, p.channels)
	}
	buf, err := audio.NewBuffer(channels, total, testRate)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	seed := uint32(12345)
	next := func() float64 {
		seed = seed*1664525 + 1013904223
		return float64(seed)/float64(math.MaxUint32)*2 - 1
	}

	pos := 0
	for _, p := range parts {
		n := audio.DurationToFrames(p.dur, testRate)
		toneAmp := 0.0
		if p.toneHz > 0 {
			toneAmp = math.Pow(10, p.toneDB/20)
		}
		// uniform noise in [-a, a] has RMS a/sqrt(3)
		noiseAmp := 0.0
		if p.noiseDB < 0 {
			noiseAmp = math.Pow(10, p.noiseDB/20) * math.Sqrt(3)
		}
		for i := range n {
			v := toneAmp * math.Sin(2*math.Pi*p.toneHz*float64(pos+i)/testRate)
			if noiseAmp > 0 {
				v += noiseAmp * next()
			}
			for ch := range buf.Samples {
				buf.Samples[ch][pos+i] = float32(v)
			}
		}
		pos += n
	}
	return buf
}

func tone(d time.Duration, hz, db float64) signal {
	return signal{dur: d, toneHz: hz, toneDB: db}
}

func hiss(d time.Duration, db float64) signal {
	return signal{dur: d, noiseDB: db}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// config builds a Config or fails the test.
func config(t *testing.T, params ...Param) Config {
	t.Helper()
	c, err := NewConfig(params...)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	return c
}

// build constructs a built-in processor or fails the test.
func build(t *testing.T, id FilterID, params ...Param) Processor {
	t.Helper()
	p, err := DefaultRegistry().New(id, config(t, params...))
	if err != nil {
		t.Fatalf("New(%s): %v", id, err)
	}
	return p
}

// rmsDB returns the RMS level of x[start:end] in dBFS.
func rmsDB(x []float32, start, end int) float64 {
	var sum float64
	for _, v := range x[start:end] {
		sum += float64(v) * float64(v)
	}
	return audio.LinearToDB(math.Sqrt(sum / float64(end-start)))
}

func peakOf(x []float32) float64 {
	var p float64
	for _, v := range x {
		p = math.Max(p, math.Abs(float64(v)))
	}
	return p
}
