package processor

import (
	"context"
	"math"
	"time"

	"github.com/linuxmatters/takemaster/internal/audio"
)

// Declicker finds impulsive clicks as outliers in the second difference of
// the waveform and bridges each one with a straight line.
type Declicker struct {
	base
	sensitivity  float64
	minThreshold float64
	repairMs     float64
}

func newDeclicker(cfg Config) (Processor, error) {
	p := newParams(FilterDeclick, cfg)
	d := &Declicker{
		sensitivity:  p.float("sensitivity", 8, 2, 50),
		minThreshold: p.float("min_threshold", 0.05, 0.001, 1),
		repairMs:     p.float("repair_ms", 2, 0.1, 20),
	}
	d.base = newBase(p)
	return d, p.err
}

// Process repairs buf in place.
func (d *Declicker) Process(_ context.Context, buf *audio.Buffer, _ *Context) (*Result, error) {
	half := max(1, int(d.repairMs/1000*float64(buf.SampleRate)/2))
	var repaired int
	for _, x := range buf.Samples {
		repaired += d.repairChannel(x, half)
	}
	a := d.newAnalysis()
	a.Metrics["clicks_repaired"] = float64(repaired)
	return &Result{Buffer: buf, Analysis: a}, nil
}

func (d *Declicker) repairChannel(x []float32, half int) int {
	n := len(x)
	if n < 3 {
		return 0
	}
	d2 := make([]float64, n)
	var sum float64
	for i := 1; i < n-1; i++ {
		d2[i] = float64(x[i+1]) - 2*float64(x[i]) + float64(x[i-1])
		sum += d2[i] * d2[i]
	}
	rms := math.Sqrt(sum / float64(n-2))
	threshold := max(d.minThreshold, d.sensitivity*rms)

	var count int
	for i := 1; i < n-1; i++ {
		if math.Abs(d2[i]) <= threshold {
			continue
		}
		lo := max(0, i-half)
		hi := min(n-1, i+half)
		a, b := float64(x[lo]), float64(x[hi])
		for j := lo + 1; j < hi; j++ {
			t := float64(j-lo) / float64(hi-lo)
			x[j] = float32(a + (b-a)*t)
		}
		count++
		// the repaired span cannot trigger again
		i = hi
	}
	return count
}

// Depopper attenuates plosive bursts: frames whose low-frequency energy
// jumps sharply and dominates the frame. Over a pop the output crossfades
// towards a high-passed copy, so only content below the cutoff loses level.
type Depopper struct {
	base
	cutoffHz      float64
	frameMs       float64
	jumpDB        float64
	lowRatio      float64
	windowMs      float64
	attenuationDB float64
}

func newDepopper(cfg Config) (Processor, error) {
	p := newParams(FilterDepop, cfg)
	d := &Depopper{
		cutoffHz:      p.float("cutoff_hz", 300, 50, 1000),
		frameMs:       p.float("frame_ms", 10, 2, 50),
		jumpDB:        p.float("jump_db", 12, 3, 40),
		lowRatio:      p.float("low_energy_ratio", 0.8, 0.1, 1),
		windowMs:      p.float("window_ms", 40, 5, 200),
		attenuationDB: p.float("attenuation_db", -12, -40, 0),
	}
	d.base = newBase(p)
	return d, p.err
}

// Process de-pops buf in place.
func (d *Depopper) Process(_ context.Context, buf *audio.Buffer, _ *Context) (*Result, error) {
	low := filtered(buf, Cascade(LowPass(buf.SampleRate, d.cutoffHz, ButterworthQ), 2)...)
	high := filtered(buf, Cascade(HighPass(buf.SampleRate, d.cutoffHz, ButterworthQ), 2)...)
	frame := max(1, audio.DurationToFrames(msDuration(d.frameMs), buf.SampleRate))
	window := audio.DurationToFrames(msDuration(d.windowMs), buf.SampleRate)
	n := buf.Frames()

	// per-frame energies, summed over channels
	frames := (n + frame - 1) / frame
	lowE := make([]float64, frames)
	allE := make([]float64, frames)
	for ch, x := range buf.Samples {
		for i, v := range x {
			l := float64(low[ch][i])
			lowE[i/frame] += l * l
			allE[i/frame] += float64(v) * float64(v)
		}
	}

	// weight of the unfiltered signal, 1 outside pops
	gain := make([]float64, n)
	for i := range gain {
		gain[i] = 1
	}
	floor := audio.DBToLinear(d.attenuationDB)
	ramp := max(1, window/4)
	var pops int
	for f := 1; f < frames; f++ {
		if lowE[f] <= 0 || allE[f] <= 0 {
			continue
		}
		jump := 10 * math.Log10(lowE[f]/max(lowE[f-1], 1e-12))
		if jump < d.jumpDB || lowE[f]/allE[f] < d.lowRatio {
			continue
		}
		pops++
		start := f * frame
		end := min(n, start+window)
		for i := max(0, start-ramp); i < min(n, end+ramp); i++ {
			g := floor
			switch {
			case i < start:
				g = 1 - (1-floor)*float64(i-(start-ramp))/float64(ramp)
			case i >= end:
				g = floor + (1-floor)*float64(i-end)/float64(ramp)
			}
			gain[i] = min(gain[i], g)
		}
		// skip frames already covered by this window
		f = (end - 1) / frame
	}

	if pops > 0 {
		for ch, x := range buf.Samples {
			for i := range x {
				if g := float32(gain[i]); g < 1 {
					x[i] = g*x[i] + (1-g)*high[ch][i]
				}
			}
		}
	}
	a := d.newAnalysis()
	a.Metrics["pops_attenuated"] = float64(pops)
	return &Result{Buffer: buf, Analysis: a}, nil
}

func msDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
