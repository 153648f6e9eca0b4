package silence

import (
	"fmt"
	"math"
	"time"

	"github.com/linuxmatters/takemaster/internal/audio"
)

// Attenuator defaults.
const (
	DefaultAttenuationDB = -5.0
	DefaultAttack        = 12 * time.Millisecond
	DefaultRelease       = 200 * time.Millisecond
)

// AttenuateOptions controls the silence attenuator.
type AttenuateOptions struct {
	AttenuationDB float64       // gain for non-voice regions, <= 0
	Attack        time.Duration // ramp down after voice ends
	Release       time.Duration // ramp up ahead of voice onset
}

// DefaultAttenuateOptions returns the documented defaults.
func DefaultAttenuateOptions() AttenuateOptions {
	return AttenuateOptions{
		AttenuationDB: DefaultAttenuationDB,
		Attack:        DefaultAttack,
		Release:       DefaultRelease,
	}
}

// Attenuator lowers the level of non-voice regions without changing duration.
type Attenuator struct {
	opts AttenuateOptions
}

// NewAttenuator validates opts.
func NewAttenuator(opts AttenuateOptions) (*Attenuator, error) {
	if opts.AttenuationDB > 0 {
		return nil, invalid("AttenuationDB", "%.1f dB must not boost", opts.AttenuationDB)
	}
	if opts.Attack < 0 {
		return nil, invalid("Attack", "cannot be negative")
	}
	if opts.Release < 0 {
		return nil, invalid("Release", "cannot be negative")
	}
	return &Attenuator{opts: opts}, nil
}

// Apply multiplies buf in place by the smoothed gain curve and returns it.
//
// The curve is the larger of a forward pass (falls with the attack time once
// voice ends) and a backward pass (rises with the release time so that it is
// back at unity exactly when voice starts). Voice samples are never scaled.
func (at *Attenuator) Apply(buf *audio.Buffer, a *Analysis) (*audio.Buffer, error) {
	if buf.Frames() != a.TotalFrames {
		return nil, fmt.Errorf("silence: analysis covers %d frames, buffer has %d", a.TotalFrames, buf.Frames())
	}
	gain := at.GainCurve(a)
	for _, ch := range buf.Samples {
		for i := range ch {
			if gain[i] != 1 {
				ch[i] = float32(float64(ch[i]) * gain[i])
			}
		}
	}
	return buf, nil
}

// GainCurve returns the per-sample gain Apply would use.
func (at *Attenuator) GainCurve(a *Analysis) []float64 {
	n := a.TotalFrames
	floor := audio.DBToLinear(at.opts.AttenuationDB)

	target := make([]float64, n)
	for i := range target {
		target[i] = floor
	}
	for _, r := range a.Regions {
		if r.Kind == Voice {
			for i := r.StartFrame; i < r.EndFrame; i++ {
				target[i] = 1
			}
		}
	}

	attack := smoothingCoeff(at.opts.Attack, a.SampleRate)
	release := smoothingCoeff(at.opts.Release, a.SampleRate)

	if n == 0 {
		return nil
	}
	forward := make([]float64, n)
	prev := target[0]
	for i, t := range target {
		if t >= prev {
			prev = t
		} else {
			prev = attack*prev + (1-attack)*t
		}
		forward[i] = prev
	}

	gain := make([]float64, n)
	prev = target[n-1]
	for i := n - 1; i >= 0; i-- {
		t := target[i]
		if t >= prev {
			prev = t
		} else {
			prev = release*prev + (1-release)*t
		}
		gain[i] = max(prev, forward[i])
	}
	return gain
}

func smoothingCoeff(d time.Duration, sampleRate int) float64 {
	if d <= 0 {
		return 0
	}
	return math.Exp(-1 / (d.Seconds() * float64(sampleRate)))
}
