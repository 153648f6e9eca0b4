package processor

import (
	"context"

	"github.com/linuxmatters/takemaster/internal/audio"
)

// BandFilter is an order-n Butterworth high-pass or low-pass.
type BandFilter struct {
	base
	highpass bool
	freq     float64
	auto     bool
	order    int
}

func newHighpass(cfg Config) (Processor, error) {
	p := newParams(FilterHighpass, cfg)
	freq, set := p.optFloat("frequency_hz", 10, 1000)
	f := &BandFilter{
		highpass: true,
		freq:     freq,
		auto:     !set,
		order:    p.int("order", 2, 1, 16),
	}
	f.base = newBase(p)
	return f, p.err
}

func newLowpass(cfg Config) (Processor, error) {
	p := newParams(FilterLowpass, cfg)
	freq, set := p.optFloat("frequency_hz", 1000, 24000)
	f := &BandFilter{
		freq:     freq,
		auto:     !set,
		order:    p.int("order", 2, 1, 16),
	}
	f.base = newBase(p)
	return f, p.err
}

// Process filters buf in place.
func (f *BandFilter) Process(_ context.Context, buf *audio.Buffer, pc *Context) (*Result, error) {
	freq := f.freq
	if f.auto {
		if f.highpass {
			freq = tuneHighpassFreq(pc.measurements())
		} else {
			freq = tuneLowpassFreq(pc.measurements(), buf.SampleRate)
		}
	}

	var sections []Coefficients
	if f.highpass {
		sections = ButterworthHighPass(buf.SampleRate, freq, f.order)
	} else {
		sections = ButterworthLowPass(buf.SampleRate, freq, f.order)
	}
	NewFilter(buf.Channels(), sections...).ProcessBuffer(buf)

	a := f.newAnalysis()
	a.Metrics["frequency_hz"] = freq
	a.Metrics["slope_db_per_octave"] = float64(6 * f.order)
	if f.auto {
		a.Notes = append(a.Notes, "frequency chosen from measurements")
	}
	return &Result{Buffer: buf, Analysis: a}, nil
}
