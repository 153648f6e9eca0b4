package processor

import (
	"context"

	"github.com/linuxmatters/takemaster/internal/audio"
)

// Deesser compresses only the sibilance band. The band is isolated by a
// high-pass and low-pass cascade either side of the centre frequency; the
// remainder is the original minus that band, so the two sum back exactly
// when no compression occurs.
type Deesser struct {
	base
	centerHz    float64
	bandwidthHz float64
	threshold   float64
	autoThresh  bool
	ratio       float64
	attackMs    float64
	releaseMs   float64
	sections    int
}

func newDeesser(cfg Config) (Processor, error) {
	p := newParams(FilterDeesser, cfg)
	thresh, set := p.optFloat("threshold_db", -60, 0)
	d := &Deesser{
		centerHz:    p.float("center_hz", 6500, 2000, 12000),
		bandwidthHz: p.float("bandwidth_hz", 4000, 500, 10000),
		threshold:   thresh,
		autoThresh:  !set,
		ratio:       p.float("ratio", 4, 1, 20),
		attackMs:    p.float("attack_ms", 1, 0, 50),
		releaseMs:   p.float("release_ms", 60, 5, 500),
		sections:    p.int("sections", 2, 1, 4),
	}
	if d.bandwidthHz/2 >= d.centerHz {
		p.fail("bandwidth_hz", "half bandwidth %.0f Hz reaches below 0 Hz", d.bandwidthHz/2)
	}
	d.base = newBase(p)
	return d, p.err
}

// Process de-esses buf in place.
func (d *Deesser) Process(_ context.Context, buf *audio.Buffer, pc *Context) (*Result, error) {
	threshold := d.threshold
	intensity := 0.0
	if d.autoThresh {
		threshold, intensity = tuneDeesser(pc.measurements())
	}

	lo := d.centerHz - d.bandwidthHz/2
	hi := d.centerHz + d.bandwidthHz/2
	sections := append(
		Cascade(HighPass(buf.SampleRate, lo, ButterworthQ), d.sections),
		Cascade(LowPass(buf.SampleRate, hi, ButterworthQ), d.sections)...,
	)
	band := filtered(buf, sections...)

	// rest = original - band
	rest := make([][]float32, buf.Channels())
	for ch, s := range buf.Samples {
		rest[ch] = make([]float32, len(s))
		for i, v := range s {
			rest[ch][i] = v - band[ch][i]
		}
	}

	dyn := dynamics{
		law:       gainLaw{thresholdDB: threshold, ratio: d.ratio, kneeDB: 3},
		attackMs:  d.attackMs,
		releaseMs: d.releaseMs,
	}
	stats := dyn.apply(band, band, buf.SampleRate)

	for ch, s := range buf.Samples {
		for i := range s {
			s[i] = rest[ch][i] + band[ch][i]
		}
	}

	a := d.newAnalysis()
	a.Metrics["threshold_db"] = threshold
	a.Metrics["band_low_hz"] = lo
	a.Metrics["band_high_hz"] = hi
	a.Metrics["max_reduction_db"] = stats.maxReductionDB
	if d.autoThresh {
		a.Metrics["intensity"] = intensity
	}
	return &Result{Buffer: buf, Analysis: a}, nil
}
