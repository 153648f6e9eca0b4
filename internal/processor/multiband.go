package processor

import (
	"context"

	"github.com/linuxmatters/takemaster/internal/audio"
)

// bandSettings configures one band of the multiband compressor.
type bandSettings struct {
	thresholdDB float64
	ratio       float64
}

// Multiband splits into low, mid and high bands with fourth-order
// Linkwitz-Riley crossovers (two cascaded Butterworth sections), compresses
// each band on its own and sums them.
type Multiband struct {
	base
	lowHz, highHz  float64
	low, mid, high bandSettings
	attackMs       float64
	releaseMs      float64
	makeupDB       float64
}

func newMultiband(cfg Config) (Processor, error) {
	p := newParams(FilterMultiband, cfg)
	m := &Multiband{
		lowHz:  p.float("low_crossover_hz", 200, 40, 2000),
		highHz: p.float("high_crossover_hz", 3000, 500, 16000),
		low: bandSettings{
			thresholdDB: p.float("low_threshold_db", -24, -60, 0),
			ratio:       p.float("low_ratio", 2, 1, 20),
		},
		mid: bandSettings{
			thresholdDB: p.float("mid_threshold_db", -20, -60, 0),
			ratio:       p.float("mid_ratio", 3, 1, 20),
		},
		high: bandSettings{
			thresholdDB: p.float("high_threshold_db", -24, -60, 0),
			ratio:       p.float("high_ratio", 2.5, 1, 20),
		},
		attackMs:  p.float("attack_ms", 15, 0.1, 500),
		releaseMs: p.float("release_ms", 150, 1, 5000),
		makeupDB:  p.float("makeup_db", 0, 0, 24),
	}
	if m.lowHz >= m.highHz {
		p.fail("high_crossover_hz", "must be above low_crossover_hz (%.0f Hz)", m.lowHz)
	}
	m.base = newBase(p)
	return m, p.err
}

// splitBands returns low, mid and high bands of buf. The low band passes
// through the second crossover's all-pass response so that all three bands
// share the same phase before summing.
func splitBands(buf *audio.Buffer, lowHz, highHz float64) (low, mid, high [][]float32) {
	sr := buf.SampleRate
	lp1 := Cascade(LowPass(sr, lowHz, ButterworthQ), 2)
	hp1 := Cascade(HighPass(sr, lowHz, ButterworthQ), 2)
	lp2 := Cascade(LowPass(sr, highHz, ButterworthQ), 2)
	hp2 := Cascade(HighPass(sr, highHz, ButterworthQ), 2)

	low = filtered(buf, lp1...)
	rest := &audio.Buffer{Samples: filtered(buf, hp1...), SampleRate: sr}
	mid = filtered(rest, lp2...)
	high = filtered(rest, hp2...)

	lowBuf := &audio.Buffer{Samples: low, SampleRate: sr}
	lowLP := filtered(lowBuf, lp2...)
	lowHP := filtered(lowBuf, hp2...)
	for ch := range low {
		for i := range low[ch] {
			low[ch][i] = lowLP[ch][i] + lowHP[ch][i]
		}
	}
	return low, mid, high
}

// Process compresses buf in place.
func (m *Multiband) Process(_ context.Context, buf *audio.Buffer, _ *Context) (*Result, error) {
	low, mid, high := splitBands(buf, m.lowHz, m.highHz)

	a := m.newAnalysis()
	for _, b := range []struct {
		name string
		sig  [][]float32
		s    bandSettings
	}{
		{"low", low, m.low},
		{"mid", mid, m.mid},
		{"high", high, m.high},
	} {
		d := dynamics{
			law:       gainLaw{thresholdDB: b.s.thresholdDB, ratio: b.s.ratio, kneeDB: 6},
			attackMs:  m.attackMs,
			releaseMs: m.releaseMs,
		}
		stats := d.apply(b.sig, b.sig, buf.SampleRate)
		a.Metrics[b.name+"_max_reduction_db"] = stats.maxReductionDB
	}

	makeup := float32(audio.DBToLinear(m.makeupDB))
	for ch, s := range buf.Samples {
		for i := range s {
			s[i] = (low[ch][i] + mid[ch][i] + high[ch][i]) * makeup
		}
	}
	a.Metrics["low_crossover_hz"] = m.lowHz
	a.Metrics["high_crossover_hz"] = m.highHz
	return &Result{Buffer: buf, Analysis: a}, nil
}
