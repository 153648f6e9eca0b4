package processor

import (
	"context"
	"math"

	"github.com/linuxmatters/takemaster/internal/audio"
)

// envelope is an attack/release level follower:
//
//	env = coeff*env + (1-coeff)*|x|
//
// with the attack coefficient used while the input exceeds the envelope.
type envelope struct {
	attack, release float64
	value           float64
}

func newEnvelope(sampleRate int, attackMs, releaseMs float64) envelope {
	return envelope{
		attack:  timeCoeff(sampleRate, attackMs),
		release: timeCoeff(sampleRate, releaseMs),
	}
}

// timeCoeff returns the one-pole coefficient for a time constant. Zero means
// the follower tracks instantly.
func timeCoeff(sampleRate int, ms float64) float64 {
	if ms <= 0 {
		return 0
	}
	return math.Exp(-1 / (ms / 1000 * float64(sampleRate)))
}

func (e *envelope) next(x float64) float64 {
	x = math.Abs(x)
	c := e.release
	if x > e.value {
		c = e.attack
	}
	e.value = c*e.value + (1-c)*x
	return e.value
}

// gainLaw maps a detector level (dBFS) to a gain change (dB).
// Compressors act above the threshold, expanders below it. The soft knee
// interpolates linearly across kneeDB centred on the threshold.
type gainLaw struct {
	thresholdDB float64
	ratio       float64
	kneeDB      float64
	expander    bool
	floorDB     float64 // expanders never attenuate further than this
}

func (g gainLaw) hard(level float64) float64 {
	if g.expander {
		if level >= g.thresholdDB {
			return 0
		}
		return (level - g.thresholdDB) * (g.ratio - 1)
	}
	if level <= g.thresholdDB {
		return 0
	}
	return (level - g.thresholdDB) * (1/g.ratio - 1)
}

func (g gainLaw) gainDB(level float64) float64 {
	half := g.kneeDB / 2
	lo, hi := g.thresholdDB-half, g.thresholdDB+half

	var gain float64
	switch {
	case g.kneeDB > 0 && level > lo && level < hi && g.expander:
		gain = g.hard(lo) * (hi - level) / g.kneeDB
	case g.kneeDB > 0 && level > lo && level < hi:
		gain = g.hard(hi) * (level - lo) / g.kneeDB
	default:
		gain = g.hard(level)
	}
	if g.expander && gain < g.floorDB {
		gain = g.floorDB
	}
	return gain
}

// dynamics is the detector/gain stage shared by the gate, compressor,
// limiter, de-esser and multiband bands.
type dynamics struct {
	law       gainLaw
	attackMs  float64
	releaseMs float64
	makeupDB  float64
}

type dynamicsStats struct {
	maxReductionDB  float64
	meanReductionDB float64
}

// apply runs the detector over det (stereo-linked: loudest channel wins) and
// multiplies sig by the resulting gain. det and sig may be the same slices.
func (d dynamics) apply(sig, det [][]float32, sampleRate int) dynamicsStats {
	if len(sig) == 0 {
		return dynamicsStats{}
	}
	env := newEnvelope(sampleRate, d.attackMs, d.releaseMs)
	n := len(sig[0])
	var stats dynamicsStats
	var sum float64

	for i := 0; i < n; i++ {
		var peak float64
		for ch := range det {
			peak = max(peak, math.Abs(float64(det[ch][i])))
		}
		level := audio.LinearToDB(env.next(peak))
		g := d.law.gainDB(level)
		stats.maxReductionDB = min(stats.maxReductionDB, g)
		sum += g

		g += d.makeupDB
		if g == 0 {
			continue
		}
		lin := math.Pow(10, g/20)
		for ch := range sig {
			sig[ch][i] = float32(float64(sig[ch][i]) * lin)
		}
	}
	if n > 0 {
		stats.meanReductionDB = sum / float64(n)
	}
	return stats
}

// Gate is a downward expander. Signal below the threshold is attenuated by
// the ratio, never by more than the range.
type Gate struct {
	base
	threshold  float64
	autoThresh bool
	ratio      float64
	rangeDB    float64
	attackMs   float64
	releaseMs  float64
	kneeDB     float64
}

func newGate(cfg Config) (Processor, error) {
	p := newParams(FilterGate, cfg)
	thresh, set := p.optFloat("threshold_db", -90, 0)
	g := &Gate{
		threshold:  thresh,
		autoThresh: !set,
		ratio:      p.float("ratio", 4, 1, 100),
		rangeDB:    p.float("range_db", -24, -90, 0),
		attackMs:   p.float("attack_ms", 5, 0, 500),
		releaseMs:  p.float("release_ms", 100, 1, 5000),
		kneeDB:     p.float("knee_db", 6, 0, 24),
	}
	g.base = newBase(p)
	return g, p.err
}

// Process applies the gate in place.
func (g *Gate) Process(_ context.Context, buf *audio.Buffer, pc *Context) (*Result, error) {
	threshold := g.threshold
	if g.autoThresh {
		threshold = tuneGateThreshold(pc.measurements())
	}
	d := dynamics{
		law: gainLaw{
			thresholdDB: threshold,
			ratio:       g.ratio,
			kneeDB:      g.kneeDB,
			expander:    true,
			floorDB:     g.rangeDB,
		},
		attackMs:  g.attackMs,
		releaseMs: g.releaseMs,
	}
	stats := d.apply(buf.Samples, buf.Samples, buf.SampleRate)

	a := g.newAnalysis()
	a.Metrics["threshold_db"] = threshold
	a.Metrics["max_reduction_db"] = stats.maxReductionDB
	a.Metrics["mean_reduction_db"] = stats.meanReductionDB
	return &Result{Buffer: buf, Analysis: a}, nil
}

// Compressor is a broadband downward compressor.
type Compressor struct {
	base
	settings compressorSettings
	explicit compressorOverrides
}

type compressorSettings struct {
	thresholdDB float64
	ratio       float64
	attackMs    float64
	releaseMs   float64
	kneeDB      float64
	makeupDB    float64
}

// compressorOverrides records which settings the preset fixed; the rest
// are tuned from measurements.
type compressorOverrides struct {
	threshold, ratio, attack, release, makeup bool
}

func newCompressor(cfg Config) (Processor, error) {
	p := newParams(FilterCompressor, cfg)
	c := &Compressor{}
	c.settings.thresholdDB, c.explicit.threshold = p.optFloat("threshold_db", -60, 0)
	c.settings.ratio, c.explicit.ratio = p.optFloat("ratio", 1, 30)
	c.settings.attackMs, c.explicit.attack = p.optFloat("attack_ms", 0.1, 500)
	c.settings.releaseMs, c.explicit.release = p.optFloat("release_ms", 1, 5000)
	c.settings.makeupDB, c.explicit.makeup = p.optFloat("makeup_db", 0, 24)
	c.settings.kneeDB = p.float("knee_db", 6, 0, 24)
	c.base = newBase(p)
	return c, p.err
}

func (c *Compressor) resolve(m *AudioMeasurements) compressorSettings {
	tuned := tuneCompression(m)
	s := c.settings
	if !c.explicit.threshold {
		s.thresholdDB = tuned.thresholdDB
	}
	if !c.explicit.ratio {
		s.ratio = tuned.ratio
	}
	if !c.explicit.attack {
		s.attackMs = tuned.attackMs
	}
	if !c.explicit.release {
		s.releaseMs = tuned.releaseMs
	}
	if !c.explicit.makeup {
		s.makeupDB = tuned.makeupDB
	}
	return s
}

// Process compresses buf in place.
func (c *Compressor) Process(_ context.Context, buf *audio.Buffer, pc *Context) (*Result, error) {
	s := c.resolve(pc.measurements())
	d := dynamics{
		law:       gainLaw{thresholdDB: s.thresholdDB, ratio: s.ratio, kneeDB: s.kneeDB},
		attackMs:  s.attackMs,
		releaseMs: s.releaseMs,
		makeupDB:  s.makeupDB,
	}
	stats := d.apply(buf.Samples, buf.Samples, buf.SampleRate)

	a := c.newAnalysis()
	a.Metrics["threshold_db"] = s.thresholdDB
	a.Metrics["ratio"] = s.ratio
	a.Metrics["makeup_db"] = s.makeupDB
	a.Metrics["max_reduction_db"] = stats.maxReductionDB
	a.Metrics["mean_reduction_db"] = stats.meanReductionDB
	return &Result{Buffer: buf, Analysis: a}, nil
}

// Limiter is a peak limiter: infinite ratio, instant attack, smoothed release.
// No output sample exceeds the ceiling.
type Limiter struct {
	base
	ceilingDB float64
	releaseMs float64
}

func newLimiter(cfg Config) (Processor, error) {
	p := newParams(FilterLimiter, cfg)
	l := &Limiter{
		ceilingDB: p.float("ceiling_db", NormTargetTP, -24, 0),
		releaseMs: p.float("release_ms", 50, 1, 2000),
	}
	l.base = newBase(p)
	return l, p.err
}

// Process limits buf in place.
func (l *Limiter) Process(_ context.Context, buf *audio.Buffer, _ *Context) (*Result, error) {
	stats := limit(buf.Samples, buf.SampleRate, l.ceilingDB, l.releaseMs)

	a := l.newAnalysis()
	a.Metrics["ceiling_db"] = l.ceilingDB
	a.Metrics["max_reduction_db"] = stats.maxReductionDB
	a.Metrics["output_peak_db"] = audio.LinearToDB(buf.Peak())
	return &Result{Buffer: buf, Analysis: a}, nil
}

func limit(sig [][]float32, sampleRate int, ceilingDB, releaseMs float64) dynamicsStats {
	d := dynamics{
		law:       gainLaw{thresholdDB: ceilingDB, ratio: math.Inf(1)},
		attackMs:  0,
		releaseMs: releaseMs,
	}
	stats := d.apply(sig, sig, sampleRate)

	// the envelope never falls below |x|, so this only catches rounding
	ceiling := float32(audio.DBToLinear(ceilingDB))
	for _, ch := range sig {
		for i, v := range ch {
			if v > ceiling {
				ch[i] = ceiling
			} else if v < -ceiling {
				ch[i] = -ceiling
			}
		}
	}
	return stats
}
