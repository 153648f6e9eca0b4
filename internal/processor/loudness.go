package processor

import (
	"context"
	"math"
	"slices"

	"github.com/linuxmatters/takemaster/internal/audio"
)

// BS.1770 gating and block constants.
const (
	loudnessBlockMs     = 400
	loudnessStepMs      = 100 // 75% overlap
	loudnessAbsGate     = -70.0
	loudnessRelGate     = -10.0
	shortTermBlockMs    = 3000
	rangeRelGate        = -20.0
	rangeLowPercentile  = 0.10
	rangeHighPercentile = 0.95

	truePeakOversample = 4
	truePeakHalfTaps   = 8
)

// Loudness summarises a BS.1770 / EBU R128 measurement.
type Loudness struct {
	Integrated   float64 `json:"integrated_lufs"`
	Range        float64 `json:"range_lu"`
	TruePeakDB   float64 `json:"true_peak_dbtp"`
	SamplePeakDB float64 `json:"sample_peak_dbfs"`
}

// kWeighting returns the BS.1770 pre-filter: a high shelf modelling the
// head followed by the RLB high-pass.
func kWeighting(sampleRate int) []Coefficients {
	return []Coefficients{
		HighShelf(sampleRate, 1681.974450955533, 3.999843853973347, 0.7071752369554196),
		HighPass(sampleRate, 38.13547087602444, 0.5003270373238773),
	}
}

// channelWeight is the BS.1770 weight of channel ch in an n-channel layout,
// channels in WAV order: L R C Ls Rs for 5.0, L R C LFE Ls Rs for 5.1.
// The LFE does not count toward loudness.
func channelWeight(ch, n int) float64 {
	switch {
	case n == 5 && ch >= 3:
		return 1.41
	case n == 6 && ch == 3:
		return 0
	case n == 6 && ch >= 4:
		return 1.41
	}
	return 1.0
}

// blockPowers returns the channel-weighted mean square of the K-weighted
// signal for each block of blockMs, stepped by stepMs.
func blockPowers(buf *audio.Buffer, blockMs, stepMs int) []float64 {
	block := buf.SampleRate * blockMs / 1000
	step := buf.SampleRate * stepMs / 1000
	n := buf.Frames()
	if block <= 0 || n < block {
		return nil
	}
	weighted := filtered(buf, kWeighting(buf.SampleRate)...)

	// running sum of squares per channel makes each block O(1)
	count := (n-block)/step + 1
	powers := make([]float64, count)
	for ch, x := range weighted {
		w := channelWeight(ch, len(weighted))
		cum := make([]float64, n+1)
		for i, v := range x {
			cum[i+1] = cum[i] + float64(v)*float64(v)
		}
		for b := range count {
			start := b * step
			powers[b] += w * (cum[start+block] - cum[start]) / float64(block)
		}
	}
	return powers
}

func powerToLUFS(z float64) float64 {
	if z <= 0 {
		return audio.SilenceDB
	}
	return -0.691 + 10*math.Log10(z)
}

// gated applies the absolute gate and a relative gate relGate LU below
// the absolute-gated mean, returning the blocks that pass both.
func gated(powers []float64, relGate float64) []float64 {
	var abs []float64
	var sum float64
	for _, z := range powers {
		if powerToLUFS(z) > loudnessAbsGate {
			abs = append(abs, z)
			sum += z
		}
	}
	if len(abs) == 0 {
		return nil
	}
	threshold := powerToLUFS(sum/float64(len(abs))) + relGate
	var out []float64
	for _, z := range abs {
		if powerToLUFS(z) > threshold {
			out = append(out, z)
		}
	}
	return out
}

// IntegratedLoudness measures the gated integrated loudness of buf in LUFS.
// A take with no block above the absolute gate returns audio.SilenceDB.
func IntegratedLoudness(buf *audio.Buffer) float64 {
	blocks := gated(blockPowers(buf, loudnessBlockMs, loudnessStepMs), loudnessRelGate)
	if len(blocks) == 0 {
		return audio.SilenceDB
	}
	var sum float64
	for _, z := range blocks {
		sum += z
	}
	return powerToLUFS(sum / float64(len(blocks)))
}

// LoudnessRange measures the EBU Tech 3342 loudness range in LU: the spread
// between the 10th and 95th percentiles of gated short-term loudness.
func LoudnessRange(buf *audio.Buffer) float64 {
	blocks := gated(blockPowers(buf, shortTermBlockMs, loudnessStepMs), rangeRelGate)
	if len(blocks) < 2 {
		return 0
	}
	levels := make([]float64, len(blocks))
	for i, z := range blocks {
		levels[i] = powerToLUFS(z)
	}
	slices.Sort(levels)
	at := func(p float64) float64 {
		return levels[int(math.Round(p*float64(len(levels)-1)))]
	}
	return at(rangeHighPercentile) - at(rangeLowPercentile)
}

// truePeakTable holds windowed-sinc interpolation kernels for each
// fractional phase of the oversampled signal.
var truePeakTable = func() [][]float64 {
	phases := make([][]float64, truePeakOversample)
	for k := 1; k < truePeakOversample; k++ {
		frac := float64(k) / truePeakOversample
		taps := make([]float64, 2*truePeakHalfTaps)
		for j := range taps {
			t := float64(j-truePeakHalfTaps+1) - frac
			// Hann window over the kernel span
			w := 0.5 + 0.5*math.Cos(math.Pi*t/float64(truePeakHalfTaps))
			taps[j] = sinc(t) * w
		}
		phases[k] = taps
	}
	return phases
}()

func sinc(t float64) float64 {
	if t == 0 {
		return 1
	}
	return math.Sin(math.Pi*t) / (math.Pi * t)
}

// TruePeak returns the inter-sample peak of buf, estimated by 4x
// windowed-sinc oversampling, as linear amplitude.
func TruePeak(buf *audio.Buffer) float64 {
	var peak float64
	for _, x := range buf.Samples {
		n := len(x)
		for i := range n {
			peak = max(peak, math.Abs(float64(x[i])))
			for k := 1; k < truePeakOversample; k++ {
				var y float64
				for j, h := range truePeakTable[k] {
					// interpolating between x[i] and x[i+1]
					idx := i + j - truePeakHalfTaps + 1
					if idx >= 0 && idx < n {
						y += float64(x[idx]) * h
					}
				}
				peak = max(peak, math.Abs(y))
			}
		}
	}
	return peak
}

// MeasureLoudness runs all loudness measurements over buf.
func MeasureLoudness(buf *audio.Buffer) Loudness {
	return Loudness{
		Integrated:   IntegratedLoudness(buf),
		Range:        LoudnessRange(buf),
		TruePeakDB:   audio.LinearToDB(TruePeak(buf)),
		SamplePeakDB: audio.LinearToDB(buf.Peak()),
	}
}

// LoudnessNormaliser applies a single gain to reach a target integrated
// loudness. By default the gain backs off when the true peak would pass the
// ceiling; with limit_peaks the full gain is applied and the peaks it pushes
// over are limited instead.
type LoudnessNormaliser struct {
	base
	targetLUFS float64
	ceilingDB  float64
	maxGainDB  float64
	limitPeaks bool
}

// Peak limiting inside the normaliser
const (
	peakLimitMarginDB  = 0.5 // sample ceiling below the true-peak ceiling
	peakLimitReleaseMs = 50
	peakLimitPasses    = 3
)

func newLoudnessNormaliser(cfg Config) (Processor, error) {
	p := newParams(FilterLoudness, cfg)
	n := &LoudnessNormaliser{
		targetLUFS: p.float("target_lufs", NormTargetLUFS, -40, -5),
		ceilingDB:  p.float("ceiling_dbtp", NormTargetTP, -12, 0),
		maxGainDB:  p.float("max_gain_db", 40, 0, 60),
		limitPeaks: p.bool("limit_peaks", false),
	}
	n.base = newBase(p)
	return n, p.err
}

// normalisationGain returns the gain in dB for a measured take.
func normalisationGain(m Loudness, targetLUFS, ceilingDB, maxGainDB float64) (gain float64, peakLimited bool) {
	gain = min(targetLUFS-m.Integrated, maxGainDB)
	if m.TruePeakDB+gain > ceilingDB {
		gain = ceilingDB - m.TruePeakDB - 0.01
		peakLimited = true
	}
	return gain, peakLimited
}

// Process normalises buf in place.
func (n *LoudnessNormaliser) Process(_ context.Context, buf *audio.Buffer, _ *Context) (*Result, error) {
	m := MeasureLoudness(buf)
	a := n.newAnalysis()
	a.Metrics["input_lufs"] = m.Integrated
	a.Metrics["input_true_peak_dbtp"] = m.TruePeakDB
	a.Metrics["target_lufs"] = n.targetLUFS

	if m.Integrated <= loudnessAbsGate {
		a.Notes = append(a.Notes, "no gated loudness, take left unchanged")
		a.Metrics["gain_db"] = 0
		return &Result{Buffer: buf, Analysis: a}, nil
	}

	gain, limited := normalisationGain(m, n.targetLUFS, n.ceilingDB, n.maxGainDB)
	if limited && n.limitPeaks {
		var reduction float64
		gain, reduction = n.limitedGain(buf, min(n.targetLUFS-m.Integrated, n.maxGainDB))
		a.Metrics["max_reduction_db"] = reduction
		a.Notes = append(a.Notes, "peaks limited to reach target loudness")
	} else {
		applyGain(buf, gain)
		if limited {
			a.Notes = append(a.Notes, "gain reduced to respect true-peak ceiling")
		}
	}
	out := MeasureLoudness(buf)
	a.Metrics["gain_db"] = gain
	a.Metrics["output_lufs"] = out.Integrated
	a.Metrics["output_true_peak_dbtp"] = out.TruePeakDB
	return &Result{Buffer: buf, Analysis: a}, nil
}

// limitedGain applies gain, limiting the sample peaks it pushes over the
// ceiling. Limiting costs loudness, so the shortfall is made up over a few
// passes. Inter-sample overshoot lowers the limiter ceiling for the next
// limit, and a last trim keeps the true peak under the ceiling.
// It returns the total gain and the deepest limiter reduction.
func (n *LoudnessNormaliser) limitedGain(buf *audio.Buffer, gain float64) (total, reductionDB float64) {
	ceiling := n.ceilingDB - peakLimitMarginDB
	limitAt := func() {
		stats := limit(buf.Samples, buf.SampleRate, ceiling, peakLimitReleaseMs)
		reductionDB = min(reductionDB, stats.maxReductionDB)
	}
	for range peakLimitPasses {
		applyGain(buf, gain)
		total += gain
		limitAt()
		if over := audio.LinearToDB(TruePeak(buf)) - n.ceilingDB; over > 0 {
			ceiling -= over + 0.01
			limitAt()
		}

		gain = min(n.targetLUFS-IntegratedLoudness(buf), n.maxGainDB-total)
		if gain < NormToleranceLU/5 {
			break
		}
	}
	if tp := audio.LinearToDB(TruePeak(buf)); tp > n.ceilingDB {
		trim := n.ceilingDB - tp - 0.01
		applyGain(buf, trim)
		total += trim
	}
	return total, reductionDB
}

func applyGain(buf *audio.Buffer, gainDB float64) {
	g := float32(audio.DBToLinear(gainDB))
	for _, ch := range buf.Samples {
		for i := range ch {
			ch[i] *= g
		}
	}
}
