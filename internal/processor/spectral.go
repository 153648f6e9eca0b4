package processor

import (
	"context"
	"math"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/linuxmatters/takemaster/internal/audio"
)

// stft holds the transform and window for one frame size. Hops are a
// quarter frame (75% overlap).
type stft struct {
	size   int
	hop    int
	fft    *fourier.FFT
	window []float64
}

func newSTFT(size int) *stft {
	w := make([]float64, size)
	for i := range w {
		// periodic Hann sums to a constant at 75% overlap
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size))
	}
	return &stft{size: size, hop: size / 4, fft: fourier.NewFFT(size), window: w}
}

// spectrum windows x[start:start+size] (zero beyond len(x)) and transforms it.
func (s *stft) spectrum(x []float64, start int, frame []float64, dst []complex128) []complex128 {
	for i := range frame {
		j := start + i
		if j >= 0 && j < len(x) {
			frame[i] = x[j] * s.window[i]
		} else {
			frame[i] = 0
		}
	}
	return s.fft.Coefficients(dst, frame)
}

// NoiseReducer is STFT spectral subtraction with a noise profile taken from
// the start of the take.
type NoiseReducer struct {
	base
	fftSize    int
	noiseMs    float64
	source     string
	reduction  float64
	autoReduce bool
	smoothing  float64
	floor      float64
}

func newNoiseReducer(cfg Config) (Processor, error) {
	p := newParams(FilterNoiseReduction, cfg)
	reduction, set := p.optFloat("reduction", 0, 4)
	nr := &NoiseReducer{
		fftSize:    p.int("fft_size", 2048, 256, 16384),
		noiseMs:    p.float("noise_ms", 500, 50, 10000),
		source:     p.str("noise_source", "leading", "leading", "detected"),
		reduction:  reduction,
		autoReduce: !set,
		smoothing:  p.float("smoothing", 0.5, 0, 0.99),
		floor:      p.float("floor", 0, 0, 1),
	}
	if nr.fftSize%4 != 0 {
		p.fail("fft_size", "%d is not a multiple of 4", nr.fftSize)
	}
	nr.base = newBase(p)
	return nr, p.err
}

// noiseSegment picks the span used for the noise profile.
func (nr *NoiseReducer) noiseSegment(buf *audio.Buffer, pc *Context) (start, end int, note string) {
	n := buf.Frames()
	length := audio.DurationToFrames(time.Duration(nr.noiseMs*float64(time.Millisecond)), buf.SampleRate)
	if nr.source == "detected" && pc != nil {
		if r, ok := pc.LongestSilence(); ok {
			s, e := buf.FrameAt(r.Start), buf.FrameAt(r.End)
			return s, min(e, s+max(length, nr.fftSize)), "noise profile from longest detected silence"
		}
	}
	return 0, min(n, length), "noise profile from leading segment"
}

// Process denoises buf in place.
func (nr *NoiseReducer) Process(ctx context.Context, buf *audio.Buffer, pc *Context) (*Result, error) {
	reduction := nr.reduction
	if nr.autoReduce {
		reduction = tuneNoiseReduction(pc.measurements())
	}

	s := newSTFT(nr.fftSize)
	noiseStart, noiseEnd, note := nr.noiseSegment(buf, pc)

	a := nr.newAnalysis()
	a.Notes = append(a.Notes, note)
	a.Metrics["reduction"] = reduction
	a.Metrics["fft_size"] = float64(nr.fftSize)

	var meanGain float64
	for ch, samples := range buf.Samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x := make([]float64, len(samples))
		for i, v := range samples {
			x[i] = float64(v)
		}

		profile := s.noiseProfile(x[noiseStart:noiseEnd])
		y, g := s.subtract(x, profile, reduction, nr.smoothing, nr.floor)
		for i := range samples {
			samples[i] = float32(y[i])
		}
		meanGain += g
		if ch == 0 {
			a.Metrics["noise_profile_db"] = audio.LinearToDB(meanMagnitude(profile) / float64(nr.fftSize))
		}
	}
	if len(buf.Samples) > 0 {
		a.Metrics["mean_gain_db"] = audio.LinearToDB(meanGain / float64(len(buf.Samples)))
	}
	return &Result{Buffer: buf, Analysis: a}, nil
}

// noiseProfile averages the magnitude spectrum over every full frame of seg.
// A segment shorter than one frame is zero padded.
func (s *stft) noiseProfile(seg []float64) []float64 {
	bins := s.size/2 + 1
	profile := make([]float64, bins)
	frame := make([]float64, s.size)
	spec := make([]complex128, bins)

	count := 0
	for start := 0; start == 0 || start+s.size <= len(seg); start += s.hop {
		spec = s.spectrum(seg, start, frame, spec)
		for k, c := range spec {
			profile[k] += cmplx.Abs(c)
		}
		count++
	}
	for k := range profile {
		profile[k] /= float64(count)
	}
	return profile
}

// subtract runs the analysis/resynthesis loop over x and returns the output
// and the mean applied gain. Each bin keeps its phase; magnitudes lose
// reduction*profile, floored at floor*|X|, and the per-bin gain is smoothed
// across frames with a one-pole filter.
func (s *stft) subtract(x, profile []float64, reduction, smoothing, floor float64) ([]float64, float64) {
	n := len(x)
	bins := s.size/2 + 1
	// pad a full frame each side so every output sample sees full overlap
	offset := -s.size
	out := make([]float64, n+2*s.size)
	norm := make([]float64, n+2*s.size)

	frame := make([]float64, s.size)
	spec := make([]complex128, bins)
	gain := make([]float64, bins)
	prevGain := make([]float64, bins)
	for k := range prevGain {
		prevGain[k] = 1
	}

	var gainSum float64
	var gainCount int
	for start := offset; start < n; start += s.hop {
		spec = s.spectrum(x, start, frame, spec)
		for k, c := range spec {
			mag := cmplx.Abs(c)
			g := 0.0
			if mag > 1e-12 {
				g = math.Max(mag-reduction*profile[k], floor*mag) / mag
			}
			g = smoothing*prevGain[k] + (1-smoothing)*g
			prevGain[k] = g
			gain[k] = g
			spec[k] = c * complex(g, 0)
			gainSum += g
			gainCount++
		}
		frame = s.fft.Sequence(frame, spec)
		base := start - offset
		for i, v := range frame {
			out[base+i] += v / float64(s.size)
			norm[base+i] += s.window[i]
		}
	}

	y := make([]float64, n)
	for i := range y {
		j := i - offset
		if norm[j] > 1e-9 {
			y[i] = out[j] / norm[j]
		}
	}
	mean := 0.0
	if gainCount > 0 {
		mean = gainSum / float64(gainCount)
	}
	return y, mean
}

func meanMagnitude(profile []float64) float64 {
	if len(profile) == 0 {
		return 0
	}
	var sum float64
	for _, v := range profile {
		sum += v
	}
	return sum / float64(len(profile))
}
