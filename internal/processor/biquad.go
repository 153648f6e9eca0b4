package processor

import (
	"math"
	"math/cmplx"

	"github.com/linuxmatters/takemaster/internal/audio"
)

// ButterworthQ is the Q of a second-order Butterworth section.
const ButterworthQ = 1 / math.Sqrt2

// Coefficients are biquad coefficients normalised so that a0 = 1.
//
//	y[n] = b0*x[n] + b1*x[n-1] + b2*x[n-2] - a1*y[n-1] - a2*y[n-2]
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// designFreq keeps a design frequency strictly inside (0, Nyquist).
func designFreq(sampleRate int, freq float64) float64 {
	nyquist := float64(sampleRate) / 2
	return math.Max(1, math.Min(freq, nyquist*0.999))
}

func normalise(b0, b1, b2, a0, a1, a2 float64) Coefficients {
	return Coefficients{B0: b0 / a0, B1: b1 / a0, B2: b2 / a0, A1: a1 / a0, A2: a2 / a0}
}

func rbj(sampleRate int, freq, q float64) (cosw, alpha float64) {
	w0 := 2 * math.Pi * designFreq(sampleRate, freq) / float64(sampleRate)
	return math.Cos(w0), math.Sin(w0) / (2 * q)
}

// LowPass designs a second-order low-pass section.
func LowPass(sampleRate int, freq, q float64) Coefficients {
	cosw, alpha := rbj(sampleRate, freq, q)
	return normalise((1-cosw)/2, 1-cosw, (1-cosw)/2, 1+alpha, -2*cosw, 1-alpha)
}

// HighPass designs a second-order high-pass section.
func HighPass(sampleRate int, freq, q float64) Coefficients {
	cosw, alpha := rbj(sampleRate, freq, q)
	return normalise((1+cosw)/2, -(1 + cosw), (1+cosw)/2, 1+alpha, -2*cosw, 1-alpha)
}

// BandPass designs a constant 0 dB peak gain band-pass section.
func BandPass(sampleRate int, freq, q float64) Coefficients {
	cosw, alpha := rbj(sampleRate, freq, q)
	return normalise(alpha, 0, -alpha, 1+alpha, -2*cosw, 1-alpha)
}

// Notch designs a notch section.
func Notch(sampleRate int, freq, q float64) Coefficients {
	cosw, alpha := rbj(sampleRate, freq, q)
	return normalise(1, -2*cosw, 1, 1+alpha, -2*cosw, 1-alpha)
}

// Peaking designs a peaking (bell) EQ section.
func Peaking(sampleRate int, freq, gainDB, q float64) Coefficients {
	cosw, alpha := rbj(sampleRate, freq, q)
	a := math.Pow(10, gainDB/40)
	return normalise(1+alpha*a, -2*cosw, 1-alpha*a, 1+alpha/a, -2*cosw, 1-alpha/a)
}

// LowShelf designs a low-shelf section.
func LowShelf(sampleRate int, freq, gainDB, q float64) Coefficients {
	cosw, alpha := rbj(sampleRate, freq, q)
	a := math.Pow(10, gainDB/40)
	sq := 2 * math.Sqrt(a) * alpha
	return normalise(
		a*((a+1)-(a-1)*cosw+sq),
		2*a*((a-1)-(a+1)*cosw),
		a*((a+1)-(a-1)*cosw-sq),
		(a+1)+(a-1)*cosw+sq,
		-2*((a-1)+(a+1)*cosw),
		(a+1)+(a-1)*cosw-sq,
	)
}

// HighShelf designs a high-shelf section.
func HighShelf(sampleRate int, freq, gainDB, q float64) Coefficients {
	cosw, alpha := rbj(sampleRate, freq, q)
	a := math.Pow(10, gainDB/40)
	sq := 2 * math.Sqrt(a) * alpha
	return normalise(
		a*((a+1)+(a-1)*cosw+sq),
		-2*a*((a-1)+(a+1)*cosw),
		a*((a+1)+(a-1)*cosw-sq),
		(a+1)-(a-1)*cosw+sq,
		2*((a-1)-(a+1)*cosw),
		(a+1)-(a-1)*cosw-sq,
	)
}

// FirstOrderLowPass designs a one-pole low-pass via the bilinear transform.
func FirstOrderLowPass(sampleRate int, freq float64) Coefficients {
	k := math.Tan(math.Pi * designFreq(sampleRate, freq) / float64(sampleRate))
	return normalise(k, k, 0, k+1, k-1, 0)
}

// FirstOrderHighPass designs a one-pole high-pass via the bilinear transform.
func FirstOrderHighPass(sampleRate int, freq float64) Coefficients {
	k := math.Tan(math.Pi * designFreq(sampleRate, freq) / float64(sampleRate))
	return normalise(1, -1, 0, k+1, k-1, 0)
}

// ButterworthLowPass designs an order-n Butterworth low-pass: n/2 second-order
// sections with the pole-pair Qs of the prototype, plus a first-order section
// when n is odd. The corner is -3 dB for every order.
func ButterworthLowPass(sampleRate int, freq float64, order int) []Coefficients {
	return butterworth(sampleRate, freq, order, LowPass, FirstOrderLowPass)
}

// ButterworthHighPass is the high-pass counterpart of ButterworthLowPass.
func ButterworthHighPass(sampleRate int, freq float64, order int) []Coefficients {
	return butterworth(sampleRate, freq, order, HighPass, FirstOrderHighPass)
}

func butterworth(sampleRate int, freq float64, order int,
	second func(int, float64, float64) Coefficients,
	first func(int, float64) Coefficients,
) []Coefficients {
	out := make([]Coefficients, 0, (order+1)/2)
	for k := 1; k <= order/2; k++ {
		q := 1 / (2 * math.Sin(float64(2*k-1)*math.Pi/float64(2*order)))
		out = append(out, second(sampleRate, freq, q))
	}
	if order%2 == 1 {
		out = append(out, first(sampleRate, freq))
	}
	return out
}

// Cascade repeats c n times. Each extra second-order section adds 12 dB/octave.
func Cascade(c Coefficients, n int) []Coefficients {
	out := make([]Coefficients, n)
	for i := range out {
		out[i] = c
	}
	return out
}

// Response returns the complex frequency response at freq.
func (c Coefficients) Response(sampleRate int, freq float64) complex128 {
	w := 2 * math.Pi * freq / float64(sampleRate)
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1
	num := complex(c.B0, 0) + complex(c.B1, 0)*z1 + complex(c.B2, 0)*z2
	den := 1 + complex(c.A1, 0)*z1 + complex(c.A2, 0)*z2
	return num / den
}

// MagnitudeDB returns the gain in dB of a cascade at freq.
func MagnitudeDB(sampleRate int, freq float64, sections ...Coefficients) float64 {
	h := complex(1, 0)
	for _, c := range sections {
		h *= c.Response(sampleRate, freq)
	}
	return 20 * math.Log10(cmplx.Abs(h))
}

// biquadState is the Direct Form I history for one section on one channel.
type biquadState struct {
	x1, x2, y1, y2 float64
}

func (s *biquadState) step(c *Coefficients, x float64) float64 {
	y := c.B0*x + c.B1*s.x1 + c.B2*s.x2 - c.A1*s.y1 - c.A2*s.y2
	s.x2, s.x1 = s.x1, x
	s.y2, s.y1 = s.y1, y
	return y
}

// Filter runs a cascade of sections with independent history per channel.
type Filter struct {
	sections []Coefficients
	state    [][]biquadState // [channel][section]
}

// NewFilter returns a cascade for the given channel count.
func NewFilter(channels int, sections ...Coefficients) *Filter {
	f := &Filter{sections: sections, state: make([][]biquadState, channels)}
	for ch := range f.state {
		f.state[ch] = make([]biquadState, len(sections))
	}
	return f
}

// Sample filters a single sample on channel ch.
func (f *Filter) Sample(ch int, x float64) float64 {
	st := f.state[ch]
	for i := range f.sections {
		x = st[i].step(&f.sections[i], x)
	}
	return x
}

// ProcessChannel filters src into dst (which may alias src).
func (f *Filter) ProcessChannel(ch int, src, dst []float32) {
	for i, v := range src {
		dst[i] = float32(f.Sample(ch, float64(v)))
	}
}

// ProcessBuffer filters every channel of buf in place.
func (f *Filter) ProcessBuffer(buf *audio.Buffer) {
	for ch, s := range buf.Samples {
		f.ProcessChannel(ch, s, s)
	}
}

// Reset clears all history.
func (f *Filter) Reset() {
	for ch := range f.state {
		clear(f.state[ch])
	}
}

// filtered returns a filtered copy of every channel, leaving buf untouched.
func filtered(buf *audio.Buffer, sections ...Coefficients) [][]float32 {
	f := NewFilter(buf.Channels(), sections...)
	out := make([][]float32, buf.Channels())
	for ch, s := range buf.Samples {
		out[ch] = make([]float32, len(s))
		f.ProcessChannel(ch, s, out[ch])
	}
	return out
}
