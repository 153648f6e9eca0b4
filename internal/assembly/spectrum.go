package assembly

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/linuxmatters/takemaster/internal/audio"
)

// roomSimilarity compares the band-energy profile of two boundary windows.
// 1 means identical spectral shape; level differences do not count.
func roomSimilarity(a, b *audio.Buffer) float64 {
	ea := bandEnergies(a.Mono(), a.SampleRate)
	eb := bandEnergies(b.Mono(), b.SampleRate)
	return cosine(ea, eb)
}

// bandEnergies averages Hann-windowed magnitude spectra over the signal and
// sums them into log-spaced bands. Band magnitudes are returned so the cosine
// is not dominated by the loudest band.
func bandEnergies(x []float64, rate int) []float64 {
	size := 1
	for size*2 <= min(len(x), similarityFFTMax) {
		size *= 2
	}
	bands := make([]float64, similarityBands)
	if size < 64 {
		return bands
	}

	fft := fourier.NewFFT(size)
	window := make([]float64, size)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size))
	}

	edges := bandEdges(float64(rate) / 2)
	binHz := float64(rate) / float64(size)
	frame := make([]float64, size)
	var coeffs []complex128
	for off := 0; off+size <= len(x); off += size / 2 {
		for i := range frame {
			frame[i] = x[off+i] * window[i]
		}
		coeffs = fft.Coefficients(coeffs, frame)
		for k, c := range coeffs {
			f := float64(k) * binHz
			if f < edges[0] {
				continue
			}
			band := bandOf(edges, f)
			if band < 0 {
				break
			}
			re, im := real(c), imag(c)
			bands[band] += re*re + im*im
		}
	}
	for i, e := range bands {
		bands[i] = math.Sqrt(e)
	}
	return bands
}

func bandEdges(nyquist float64) []float64 {
	edges := make([]float64, similarityBands+1)
	ratio := math.Pow(nyquist/similarityLowHz, 1/float64(similarityBands))
	edges[0] = similarityLowHz
	for i := 1; i <= similarityBands; i++ {
		edges[i] = edges[i-1] * ratio
	}
	return edges
}

func bandOf(edges []float64, f float64) int {
	for i := 1; i < len(edges); i++ {
		if f < edges[i] {
			return i - 1
		}
	}
	return -1
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		// two digitally silent windows share a room
		if na == nb {
			return 1
		}
		return 0
	}
	return dot / math.Sqrt(na*nb)
}
