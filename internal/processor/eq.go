package processor

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/mains"
)

// BandType is the shape of one EQ band.
type BandType string

const (
	BandLowShelf  BandType = "low_shelf"
	BandHighShelf BandType = "high_shelf"
	BandPeak      BandType = "peak"
	BandNotch     BandType = "notch"
	BandHighPass  BandType = "highpass"
	BandLowPass   BandType = "lowpass"
)

var bandTypes = []string{
	string(BandLowShelf), string(BandHighShelf), string(BandPeak),
	string(BandNotch), string(BandHighPass), string(BandLowPass),
}

// EQBand is one section of a parametric EQ.
type EQBand struct {
	Type   BandType
	FreqHz float64
	GainDB float64
	Q      float64
}

func (b EQBand) coefficients(sampleRate int) Coefficients {
	switch b.Type {
	case BandLowShelf:
		return LowShelf(sampleRate, b.FreqHz, b.GainDB, b.Q)
	case BandHighShelf:
		return HighShelf(sampleRate, b.FreqHz, b.GainDB, b.Q)
	case BandNotch:
		return Notch(sampleRate, b.FreqHz, b.Q)
	case BandHighPass:
		return HighPass(sampleRate, b.FreqHz, b.Q)
	case BandLowPass:
		return LowPass(sampleRate, b.FreqHz, b.Q)
	default:
		return Peaking(sampleRate, b.FreqHz, b.GainDB, b.Q)
	}
}

// Hum notch defaults
const (
	humDefaultHarmonics = 4    // fundamental + 3 harmonics (50, 100, 150, 200 Hz)
	humDefaultQ         = 30.0 // narrow notch, little impact on voice
	maxEQBands          = 8
)

// EQ presets. hum_notch is built at run time from the mains frequency.
var eqPresets = map[string][]EQBand{
	"flat": nil,
	"voice_clarity": {
		{Type: BandHighPass, FreqHz: 80, Q: ButterworthQ},
		{Type: BandPeak, FreqHz: 250, GainDB: -2, Q: 1.0},
		{Type: BandPeak, FreqHz: 3000, GainDB: 2.5, Q: 1.0},
		{Type: BandHighShelf, FreqHz: 10000, GainDB: 1.5, Q: ButterworthQ},
	},
	"warmth": {
		{Type: BandLowShelf, FreqHz: 150, GainDB: 2, Q: ButterworthQ},
		{Type: BandPeak, FreqHz: 3500, GainDB: -1, Q: 1.2},
		{Type: BandHighShelf, FreqHz: 9000, GainDB: -1.5, Q: ButterworthQ},
	},
	"broadcast": {
		{Type: BandHighPass, FreqHz: 70, Q: ButterworthQ},
		{Type: BandLowShelf, FreqHz: 120, GainDB: 1.5, Q: ButterworthQ},
		{Type: BandPeak, FreqHz: 300, GainDB: -2.5, Q: 1.2},
		{Type: BandPeak, FreqHz: 4000, GainDB: 2, Q: 1.0},
		{Type: BandHighShelf, FreqHz: 12000, GainDB: 1, Q: ButterworthQ},
	},
	"de_mud": {
		{Type: BandPeak, FreqHz: 300, GainDB: -4, Q: 1.4},
		{Type: BandPeak, FreqHz: 500, GainDB: -2, Q: 1.4},
	},
	"presence": {
		{Type: BandPeak, FreqHz: 5000, GainDB: 3, Q: 0.8},
	},
	"hum_notch": nil,
}

// EQPresets returns the preset names.
func EQPresets() []string {
	return slices.Sorted(maps.Keys(eqPresets))
}

// HumNotchBands returns notch bands at the mains fundamental and harmonics.
// Harmonics at or above the Nyquist frequency of sampleRate are dropped; zero
// keeps them all.
func HumNotchBands(mainsHz float64, harmonics, sampleRate int) []EQBand {
	freqs := mains.Harmonics(mainsHz, harmonics, sampleRate)
	bands := make([]EQBand, len(freqs))
	for i, f := range freqs {
		bands[i] = EQBand{Type: BandNotch, FreqHz: f, Q: humDefaultQ}
	}
	return bands
}

// EQ is a cascade of biquad bands: a named preset followed by any explicit
// bandN_* parameters.
type EQ struct {
	base
	preset    string
	mainsHz   float64
	harmonics int
	bands     []EQBand
}

func newEQ(cfg Config) (Processor, error) {
	p := newParams(FilterEQ, cfg)
	e := &EQ{
		preset:    p.str("preset", "flat", EQPresets()...),
		mainsHz:   p.float("mains_hz", 0, 0, 60),
		harmonics: p.int("harmonics", humDefaultHarmonics, 1, 8),
	}
	if e.mainsHz != 0 && e.mainsHz != 50 && e.mainsHz != 60 {
		p.fail("mains_hz", "must be 50 or 60")
	}

	for n := 1; n <= maxEQBands; n++ {
		prefix := fmt.Sprintf("band%d_", n)
		typ := p.str(prefix+"type", "", bandTypes...)
		if typ == "" {
			continue
		}
		e.bands = append(e.bands, EQBand{
			Type:   BandType(typ),
			FreqHz: p.float(prefix+"freq", 1000, 20, 20000),
			GainDB: p.float(prefix+"gain_db", 0, -24, 24),
			Q:      p.float(prefix+"q", ButterworthQ, 0.1, 100),
		})
	}
	e.base = newBase(p)
	return e, p.err
}

// Bands resolves the preset and explicit bands. Without a configured
// mains_hz the hum notch follows the local mains frequency.
func (e *EQ) Bands() []EQBand {
	return e.bandsFor(nil, 0)
}

// bandsFor resolves the bands for a take. The hum notch prefers the hum
// frequency measured in pc over the local one.
func (e *EQ) bandsFor(pc *Context, sampleRate int) []EQBand {
	var bands []EQBand
	if e.preset == "hum_notch" {
		hz := e.mainsHz
		if hz == 0 {
			measured := 0
			if pc != nil && pc.Measurements != nil {
				measured = pc.Measurements.MainsHz
			}
			hz = float64(mains.Resolve(measured))
		}
		bands = HumNotchBands(hz, e.harmonics, sampleRate)
	} else {
		bands = slices.Clone(eqPresets[e.preset])
	}
	return append(bands, e.bands...)
}

// Process equalises buf in place.
func (e *EQ) Process(_ context.Context, buf *audio.Buffer, pc *Context) (*Result, error) {
	bands := e.bandsFor(pc, buf.SampleRate)
	a := e.newAnalysis()
	a.Metrics["bands"] = float64(len(bands))
	a.Notes = append(a.Notes, "preset "+e.preset)
	if len(bands) == 0 {
		return &Result{Buffer: buf, Analysis: a}, nil
	}

	sections := make([]Coefficients, len(bands))
	for i, b := range bands {
		sections[i] = b.coefficients(buf.SampleRate)
	}
	NewFilter(buf.Channels(), sections...).ProcessBuffer(buf)
	return &Result{Buffer: buf, Analysis: a}, nil
}
