package processor

import (
	"math"
	"math/cmplx"
	"slices"
	"time"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/mains"
	"github.com/linuxmatters/takemaster/internal/silence"
)

const (
	spectralFFTSize  = 2048
	spectralRolloff  = 0.85 // fraction of spectral energy below the rolloff frequency
	rmsTroughPercent = 0.10 // of voiced frame levels
)

// AudioMeasurements contains the whole-take measurements taken before
// processing. Processors use them to pick defaults for parameters a preset
// leaves unset.
type AudioMeasurements struct {
	InputI     float64 `json:"input_i"`     // Integrated loudness (LUFS)
	InputTP    float64 `json:"input_tp"`    // True peak (dBTP)
	InputLRA   float64 `json:"input_lra"`   // Loudness range (LU)
	NoiseFloor float64 `json:"noise_floor"` // Estimated noise floor (dBFS)

	// Averaged over voiced frames
	SpectralCentroid float64 `json:"spectral_centroid"` // Hz - where energy is concentrated
	SpectralRolloff  float64 `json:"spectral_rolloff"`  // Hz - 85% of energy lies below

	DynamicRange float64 `json:"dynamic_range"` // Peak level above noise floor (dB)
	RMSLevel     float64 `json:"rms_level"`     // Overall RMS level (dBFS)
	PeakLevel    float64 `json:"peak_level"`    // Overall sample peak (dBFS)
	RMSTrough    float64 `json:"rms_trough"`    // Level of the quietest voiced frames (dBFS)

	// Gap between speech level and noise floor
	NoiseReductionHeadroom float64 `json:"noise_reduction_headroom"`

	// Share of non-voice energy at the mains fundamental and its first
	// harmonics (dB, 0 = all of it). MainsHz is the stronger of 50 and 60.
	MainsHum float64 `json:"mains_hum"`
	MainsHz  int     `json:"mains_hz,omitempty"`
}

// defaultMeasurements describes a typical, reasonably clean voice take.
func defaultMeasurements() *AudioMeasurements {
	return &AudioMeasurements{
		InputI:           -23,
		InputTP:          -6,
		NoiseFloor:       noiseFloorTypical,
		SpectralCentroid: centroidNormal + 500,
		SpectralRolloff:  rolloffLimited + 1000,
		DynamicRange:     compDynamicRangeMod + 5,
		RMSLevel:         -24,
		PeakLevel:        -6,
		RMSTrough:        -40,
		MainsHum:         audio.SilenceDB,
	}
}

// Measure takes loudness, level and spectral measurements of buf. va is the
// voice classification of buf; when nil the whole take counts as voice.
func Measure(buf *audio.Buffer, va *silence.Analysis) *AudioMeasurements {
	ld := MeasureLoudness(buf)
	m := &AudioMeasurements{
		InputI:    ld.Integrated,
		InputTP:   ld.TruePeakDB,
		InputLRA:  ld.Range,
		RMSLevel:  audio.LinearToDB(buf.RMS()),
		PeakLevel: ld.SamplePeakDB,
	}

	var voiced []silence.FrameStat
	if va != nil {
		m.NoiseFloor = va.NoiseFloorDB
		for _, f := range va.Frames {
			if f.Voice {
				voiced = append(voiced, f)
			}
		}
	} else {
		m.NoiseFloor = m.RMSLevel
	}
	m.RMSTrough = m.NoiseFloor
	if len(voiced) > 0 {
		levels := make([]float64, len(voiced))
		for i, f := range voiced {
			levels[i] = f.RMSDB
		}
		slices.Sort(levels)
		m.RMSTrough = levels[int(rmsTroughPercent*float64(len(levels)-1))]
	}

	m.DynamicRange = max(0, m.PeakLevel-m.NoiseFloor)
	m.NoiseReductionHeadroom = max(0, m.RMSLevel-m.NoiseFloor)
	m.SpectralCentroid, m.SpectralRolloff = spectralShape(buf, va)
	m.MainsHum, m.MainsHz = audio.SilenceDB, 0
	for _, hz := range []int{mains.Hz50, mains.Hz60} {
		if h := mainsHum(buf, va, float64(hz)); h > m.MainsHum {
			m.MainsHum, m.MainsHz = h, hz
		}
	}
	m.sanitize()
	return m
}

// spectralShape averages the spectral centroid and rolloff over voiced
// frames of the mono downmix.
func spectralShape(buf *audio.Buffer, va *silence.Analysis) (centroid, rolloff float64) {
	x := buf.Mono()
	if len(x) < spectralFFTSize {
		return 0, 0
	}
	s := newSTFT(spectralFFTSize)
	frame := make([]float64, spectralFFTSize)
	spec := make([]complex128, spectralFFTSize/2+1)
	binHz := float64(buf.SampleRate) / spectralFFTSize

	var cSum, rSum float64
	var count int
	for start := 0; start+spectralFFTSize <= len(x); start += spectralFFTSize {
		if va != nil && !voicedAt(va, start+spectralFFTSize/2) {
			continue
		}
		spec = s.spectrum(x, start, frame, spec)
		var total, weighted float64
		power := make([]float64, len(spec))
		for k, c := range spec {
			p := cmplx.Abs(c)
			power[k] = p * p
			total += power[k]
			weighted += power[k] * float64(k) * binHz
		}
		if total <= 1e-12 {
			continue
		}
		cSum += weighted / total
		var acc float64
		for k, p := range power {
			acc += p
			if acc >= spectralRolloff*total {
				rSum += float64(k) * binHz
				break
			}
		}
		count++
	}
	if count == 0 {
		return 0, 0
	}
	return cSum / float64(count), rSum / float64(count)
}

func voicedAt(va *silence.Analysis, frame int) bool {
	if va.FrameLength <= 0 {
		return true
	}
	i := frame / va.FrameLength
	if i < 0 || i >= len(va.Frames) {
		return false
	}
	return va.Frames[i].Voice
}

// sanitize replaces non-finite values left by degenerate input.
func (m *AudioMeasurements) sanitize() {
	d := defaultMeasurements()
	m.InputI = sanitizeFloat(m.InputI, audio.SilenceDB)
	m.InputTP = sanitizeFloat(m.InputTP, audio.SilenceDB)
	m.InputLRA = sanitizeFloat(m.InputLRA, 0)
	m.NoiseFloor = sanitizeFloat(m.NoiseFloor, d.NoiseFloor)
	m.SpectralCentroid = sanitizeFloat(m.SpectralCentroid, 0)
	m.SpectralRolloff = sanitizeFloat(m.SpectralRolloff, 0)
	m.DynamicRange = sanitizeFloat(m.DynamicRange, 0)
	m.RMSLevel = sanitizeFloat(m.RMSLevel, audio.SilenceDB)
	m.PeakLevel = sanitizeFloat(m.PeakLevel, audio.SilenceDB)
	m.RMSTrough = sanitizeFloat(m.RMSTrough, m.NoiseFloor)
	m.NoiseReductionHeadroom = sanitizeFloat(m.NoiseReductionHeadroom, 0)
	m.MainsHum = sanitizeFloat(m.MainsHum, audio.SilenceDB)
}

// Hum detection
const (
	humHarmonics = 3
	humBlock     = 500 * time.Millisecond // 2 Hz resolution
	humMaxBlocks = 8
)

// mainsHum returns the fraction of energy, in dB, that the non-voice parts
// of buf carry at hz and its harmonics. Each bin is scaled so a pure tone
// at that frequency scores 0 dB.
func mainsHum(buf *audio.Buffer, va *silence.Analysis, hz float64) float64 {
	if va == nil {
		return audio.SilenceDB
	}
	n := audio.DurationToFrames(humBlock, buf.SampleRate)
	if n <= 0 {
		return audio.SilenceDB
	}
	x := buf.Mono()

	var tonal, total float64
	blocks := 0
	for _, r := range va.SilenceRegions() {
		for start := r.StartFrame; start+n <= r.EndFrame && blocks < humMaxBlocks; start += n {
			block := x[start : start+n]
			var energy float64
			for _, v := range block {
				energy += v * v
			}
			total += energy
			for _, f := range mains.Harmonics(hz, humHarmonics, buf.SampleRate) {
				tonal += mains.Power(block, f, buf.SampleRate) * 2 / float64(n)
			}
			blocks++
		}
	}
	if total <= 1e-20 {
		return audio.SilenceDB
	}
	return 10 * math.Log10(max(tonal/total, 1e-12))
}
