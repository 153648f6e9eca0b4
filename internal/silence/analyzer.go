// Package silence classifies a take into voice, short pauses and dead air,
// and provides the two Pass-2 strategies that act on that classification:
// the dead-air Trimmer and the duration-preserving Attenuator.
package silence

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/linuxmatters/takemaster/internal/audio"
)

// Kind classifies a region of the timeline.
type Kind int

const (
	Voice Kind = iota
	ShortPause
	DeadAir
)

func (k Kind) String() string {
	switch k {
	case Voice:
		return "voice"
	case ShortPause:
		return "short_pause"
	case DeadAir:
		return "dead_air"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Analysis defaults. Thresholds are RMS levels in dBFS.
const (
	DefaultFrameDuration      = 20 * time.Millisecond
	DefaultFallbackPercentile = 12.0 // of all frames, when too few confirmed-silence frames
	DefaultSilencePercentile  = 75.0 // of confirmed-silence frames
	DefaultMinSilenceFrames   = 10
	DefaultThresholdOffsetDB  = 8.0
	DefaultMinThresholdDB     = -55.0
	DefaultMaxThresholdDB     = -40.0
	DefaultVoiceMarginDB      = 6.0
	DefaultSustainedVoice     = 200 * time.Millisecond
	DefaultSmoothingFrames    = 5
	DefaultMinDeadAir         = time.Second
)

// ErrInvalidOptions is returned for option sets that cannot produce a classification.
var ErrInvalidOptions = errors.New("silence: invalid options")

// OptionError names the option field that failed validation. It matches
// ErrInvalidOptions.
type OptionError struct {
	Option string
	Reason string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("%v: %s %s", ErrInvalidOptions, e.Option, e.Reason)
}

func (e *OptionError) Unwrap() error { return ErrInvalidOptions }

func invalid(option, format string, args ...any) error {
	return &OptionError{Option: option, Reason: fmt.Sprintf(format, args...)}
}

// Options controls frame classification.
type Options struct {
	FrameDuration      time.Duration
	FallbackPercentile float64
	SilencePercentile  float64
	MinSilenceFrames   int
	ThresholdOffsetDB  float64
	MinThresholdDB     float64
	MaxThresholdDB     float64
	VoiceMarginDB      float64
	SustainedVoice     time.Duration
	SmoothingFrames    int
	MinDeadAir         time.Duration
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		FrameDuration:      DefaultFrameDuration,
		FallbackPercentile: DefaultFallbackPercentile,
		SilencePercentile:  DefaultSilencePercentile,
		MinSilenceFrames:   DefaultMinSilenceFrames,
		ThresholdOffsetDB:  DefaultThresholdOffsetDB,
		MinThresholdDB:     DefaultMinThresholdDB,
		MaxThresholdDB:     DefaultMaxThresholdDB,
		VoiceMarginDB:      DefaultVoiceMarginDB,
		SustainedVoice:     DefaultSustainedVoice,
		SmoothingFrames:    DefaultSmoothingFrames,
		MinDeadAir:         DefaultMinDeadAir,
	}
}

// Validate rejects option sets that cannot work. Failures are *OptionError.
func (o Options) Validate() error {
	switch {
	case o.FrameDuration <= 0:
		return invalid("FrameDuration", "must be positive")
	case o.FallbackPercentile < 0 || o.FallbackPercentile > 100:
		return invalid("FallbackPercentile", "must be within 0..100")
	case o.SilencePercentile < 0 || o.SilencePercentile > 100:
		return invalid("SilencePercentile", "must be within 0..100")
	case o.MinThresholdDB > o.MaxThresholdDB:
		return invalid("MaxThresholdDB", "%.1f dB is below the minimum %.1f dB", o.MaxThresholdDB, o.MinThresholdDB)
	case o.VoiceMarginDB < 0:
		return invalid("VoiceMarginDB", "cannot be negative")
	case o.SmoothingFrames < 1:
		return invalid("SmoothingFrames", "must be at least one frame")
	case o.MinDeadAir <= 0:
		return invalid("MinDeadAir", "must be positive")
	}
	return nil
}

// FrameStat holds per-frame measurements.
type FrameStat struct {
	RMSDB  float64
	PeakDB float64
	Voice  bool
}

// Region is a half-open span of samples [StartFrame, EndFrame).
type Region struct {
	StartFrame int           `json:"start_frame"`
	EndFrame   int           `json:"end_frame"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Kind       Kind          `json:"kind"`
	LevelDB    float64       `json:"level_db"`
}

// Frames is the region length in samples.
func (r Region) Frames() int {
	return r.EndFrame - r.StartFrame
}

// Duration is the region length.
func (r Region) Duration() time.Duration {
	return r.End - r.Start
}

// Overlaps reports whether [start, end) intersects the region.
func (r Region) Overlaps(start, end int) bool {
	return start < r.EndFrame && end > r.StartFrame
}

// Analysis is the result of classifying one buffer.
type Analysis struct {
	SampleRate   int
	TotalFrames  int
	FrameLength  int // samples per analysis frame
	Frames       []FrameStat
	NoiseFloorDB float64
	ThresholdDB  float64
	Regions      []Region
	Options      Options
}

// Analyze frames buf, estimates the noise floor, derives the voice threshold
// and returns contiguous regions covering the whole buffer.
//
// Noise floor: frames quieter than half the median RMS are treated as
// confirmed silence. With at least MinSilenceFrames of them the floor is their
// SilencePercentile; otherwise it is the FallbackPercentile of every frame.
func Analyze(buf *audio.Buffer, opts Options) (*Analysis, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	frameLen := max(1, audio.DurationToFrames(opts.FrameDuration, buf.SampleRate))
	a := &Analysis{
		SampleRate:  buf.SampleRate,
		TotalFrames: buf.Frames(),
		FrameLength: frameLen,
		Options:     opts,
	}
	if a.TotalFrames == 0 {
		a.NoiseFloorDB = audio.SilenceDB
		a.ThresholdDB = opts.MinThresholdDB
		return a, nil
	}

	a.Frames = measureFrames(buf, frameLen)
	a.NoiseFloorDB = estimateNoiseFloor(a.Frames, opts)
	a.ThresholdDB = a.deriveThreshold()

	voice := make([]bool, len(a.Frames))
	for i, f := range a.Frames {
		voice[i] = f.RMSDB > a.ThresholdDB
	}
	voice = majoritySmooth(voice, opts.SmoothingFrames)
	for i := range a.Frames {
		a.Frames[i].Voice = voice[i]
	}

	a.Regions = a.buildRegions()
	return a, nil
}

func measureFrames(buf *audio.Buffer, frameLen int) []FrameStat {
	n := buf.Frames()
	count := (n + frameLen - 1) / frameLen
	stats := make([]FrameStat, count)
	for i := range stats {
		start := i * frameLen
		end := min(start+frameLen, n)
		var sum, peak float64
		for _, ch := range buf.Samples {
			for _, v := range ch[start:end] {
				f := float64(v)
				sum += f * f
				peak = max(peak, math.Abs(f))
			}
		}
		rms := math.Sqrt(sum / float64((end-start)*len(buf.Samples)))
		stats[i] = FrameStat{RMSDB: audio.LinearToDB(rms), PeakDB: audio.LinearToDB(peak)}
	}
	return stats
}

func estimateNoiseFloor(frames []FrameStat, opts Options) float64 {
	levels := make([]float64, len(frames))
	for i, f := range frames {
		levels[i] = f.RMSDB
	}
	slices.Sort(levels)

	// half the median amplitude is 6.02 dB below it
	cutoff := percentile(levels, 50) - 20*math.Log10(2)
	var quiet []float64
	for _, l := range levels {
		if l < cutoff {
			quiet = append(quiet, l)
		}
	}
	if len(quiet) >= opts.MinSilenceFrames {
		return percentile(quiet, opts.SilencePercentile)
	}
	return percentile(levels, opts.FallbackPercentile)
}

// deriveThreshold applies the offset, the absolute clamp and then the voice
// safety margin against the quietest frame of any sustained voice run.
func (a *Analysis) deriveThreshold() float64 {
	opts := a.Options
	threshold := clamp(a.NoiseFloorDB+opts.ThresholdOffsetDB, opts.MinThresholdDB, opts.MaxThresholdDB)

	sustained := max(1, int(opts.SustainedVoice/opts.FrameDuration))
	quietest := math.Inf(1)
	runStart := -1
	flush := func(end int) {
		if runStart >= 0 && end-runStart >= sustained {
			for _, f := range a.Frames[runStart:end] {
				quietest = min(quietest, f.RMSDB)
			}
		}
		runStart = -1
	}
	for i, f := range a.Frames {
		if f.RMSDB > threshold {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		flush(i)
	}
	flush(len(a.Frames))

	if !math.IsInf(quietest, 1) {
		threshold = min(threshold, quietest-opts.VoiceMarginDB)
	}
	return threshold
}

func majoritySmooth(in []bool, window int) []bool {
	if window <= 1 {
		return in
	}
	half := window / 2
	out := make([]bool, len(in))
	for i := range in {
		lo, hi := max(0, i-half), min(len(in), i+half+1)
		votes := 0
		for _, v := range in[lo:hi] {
			if v {
				votes++
			}
		}
		out[i] = votes*2 > hi-lo
	}
	return out
}

func (a *Analysis) buildRegions() []Region {
	var regions []Region
	start := 0
	for i := 1; i <= len(a.Frames); i++ {
		if i < len(a.Frames) && a.Frames[i].Voice == a.Frames[start].Voice {
			continue
		}
		regions = append(regions, a.region(start, i))
		start = i
	}
	return regions
}

// region converts analysis frames [fs, fe) to a Region in samples.
func (a *Analysis) region(fs, fe int) Region {
	startSample := fs * a.FrameLength
	endSample := min(fe*a.FrameLength, a.TotalFrames)

	var power float64
	for _, f := range a.Frames[fs:fe] {
		power += math.Pow(10, f.RMSDB/10)
	}
	r := Region{
		StartFrame: startSample,
		EndFrame:   endSample,
		Start:      audio.FramesToDuration(startSample, a.SampleRate),
		End:        audio.FramesToDuration(endSample, a.SampleRate),
		LevelDB:    max(10*math.Log10(power/float64(fe-fs)), audio.SilenceDB),
	}
	switch {
	case a.Frames[fs].Voice:
		r.Kind = Voice
	case r.Duration() > a.Options.MinDeadAir:
		r.Kind = DeadAir
	default:
		r.Kind = ShortPause
	}
	return r
}

// VoiceRegions returns the regions classified as voice.
func (a *Analysis) VoiceRegions() []Region {
	var out []Region
	for _, r := range a.Regions {
		if r.Kind == Voice {
			out = append(out, r)
		}
	}
	return out
}

// SilenceRegions returns every non-voice region.
func (a *Analysis) SilenceRegions() []Region {
	var out []Region
	for _, r := range a.Regions {
		if r.Kind != Voice {
			out = append(out, r)
		}
	}
	return out
}

// VoiceRatio is the fraction of the buffer classified as voice.
func (a *Analysis) VoiceRatio() float64 {
	if a.TotalFrames == 0 {
		return 0
	}
	voiced := 0
	for _, r := range a.VoiceRegions() {
		voiced += r.Frames()
	}
	return float64(voiced) / float64(a.TotalFrames)
}

// DeadAirDuration is the total length of dead-air regions.
func (a *Analysis) DeadAirDuration() time.Duration {
	var d time.Duration
	for _, r := range a.Regions {
		if r.Kind == DeadAir {
			d += r.Duration()
		}
	}
	return d
}

// percentile interpolates linearly within sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return audio.SilenceDB
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
