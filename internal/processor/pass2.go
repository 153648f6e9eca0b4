package processor

import (
	"context"
	"errors"
	"time"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/silence"
)

func msParam(p *params, key string, def time.Duration, lo, hi float64) time.Duration {
	v := p.float(key, float64(def)/float64(time.Millisecond), lo, hi)
	return msDuration(v)
}

// optionKeys maps silence option fields to the parameters that set them.
var optionKeys = map[string]string{
	"FrameDuration":     "frame_ms",
	"ThresholdOffsetDB": "threshold_offset_db",
	"MinThresholdDB":    "min_threshold_db",
	"MaxThresholdDB":    "max_threshold_db",
	"SmoothingFrames":   "smoothing_frames",
	"MinDeadAir":        "min_dead_air_ms",
	"SustainedVoice":    "sustained_voice_ms",
	"StartBuffer":       "start_buffer_ms",
	"EndBuffer":         "end_buffer_ms",
	"MaxPause":          "max_pause_ms",
	"EdgeFade":          "edge_fade_ms",
	"AttenuationDB":     "attenuation_db",
	"Attack":            "attack_ms",
	"Release":           "release_ms",
}

// failOption records a silence validation error against the parameter
// behind the rejected option.
func (p *params) failOption(err error) {
	var oe *silence.OptionError
	if errors.As(err, &oe) {
		p.fail(optionKeys[oe.Option], "%s", oe.Reason)
		return
	}
	p.fail("", "%v", err)
}

// analysisOptions reads the voice classification keys shared by both
// pass-two processors.
func analysisOptions(p *params) silence.Options {
	o := silence.DefaultOptions()
	o.FrameDuration = msParam(p, "frame_ms", o.FrameDuration, 5, 200)
	o.ThresholdOffsetDB = p.float("threshold_offset_db", o.ThresholdOffsetDB, 0, 30)
	o.MinThresholdDB = p.float("min_threshold_db", o.MinThresholdDB, -90, 0)
	o.MaxThresholdDB = p.float("max_threshold_db", o.MaxThresholdDB, -90, 0)
	o.SmoothingFrames = p.int("smoothing_frames", o.SmoothingFrames, 1, 51)
	o.MinDeadAir = msParam(p, "min_dead_air_ms", o.MinDeadAir, 100, 60000)
	o.SustainedVoice = msParam(p, "sustained_voice_ms", o.SustainedVoice, 0, 5000)
	if err := o.Validate(); err != nil {
		p.failOption(err)
	}
	return o
}

// DeadAirTrim removes leading, trailing and over-long mid-take dead air.
// It is the only built-in processor that changes duration.
type DeadAirTrim struct {
	base
	analysis silence.Options
	trimmer  *silence.Trimmer
}

func newDeadAirTrim(cfg Config) (Processor, error) {
	p := newParams(FilterDeadAirTrim, cfg)
	ao := analysisOptions(p)
	to := silence.DefaultTrimOptions()
	to.SustainedVoice = ao.SustainedVoice
	to.StartBuffer = msParam(p, "start_buffer_ms", to.StartBuffer, 0, 5000)
	to.EndBuffer = msParam(p, "end_buffer_ms", to.EndBuffer, 0, 5000)
	to.CompressPauses = p.bool("compress_pauses", to.CompressPauses)
	to.MaxPause = msParam(p, "max_pause_ms", to.MaxPause, 50, 60000)
	to.EdgeFade = msParam(p, "edge_fade_ms", to.EdgeFade, 0, 50)

	t, err := silence.NewTrimmer(to)
	if err != nil {
		p.failOption(err)
	}
	d := &DeadAirTrim{analysis: ao, trimmer: t}
	d.base = newBase(p)
	return d, p.err
}

// AffectsTiming reports true: trimming shortens the take.
func (*DeadAirTrim) AffectsTiming() bool { return true }

// Process returns a new, trimmed buffer and the timing map for the cut.
func (d *DeadAirTrim) Process(_ context.Context, buf *audio.Buffer, _ *Context) (*Result, error) {
	va, err := silence.Analyze(buf, d.analysis)
	if err != nil {
		return nil, err
	}
	plan, err := d.trimmer.Plan(va)
	if err != nil {
		return nil, err
	}
	out, err := plan.Apply(buf)
	if err != nil {
		return nil, err
	}

	a := d.newAnalysis()
	a.Metrics["noise_floor_db"] = va.NoiseFloorDB
	a.Metrics["threshold_db"] = va.ThresholdDB
	a.Metrics["trimmed_seconds"] = audio.FramesToDuration(plan.TrimmedFrames(), buf.SampleRate).Seconds()
	a.Metrics["trim_count"] = float64(len(plan.Trims))
	a.Metrics["voice_ratio"] = va.VoiceRatio()
	if plan.Relabelled > 0 {
		a.Metrics["relabelled_regions"] = float64(plan.Relabelled)
	}
	if len(plan.Trims) == 0 {
		a.Notes = append(a.Notes, "nothing to trim")
	}
	return &Result{Buffer: out, Timing: plan.Timing, Analysis: a}, nil
}

// SilenceAttenuate lowers non-voice regions by a fixed amount, keeping
// duration and voice samples unchanged.
type SilenceAttenuate struct {
	base
	analysis   silence.Options
	attenuator *silence.Attenuator
}

func newSilenceAttenuate(cfg Config) (Processor, error) {
	p := newParams(FilterSilenceAttenuate, cfg)
	ao := analysisOptions(p)
	opts := silence.DefaultAttenuateOptions()
	opts.AttenuationDB = p.float("attenuation_db", opts.AttenuationDB, -60, 0)
	opts.Attack = msParam(p, "attack_ms", opts.Attack, 0, 1000)
	opts.Release = msParam(p, "release_ms", opts.Release, 0, 5000)

	at, err := silence.NewAttenuator(opts)
	if err != nil {
		p.failOption(err)
	}
	s := &SilenceAttenuate{analysis: ao, attenuator: at}
	s.base = newBase(p)
	return s, p.err
}

// Process attenuates buf in place.
func (s *SilenceAttenuate) Process(_ context.Context, buf *audio.Buffer, _ *Context) (*Result, error) {
	va, err := silence.Analyze(buf, s.analysis)
	if err != nil {
		return nil, err
	}
	if _, err := s.attenuator.Apply(buf, va); err != nil {
		return nil, err
	}
	a := s.newAnalysis()
	a.Metrics["threshold_db"] = va.ThresholdDB
	a.Metrics["voice_ratio"] = va.VoiceRatio()
	a.Metrics["dead_air_seconds"] = va.DeadAirDuration().Seconds()
	return &Result{Buffer: buf, Analysis: a}, nil
}
