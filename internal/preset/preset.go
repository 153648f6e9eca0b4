// Package preset loads, validates and fingerprints processing presets.
//
// A preset is the whole recipe for an export: the Pass-1 chain run on every
// take, the Pass-2 dead-air strategy, the transition placed between takes,
// whole-programme mastering and the video frame rate used for sync.
package preset

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/linuxmatters/takemaster/internal/assembly"
	"github.com/linuxmatters/takemaster/internal/avsync"
	"github.com/linuxmatters/takemaster/internal/processor"
)

// ErrInvalidPreset wraps every load and validation failure.
var ErrInvalidPreset = errors.New("preset: invalid preset")

// Pass-2 strategies
const (
	StrategyTrim      = "trim"
	StrategyAttenuate = "attenuate"
	StrategyNone      = "none"
)

// Preset is one processing recipe.
type Preset struct {
	Name        string    `yaml:"name" json:"name" validate:"required"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Pass1       []Stage   `yaml:"pass1" json:"pass1" validate:"dive"`
	Pass2       Pass2     `yaml:"pass2" json:"pass2"`
	Assembly    Assembly  `yaml:"assembly" json:"assembly"`
	Mastering   Mastering `yaml:"mastering" json:"mastering"`
	Video       Video     `yaml:"video" json:"video"`
}

// Stage is one Pass-1 processor.
type Stage struct {
	Processor string `yaml:"processor" json:"processor" validate:"required"`
	Params    Params `yaml:"params,omitempty" json:"params"`
}

// Pass2 selects and tunes the dead-air strategy.
type Pass2 struct {
	Strategy  string    `yaml:"strategy" json:"strategy" validate:"oneof=trim attenuate none"`
	Analysis  Analysis  `yaml:"analysis" json:"analysis"`
	Trim      Trim      `yaml:"trim" json:"trim"`
	Attenuate Attenuate `yaml:"attenuate" json:"attenuate"`
}

// Analysis overrides the voice classifier. Unset fields keep its defaults.
type Analysis struct {
	FrameMs           *float64 `yaml:"frame_ms" json:"frame_ms,omitempty" validate:"omitempty,gte=5,lte=200"`
	ThresholdOffsetDB *float64 `yaml:"threshold_offset_db" json:"threshold_offset_db,omitempty" validate:"omitempty,gte=0,lte=30"`
	MinThresholdDB    *float64 `yaml:"min_threshold_db" json:"min_threshold_db,omitempty" validate:"omitempty,gte=-90,lte=0"`
	MaxThresholdDB    *float64 `yaml:"max_threshold_db" json:"max_threshold_db,omitempty" validate:"omitempty,gte=-90,lte=0"`
	SmoothingFrames   *int     `yaml:"smoothing_frames" json:"smoothing_frames,omitempty" validate:"omitempty,gte=1,lte=51"`
	MinDeadAirMs      *float64 `yaml:"min_dead_air_ms" json:"min_dead_air_ms,omitempty" validate:"omitempty,gte=100,lte=60000"`
	SustainedVoiceMs  *float64 `yaml:"sustained_voice_ms" json:"sustained_voice_ms,omitempty" validate:"omitempty,gte=0,lte=5000"`
}

// Trim tunes the dead-air trimmer.
type Trim struct {
	StartBufferMs  *float64 `yaml:"start_buffer_ms" json:"start_buffer_ms,omitempty" validate:"omitempty,gte=0,lte=5000"`
	EndBufferMs    *float64 `yaml:"end_buffer_ms" json:"end_buffer_ms,omitempty" validate:"omitempty,gte=0,lte=5000"`
	CompressPauses *bool    `yaml:"compress_pauses" json:"compress_pauses,omitempty"`
	MaxPauseMs     *float64 `yaml:"max_pause_ms" json:"max_pause_ms,omitempty" validate:"omitempty,gte=50,lte=60000"`
	EdgeFadeMs     *float64 `yaml:"edge_fade_ms" json:"edge_fade_ms,omitempty" validate:"omitempty,gte=0,lte=50"`
}

// Attenuate tunes the silence attenuator.
type Attenuate struct {
	AttenuationDB *float64 `yaml:"attenuation_db" json:"attenuation_db,omitempty" validate:"omitempty,gte=-60,lte=0"`
	AttackMs      *float64 `yaml:"attack_ms" json:"attack_ms,omitempty" validate:"omitempty,gte=0,lte=1000"`
	ReleaseMs     *float64 `yaml:"release_ms" json:"release_ms,omitempty" validate:"omitempty,gte=0,lte=5000"`
}

// Assembly configures the transition between takes.
type Assembly struct {
	Transition string  `yaml:"transition" json:"transition" validate:"oneof=hard_cut crossfade smart"`
	DurationMs float64 `yaml:"duration_ms" json:"duration_ms" validate:"gte=0,lte=2000"`
	Shape      string  `yaml:"shape" json:"shape" validate:"oneof=linear equal_power s_curve"`
	WindowMs   float64 `yaml:"window_ms" json:"window_ms" validate:"gte=0,lte=5000"`
}

// Mastering configures the whole-programme pass.
type Mastering struct {
	Enabled            *bool    `yaml:"enabled" json:"enabled"`
	TargetLUFS         float64  `yaml:"target_lufs" json:"target_lufs" validate:"gte=-40,lte=-5"`
	PeakCeilingDB      *float64 `yaml:"peak_ceiling_db" json:"peak_ceiling_db" validate:"omitempty,gte=-12,lte=0"`
	DynamicRangeTarget float64  `yaml:"dynamic_range_target" json:"dynamic_range_target" validate:"gte=0,lte=30"`
	EQPreset           string   `yaml:"eq_preset" json:"eq_preset"`
	LimiterCeilingDB   *float64 `yaml:"limiter_ceiling_db" json:"limiter_ceiling_db" validate:"omitempty,gte=-24,lte=0"`
}

// Video describes the paired video track.
type Video struct {
	FrameRate float64 `yaml:"frame_rate" json:"frame_rate" validate:"gt=0,lte=240"`
}

// Load reads and validates the preset file at path.
func Load(path string) (*Preset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("preset: open %q: %w", path, err)
	}
	defer f.Close()

	p, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("preset: parse %q: %w", path, err)
	}
	return p, nil
}

// LoadFromReader decodes a YAML preset from r, fills defaults and validates
// it against the built-in processor registry.
func LoadFromReader(r io.Reader) (*Preset, error) {
	p := &Preset{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %w", ErrInvalidPreset, err)
	}
	p.applyDefaults()
	if err := p.Validate(processor.DefaultRegistry()); err != nil {
		return nil, err
	}
	return p, nil
}

// Parse is LoadFromReader for an in-memory document.
func Parse(data []byte) (*Preset, error) {
	return LoadFromReader(bytes.NewReader(data))
}

func (p *Preset) applyDefaults() {
	if p.Pass2.Strategy == "" {
		p.Pass2.Strategy = StrategyNone
	}

	a := &p.Assembly
	if a.Transition == "" {
		a.Transition = string(assembly.Crossfade)
	}
	if a.DurationMs == 0 {
		a.DurationMs = ms(assembly.DefaultDuration)
	}
	if a.Shape == "" {
		a.Shape = string(assembly.EqualPower)
	}
	if a.WindowMs == 0 {
		a.WindowMs = ms(assembly.DefaultWindow)
	}

	m := &p.Mastering
	if m.Enabled == nil {
		m.Enabled = ptr(true)
	}
	if m.TargetLUFS == 0 {
		m.TargetLUFS = processor.NormTargetLUFS
	}
	if m.PeakCeilingDB == nil {
		m.PeakCeilingDB = ptr(processor.NormTargetTP)
	}
	if m.LimiterCeilingDB == nil {
		m.LimiterCeilingDB = ptr(*m.PeakCeilingDB)
	}

	if p.Video.FrameRate == 0 {
		p.Video.FrameRate = avsync.DefaultFrameRate
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints, then builds every stage against reg so
// unknown processors and mistyped parameters are caught before any audio is
// read. All problems found are joined into one error.
func (p *Preset) Validate(reg *processor.Registry) error {
	var errs []error
	if err := validate.Struct(p); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				errs = append(errs, fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	if _, err := p.Pass1Chain(reg); err != nil {
		errs = append(errs, fmt.Errorf("pass1: %w", err))
	}
	if st, err := p.Pass2Stage(); err != nil {
		errs = append(errs, fmt.Errorf("pass2: %w", err))
	} else if st != nil {
		if _, err := reg.New(st.ID, st.Config); err != nil {
			errs = append(errs, fmt.Errorf("pass2: %w", err))
		}
	}
	if eq := p.Mastering.EQPreset; eq != "" && !slices.Contains(processor.EQPresets(), eq) {
		errs = append(errs, fmt.Errorf("mastering.eq_preset %q is invalid; valid values: %v", eq, processor.EQPresets()))
	}
	if err := p.AssemblyConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("assembly: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalidPreset, p.Name, errors.Join(errs...))
	}
	return nil
}

// Pass1Stages returns the Pass-1 chain in file order.
func (p *Preset) Pass1Stages() ([]processor.Stage, error) {
	stages := make([]processor.Stage, 0, len(p.Pass1))
	for i, s := range p.Pass1 {
		cfg, err := s.Params.Config()
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i+1, s.Processor, err)
		}
		stages = append(stages, processor.Stage{ID: processor.FilterID(s.Processor), Config: cfg})
	}
	return stages, nil
}

// Pass1Chain resolves the Pass-1 chain against reg.
func (p *Preset) Pass1Chain(reg *processor.Registry) (*processor.Chain, error) {
	stages, err := p.Pass1Stages()
	if err != nil {
		return nil, err
	}
	return reg.Build(stages)
}

// Pass2Stage returns the dead-air processor for the configured strategy, or
// nil when the strategy is none.
func (p *Preset) Pass2Stage() (*processor.Stage, error) {
	var ps Params
	a := p.Pass2.Analysis
	ps = addFloat(ps, "frame_ms", a.FrameMs)
	ps = addFloat(ps, "threshold_offset_db", a.ThresholdOffsetDB)
	ps = addFloat(ps, "min_threshold_db", a.MinThresholdDB)
	ps = addFloat(ps, "max_threshold_db", a.MaxThresholdDB)
	if a.SmoothingFrames != nil {
		ps = append(ps, processor.P("smoothing_frames", processor.Int(int64(*a.SmoothingFrames))))
	}
	ps = addFloat(ps, "min_dead_air_ms", a.MinDeadAirMs)
	ps = addFloat(ps, "sustained_voice_ms", a.SustainedVoiceMs)

	var id processor.FilterID
	switch p.Pass2.Strategy {
	case StrategyTrim:
		id = processor.FilterDeadAirTrim
		t := p.Pass2.Trim
		ps = addFloat(ps, "start_buffer_ms", t.StartBufferMs)
		ps = addFloat(ps, "end_buffer_ms", t.EndBufferMs)
		if t.CompressPauses != nil {
			ps = append(ps, processor.P("compress_pauses", processor.Bool(*t.CompressPauses)))
		}
		ps = addFloat(ps, "max_pause_ms", t.MaxPauseMs)
		ps = addFloat(ps, "edge_fade_ms", t.EdgeFadeMs)
	case StrategyAttenuate:
		id = processor.FilterSilenceAttenuate
		at := p.Pass2.Attenuate
		ps = addFloat(ps, "attenuation_db", at.AttenuationDB)
		ps = addFloat(ps, "attack_ms", at.AttackMs)
		ps = addFloat(ps, "release_ms", at.ReleaseMs)
	case StrategyNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", p.Pass2.Strategy)
	}

	cfg, err := ps.Config()
	if err != nil {
		return nil, err
	}
	return &processor.Stage{ID: id, Config: cfg}, nil
}

// AssemblyConfig converts the assembly section.
func (p *Preset) AssemblyConfig() assembly.Config {
	a := p.Assembly
	return assembly.Config{
		Kind:     assembly.Kind(a.Transition),
		Duration: fromMs(a.DurationMs),
		Shape:    assembly.Shape(a.Shape),
		Window:   fromMs(a.WindowMs),
	}
}

// MasteringConfig converts the mastering section.
func (p *Preset) MasteringConfig() assembly.MasteringConfig {
	m := p.Mastering
	cfg := assembly.MasteringConfig{
		Enabled:            m.Enabled == nil || *m.Enabled,
		TargetLUFS:         m.TargetLUFS,
		PeakCeilingDB:      processor.NormTargetTP,
		DynamicRangeTarget: m.DynamicRangeTarget,
		EQPreset:           m.EQPreset,
		LimiterCeilingDB:   processor.NormTargetTP,
	}
	if m.PeakCeilingDB != nil {
		cfg.PeakCeilingDB = *m.PeakCeilingDB
	}
	if m.LimiterCeilingDB != nil {
		cfg.LimiterCeilingDB = *m.LimiterCeilingDB
	}
	return cfg
}

// SyncOptions converts the video section.
func (p *Preset) SyncOptions() avsync.Options {
	return avsync.Options{FrameRate: p.Video.FrameRate}
}

// Fingerprint is a SHA-256 over the canonical JSON form of the preset. Any
// change to a stage, its parameter order or a parameter's kind changes it.
func (p *Preset) Fingerprint() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("preset: fingerprint: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func addFloat(ps Params, key string, v *float64) Params {
	if v == nil {
		return ps
	}
	return append(ps, processor.P(key, processor.Float(*v)))
}

func ptr[T any](v T) *T { return &v }

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func fromMs(v float64) time.Duration { return time.Duration(v * float64(time.Millisecond)) }
