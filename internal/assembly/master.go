package assembly

import (
	"context"
	"fmt"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/processor"
)

// Multiband ratios before tuning toward the dynamic-range target.
var baseRatios = [3]float64{2, 3, 2.5}

// Ratio scaling limits
const (
	minRatioScale = 0.5
	maxRatioScale = 3.0
	maxBandRatio  = 10.0
)

// MasteringConfig is the whole-programme pass run after assembly.
type MasteringConfig struct {
	Enabled    bool
	TargetLUFS float64
	// PeakCeilingDB is the true-peak ceiling the loudness stage respects.
	PeakCeilingDB float64
	// DynamicRangeTarget is the desired loudness range in LU. Zero keeps the
	// multiband defaults.
	DynamicRangeTarget float64
	// EQPreset names a processor EQ preset; empty skips the EQ stage.
	EQPreset         string
	LimiterCeilingDB float64
}

// DefaultMastering targets podcast loudness.
func DefaultMastering() MasteringConfig {
	return MasteringConfig{
		Enabled:            true,
		TargetLUFS:         processor.NormTargetLUFS,
		PeakCeilingDB:      processor.NormTargetTP,
		DynamicRangeTarget: 8,
		EQPreset:           "flat",
		LimiterCeilingDB:   processor.NormTargetTP,
	}
}

// MasterResult is the mastered programme with its measurements.
type MasterResult struct {
	Buffer   *audio.Buffer
	Before   processor.Loudness
	After    processor.Loudness
	Ratios   [3]float64
	Analyses []processor.Analysis
}

// Master runs multiband -> eq -> limiter -> loudness over the assembled
// programme. The loudness stage limits any peaks its gain pushes over the
// ceiling, so the result lands on the target. Mastering never changes
// duration.
func Master(ctx context.Context, reg *processor.Registry, buf *audio.Buffer, cfg MasteringConfig) (*MasterResult, error) {
	before := processor.MeasureLoudness(buf)
	if !cfg.Enabled {
		return &MasterResult{Buffer: buf, Before: before, After: before}, nil
	}

	stages, ratios, err := masteringStages(cfg, before.Range)
	if err != nil {
		return nil, err
	}
	chain, err := reg.Build(stages)
	if err != nil {
		return nil, fmt.Errorf("mastering chain: %w", err)
	}
	res, err := chain.Run(ctx, buf, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("mastering: %w", err)
	}
	return &MasterResult{
		Buffer:   res.Buffer,
		Before:   before,
		After:    processor.MeasureLoudness(res.Buffer),
		Ratios:   ratios,
		Analyses: res.Analyses,
	}, nil
}

func masteringStages(cfg MasteringConfig, lra float64) ([]processor.Stage, [3]float64, error) {
	ratios := tuneRatios(lra, cfg.DynamicRangeTarget)

	var stages []processor.Stage
	add := func(id processor.FilterID, params ...processor.Param) error {
		c, err := processor.NewConfig(params...)
		if err != nil {
			return err
		}
		stages = append(stages, processor.Stage{ID: id, Config: c})
		return nil
	}

	err := add(processor.FilterMultiband,
		processor.P("low_ratio", processor.Float(ratios[0])),
		processor.P("mid_ratio", processor.Float(ratios[1])),
		processor.P("high_ratio", processor.Float(ratios[2])),
	)
	if err == nil && cfg.EQPreset != "" {
		err = add(processor.FilterEQ, processor.P("preset", processor.String(cfg.EQPreset)))
	}
	if err == nil {
		err = add(processor.FilterLimiter, processor.P("ceiling_db", processor.Float(cfg.LimiterCeilingDB)))
	}
	if err == nil {
		err = add(processor.FilterLoudness,
			processor.P("target_lufs", processor.Float(cfg.TargetLUFS)),
			processor.P("ceiling_dbtp", processor.Float(cfg.PeakCeilingDB)),
			processor.P("limit_peaks", processor.Bool(true)),
		)
	}
	return stages, ratios, err
}

// tuneRatios scales the multiband ratios by how far the measured loudness
// range sits from the target: a wide programme gets firmer ratios, a narrow
// one gets gentler ones.
func tuneRatios(lra, target float64) [3]float64 {
	ratios := baseRatios
	if target <= 0 || lra <= 0 {
		return ratios
	}
	scale := min(max(lra/target, minRatioScale), maxRatioScale)
	for i, r := range ratios {
		ratios[i] = min(max(r*scale, 1), maxBandRatio)
	}
	return ratios
}
