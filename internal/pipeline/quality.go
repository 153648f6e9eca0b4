package pipeline

import (
	"math"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/assembly"
	"github.com/linuxmatters/takemaster/internal/avsync"
	"github.com/linuxmatters/takemaster/internal/processor"
)

// QualityReport compares a source with its processed result.
type QualityReport struct {
	OriginalLUFS          float64 `json:"original_lufs"`
	ProcessedLUFS         float64 `json:"processed_lufs"`
	OriginalDynamicRange  float64 `json:"original_dynamic_range_db"`
	ProcessedDynamicRange float64 `json:"processed_dynamic_range_db"`
	OriginalLRA           float64 `json:"original_lra_lu"`
	ProcessedLRA          float64 `json:"processed_lra_lu"`
	NoiseFloorDB          float64 `json:"noise_floor_db"`
	PeakDBFS              float64 `json:"peak_dbfs"`
	TruePeakDBTP          float64 `json:"true_peak_dbtp"`
	TargetLUFS            float64 `json:"target_lufs"`
	LUFSCompliant         bool    `json:"lufs_compliant"`
	ClippingEvents        int     `json:"clipping_events"`
}

// newQualityReport compares before with after, measured from out.
func newQualityReport(before, after *processor.AudioMeasurements, out *audio.Buffer, targetLUFS float64) QualityReport {
	return QualityReport{
		OriginalLUFS:          before.InputI,
		ProcessedLUFS:         after.InputI,
		OriginalDynamicRange:  before.DynamicRange,
		ProcessedDynamicRange: after.DynamicRange,
		OriginalLRA:           before.InputLRA,
		ProcessedLRA:          after.InputLRA,
		NoiseFloorDB:          after.NoiseFloor,
		PeakDBFS:              after.PeakLevel,
		TruePeakDBTP:          after.InputTP,
		TargetLUFS:            targetLUFS,
		LUFSCompliant:         math.Abs(after.InputI-targetLUFS) <= processor.NormToleranceLU,
		ClippingEvents:        out.ClippingEvents(),
	}
}

// measure classifies and measures buf the way Pass 1 measures its input.
func measure(buf *audio.Buffer) (*processor.AudioMeasurements, error) {
	pc, err := processor.NewContext(buf)
	if err != nil {
		return nil, err
	}
	return pc.Measurements, nil
}

// Report is the JSON quality report written beside the mastered programme.
type Report struct {
	JobID       string                `json:"job_id"`
	Preset      string                `json:"preset"`
	Fingerprint string                `json:"fingerprint"`
	Duration    float64               `json:"duration_seconds"`
	Takes       []TakeReport          `json:"takes"`
	Transitions []assembly.Transition `json:"transitions"`
	Mastering   *MasteringReport      `json:"mastering,omitempty"`
	Sync        *avsync.Compensation  `json:"sync,omitempty"`
	Quality     QualityReport         `json:"quality"`
}

// TakeReport is the per-take part of Report.
type TakeReport struct {
	ID             string               `json:"id"`
	Input          string               `json:"input"`
	Output         string               `json:"output"`
	Cached         bool                 `json:"cached"`
	InputSeconds   float64              `json:"input_seconds"`
	OutputSeconds  float64              `json:"output_seconds"`
	TrimmedSeconds float64              `json:"trimmed_seconds"`
	Quality        QualityReport        `json:"quality"`
	Analyses       []processor.Analysis `json:"analyses"`
}

// MasteringReport records the mastering pass.
type MasteringReport struct {
	Before processor.Loudness `json:"before"`
	After  processor.Loudness `json:"after"`
	Ratios [3]float64         `json:"multiband_ratios"`
}

func newReport(r *Result) *Report {
	rep := &Report{
		JobID:       r.JobID,
		Preset:      r.Preset,
		Fingerprint: r.Fingerprint,
		Duration:    r.Duration.Seconds(),
		Transitions: r.Transitions,
		Sync:        r.Sync,
		Quality:     r.Quality,
	}
	if rep.Transitions == nil {
		rep.Transitions = []assembly.Transition{}
	}
	for _, t := range r.Takes {
		rep.Takes = append(rep.Takes, TakeReport{
			ID:             t.ID,
			Input:          t.InputPath,
			Output:         t.Pass1Path,
			Cached:         t.Cached,
			InputSeconds:   t.Input.Seconds(),
			OutputSeconds:  t.Output.Seconds(),
			TrimmedSeconds: t.Timing.RemovedDuration().Seconds(),
			Quality:        t.Quality,
			Analyses:       t.Analyses,
		})
	}
	if m := r.Mastering; m != nil {
		rep.Mastering = &MasteringReport{Before: m.Before, After: m.After, Ratios: m.Ratios}
	}
	return rep
}
