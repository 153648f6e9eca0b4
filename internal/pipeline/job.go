// Package pipeline runs an export: every take through Pass 1 and Pass 2,
// then assembly, mastering and video sync, writing the mastered programme,
// its timing map and a quality report.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/linuxmatters/takemaster/internal/assembly"
	"github.com/linuxmatters/takemaster/internal/avsync"
	"github.com/linuxmatters/takemaster/internal/preset"
	"github.com/linuxmatters/takemaster/internal/processor"
	"github.com/linuxmatters/takemaster/internal/timing"
)

var (
	// ErrNoTakes is returned for a job without takes.
	ErrNoTakes = errors.New("pipeline: no takes")
	// ErrInvalidJob is returned when a job fails pre-flight checks.
	ErrInvalidJob = errors.New("pipeline: invalid job")
)

// TakeError identifies the take an export failed on.
type TakeError struct {
	Index  int
	TakeID string
	Stage  string
	Err    error
}

func (e *TakeError) Error() string {
	return fmt.Sprintf("take %d (%s) %s: %v", e.Index+1, e.TakeID, e.Stage, e.Err)
}

func (e *TakeError) Unwrap() error { return e.Err }

// TakeInput is one recorded take in scene order.
type TakeInput struct {
	// ID names the take in outputs and cache keys. Empty uses the file name
	// without extension.
	ID   string
	Path string
}

// Job is one export request.
type Job struct {
	// ID is generated when empty.
	ID     string
	Takes  []TakeInput
	Preset *preset.Preset
	// OutputDir receives every artifact. Empty uses the first take's directory.
	OutputDir string
	// Name is the base name of the programme artifacts; defaults to "master".
	Name string
	// VideoTiming is the paired video's timing map. Nil skips sync.
	VideoTiming *timing.Map
	// SyncStrategy forces a compensation strategy; empty selects by drift.
	SyncStrategy avsync.Strategy
}

func (j *Job) normalise() {
	if j.Name == "" {
		j.Name = "master"
	}
	for i := range j.Takes {
		if j.Takes[i].ID == "" {
			base := filepath.Base(j.Takes[i].Path)
			j.Takes[i].ID = strings.TrimSuffix(base, filepath.Ext(base))
		}
	}
	if j.OutputDir == "" && len(j.Takes) > 0 {
		j.OutputDir = filepath.Dir(j.Takes[0].Path)
	}
}

// TakeResult describes one processed take.
type TakeResult struct {
	Index     int    `json:"index"`
	ID        string `json:"id"`
	InputPath string `json:"input_path"`
	// Pass1Path is the cleaned take written after Pass 1.
	Pass1Path string `json:"pass1_path"`
	Cached    bool   `json:"cached"`

	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Input      time.Duration `json:"-"`
	Output     time.Duration `json:"-"`

	// Timing maps the source take onto the Pass-2 output.
	Timing   *timing.Map                  `json:"timing"`
	Measured *processor.AudioMeasurements `json:"input_measurements"`
	Analyses []processor.Analysis         `json:"analyses"`
	Quality  QualityReport                `json:"quality"`

	Pass1Time time.Duration `json:"-"`
	Pass2Time time.Duration `json:"-"`
}

// Result is a finished export.
type Result struct {
	JobID       string
	Preset      string
	Fingerprint string
	Takes       []TakeResult
	Transitions []assembly.Transition
	Mastering   *assembly.MasterResult
	// Timing maps the concatenated source takes onto the mastered programme.
	Timing  *timing.Map
	Sync    *avsync.Compensation
	Quality QualityReport

	MasterPath string
	TimingPath string
	ReportPath string
	// Published maps artifact paths to the URLs they were published at.
	Published map[string]string

	Duration time.Duration
}
