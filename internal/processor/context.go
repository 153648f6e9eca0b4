package processor

import (
	"time"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/silence"
)

// TimeRange is a half-open span of the take.
type TimeRange struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Context is the per-take scratch state shared by the stages of one chain
// run. It is owned by that run and must not be shared between takes.
type Context struct {
	SampleRate     int
	Channels       int
	NoiseFloorDB   float64
	AverageLevelDB float64
	PeakLevelDB    float64
	Silence        []TimeRange

	// Measurements drive adaptive defaults for parameters a preset leaves unset.
	Measurements *AudioMeasurements
	// Voice is the classification the measurements were taken from.
	Voice *silence.Analysis

	Analyses []Analysis
}

// NewContext measures buf and returns a fresh context for one take.
func NewContext(buf *audio.Buffer) (*Context, error) {
	va, err := silence.Analyze(buf, silence.DefaultOptions())
	if err != nil {
		return nil, err
	}
	m := Measure(buf, va)

	pc := &Context{
		SampleRate:     buf.SampleRate,
		Channels:       buf.Channels(),
		NoiseFloorDB:   va.NoiseFloorDB,
		AverageLevelDB: m.RMSLevel,
		PeakLevelDB:    m.PeakLevel,
		Measurements:   m,
		Voice:          va,
	}
	for _, r := range va.SilenceRegions() {
		pc.Silence = append(pc.Silence, TimeRange{Start: r.Start, End: r.End})
	}
	return pc, nil
}

// Record appends a stage analysis.
func (c *Context) Record(a Analysis) {
	c.Analyses = append(c.Analyses, a)
}

// LongestSilence returns the longest detected silence range.
func (c *Context) LongestSilence() (TimeRange, bool) {
	var best TimeRange
	for _, r := range c.Silence {
		if r.End-r.Start > best.End-best.Start {
			best = r
		}
	}
	return best, best.End > best.Start
}

// measurements returns the context measurements, or neutral defaults when a
// processor runs without a measured context.
func (c *Context) measurements() *AudioMeasurements {
	if c == nil || c.Measurements == nil {
		return defaultMeasurements()
	}
	return c.Measurements
}
