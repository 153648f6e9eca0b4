// Package processor handles audio analysis and processing
package processor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/timing"
)

// Processor is one configured DSP stage. Implementations keep no state
// between calls to Process; filter history lives for a single call.
type Processor interface {
	ID() FilterID
	// AffectsTiming reports whether Process may change the frame count.
	AffectsTiming() bool
	// Process consumes buf and returns the processed audio. Ownership of buf
	// passes to the processor, which may modify it in place.
	Process(ctx context.Context, buf *audio.Buffer, pc *Context) (*Result, error)
}

// Result is the output of one stage.
type Result struct {
	Buffer *audio.Buffer
	// Timing maps the stage's input timeline onto its output. Required from
	// timing processors, nil from all others.
	Timing   *timing.Map
	Analysis Analysis
}

// Analysis is the per-stage record appended to the processing context.
type Analysis struct {
	Processor FilterID           `json:"processor"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Notes     []string           `json:"notes,omitempty"`
}

// Summary formats the metrics on one line, keys sorted.
func (a Analysis) Summary() string {
	keys := make([]string, 0, len(a.Metrics))
	for k := range a.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.2f", k, a.Metrics[k]))
	}
	return strings.Join(parts, " ")
}

// base carries the identity shared by every built-in processor.
type base struct {
	id      FilterID
	ignored []string
}

func (b base) ID() FilterID { return b.id }

func (base) AffectsTiming() bool { return false }

func (b base) newAnalysis() Analysis {
	a := Analysis{Processor: b.id, Metrics: make(map[string]float64)}
	for _, k := range b.ignored {
		a.Notes = append(a.Notes, fmt.Sprintf("parameter %q not recognised, ignored", k))
	}
	return a
}

func newBase(p *params) base {
	return base{id: p.id, ignored: p.ignored()}
}
