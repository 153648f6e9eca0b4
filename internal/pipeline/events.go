package pipeline

import (
	"github.com/linuxmatters/takemaster/internal/processor"
)

// Phase names a step of an export.
type Phase string

// Export phases in order
const (
	PhasePass1     Phase = "pass1"
	PhasePass2     Phase = "pass2"
	PhaseAssembly  Phase = "assembly"
	PhaseMastering Phase = "mastering"
	PhaseSync      Phase = "sync"
	PhaseWrite     Phase = "write"
)

// EventKind distinguishes progress events.
type EventKind int

const (
	TakeStarted EventKind = iota
	StageDone
	TakeDone
	PhaseStarted
	ExportDone
)

// Event is one progress report. Take events carry Take and TakeID; stage
// events also carry the stage position and processor.
type Event struct {
	Kind      EventKind
	Phase     Phase
	Take      int
	TakeID    string
	Stage     int
	Total     int
	Processor processor.FilterID
	Fraction  float64
	// Result is set on TakeDone.
	Result *TakeResult
	Err    error
}

// ProgressFunc receives events. Pass 1 runs takes concurrently, so it may be
// called from several goroutines at once.
type ProgressFunc func(Event)
