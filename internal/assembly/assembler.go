package assembly

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/timing"
)

var (
	// ErrFormatMismatch is returned when takes differ in sample rate or channel count.
	ErrFormatMismatch = errors.New("assembly: take format mismatch")
	// ErrInvalidConfig is returned for an unusable transition configuration.
	ErrInvalidConfig = errors.New("assembly: invalid configuration")
	// ErrNoTakes is returned when there is nothing to assemble.
	ErrNoTakes = errors.New("assembly: no takes")
)

// timingTolerance is the largest disagreement accepted between a take's
// timing map and its buffer.
const timingTolerance = time.Microsecond

// Take is one processed take in scene order.
type Take struct {
	ID     string
	Buffer *audio.Buffer
	// Timing maps the take's source onto Buffer. Nil means unchanged.
	Timing *timing.Map
}

// Result is the joined programme.
type Result struct {
	Buffer *audio.Buffer
	// Timing maps the concatenated source takes onto Buffer.
	Timing      *timing.Map
	Transitions []Transition
}

// Assembler joins takes with the configured transition at every boundary.
type Assembler struct {
	cfg Config
}

// NewAssembler validates cfg and returns an assembler.
func NewAssembler(cfg Config) (*Assembler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Assembler{cfg: cfg}, nil
}

// Assemble concatenates takes in the order given. Blends overlap the
// neighbouring takes, so the output is shorter than the sum of its inputs by
// the total overlap; the returned timing map accounts for every frame.
func (a *Assembler) Assemble(ctx context.Context, takes []Take) (*Result, error) {
	if len(takes) == 0 {
		return nil, ErrNoTakes
	}
	first := takes[0].Buffer
	maps := make([]*timing.Map, len(takes))
	for i, t := range takes {
		if err := t.Buffer.Validate(); err != nil {
			return nil, fmt.Errorf("take %s: %w", t.ID, err)
		}
		if t.Buffer.SampleRate != first.SampleRate || t.Buffer.Channels() != first.Channels() {
			return nil, fmt.Errorf("%w: take %s is %d Hz/%d ch, expected %d Hz/%d ch",
				ErrFormatMismatch, t.ID, t.Buffer.SampleRate, t.Buffer.Channels(), first.SampleRate, first.Channels())
		}
		maps[i] = t.Timing
		if maps[i] == nil {
			maps[i] = timing.Identity(t.Buffer.Duration())
		}
		if d := maps[i].ProcessedDuration() - t.Buffer.Duration(); d > timingTolerance || d < -timingTolerance {
			return nil, fmt.Errorf("take %s: timing map ends at %v but audio is %v",
				t.ID, maps[i].ProcessedDuration(), t.Buffer.Duration())
		}
	}

	transitions := make([]Transition, 0, len(takes)-1)
	total := first.Frames()
	for i := 1; i < len(takes); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tr := a.cfg.plan(takes[i-1].Buffer, takes[i].Buffer)
		tr.From, tr.To = takes[i-1].ID, takes[i].ID
		transitions = append(transitions, tr)
		total += takes[i].Buffer.Frames() - tr.frames
	}

	out, err := audio.NewBuffer(first.Channels(), total, first.SampleRate)
	if err != nil {
		return nil, err
	}
	joins := timing.NewBuilder(first.SampleRate)

	cursor := copy(out.Samples[0], first.Samples[0])
	for ch := 1; ch < first.Channels(); ch++ {
		copy(out.Samples[ch], first.Samples[ch])
	}
	head := 0 // frames of the current take already consumed by the previous blend
	for i := 1; i < len(takes); i++ {
		tr := &transitions[i-1]
		b := takes[i].Buffer
		n := tr.frames

		joins.Keep(takes[i-1].Buffer.Frames() - head - n)
		joins.Span(2*n, n, timing.Transition)

		if n > 0 {
			blend(out.Samples, cursor, b, n, tr.Shape)
		}
		for ch, src := range b.Samples {
			copy(out.Samples[ch][cursor:], src[n:])
		}
		tr.At = audio.FramesToDuration(cursor-n, first.SampleRate)
		tr.Overlap = audio.FramesToDuration(n, first.SampleRate)
		cursor += b.Frames() - n
		head = n
	}
	joins.Keep(takes[len(takes)-1].Buffer.Frames() - head)

	tm, err := timing.Compose(timing.Concat(maps...), joins.Build())
	if err != nil {
		return nil, fmt.Errorf("assembly timing: %w", err)
	}
	return &Result{Buffer: out, Timing: tm, Transitions: transitions}, nil
}
