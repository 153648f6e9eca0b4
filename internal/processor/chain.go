package processor

import (
	"context"
	"fmt"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/timing"
)

// Stage is one (processor, config) entry of a preset.
type Stage struct {
	ID     FilterID
	Config Config
}

// ProgressFunc is called after each completed stage.
type ProgressFunc func(stage, total int, id FilterID, fraction float64)

// Chain is an ordered list of resolved processors. Stages run strictly in
// the order given; the chain never reorders them.
type Chain struct {
	processors []Processor
}

// Build resolves every stage before anything is processed, so unknown IDs
// and bad parameters surface as configuration errors up front.
func (r *Registry) Build(stages []Stage) (*Chain, error) {
	c := &Chain{processors: make([]Processor, 0, len(stages))}
	for i, s := range stages {
		p, err := r.New(s.ID, s.Config)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
		c.processors = append(c.processors, p)
	}
	return c, nil
}

// NewChain wraps already constructed processors.
func NewChain(processors ...Processor) *Chain {
	return &Chain{processors: processors}
}

// Len returns the number of stages.
func (c *Chain) Len() int { return len(c.processors) }

// IDs returns the stage IDs in order.
func (c *Chain) IDs() []FilterID {
	ids := make([]FilterID, len(c.processors))
	for i, p := range c.processors {
		ids[i] = p.ID()
	}
	return ids
}

// AffectsTiming reports whether any stage may change duration.
func (c *Chain) AffectsTiming() bool {
	for _, p := range c.processors {
		if p.AffectsTiming() {
			return true
		}
	}
	return false
}

// ChainResult is the output of a full chain run.
type ChainResult struct {
	Buffer   *audio.Buffer
	Analyses []Analysis
	// Timing maps the chain input onto its output; identity unless a
	// timing stage ran.
	Timing *timing.Map
}

// Run feeds buf through every stage. Cancellation is checked before each
// stage. Any failure aborts the run; no partial result is returned.
func (c *Chain) Run(ctx context.Context, buf *audio.Buffer, pc *Context, progress ProgressFunc) (*ChainResult, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if pc == nil {
		pc = &Context{SampleRate: buf.SampleRate, Channels: buf.Channels()}
	}

	total := len(c.processors)
	tm := timing.NewBuilder(buf.SampleRate).Keep(buf.Frames()).Build()
	start := len(pc.Analyses)

	for i, p := range c.processors {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("chain cancelled before stage %d (%s): %w", i+1, p.ID(), err)
		}

		frames := buf.Frames()
		res, err := p.Process(ctx, buf, pc)
		if err != nil {
			return nil, &ProcessingError{Processor: p.ID(), Stage: i, Err: err}
		}
		if res == nil || res.Buffer == nil {
			return nil, &ProcessingError{Processor: p.ID(), Stage: i, Err: fmt.Errorf("no output buffer")}
		}
		if res.Buffer.SampleRate != buf.SampleRate {
			return nil, &ProcessingError{Processor: p.ID(), Stage: i,
				Err: fmt.Errorf("sample rate changed from %d to %d", buf.SampleRate, res.Buffer.SampleRate)}
		}
		if res.Buffer.HasNonFinite() {
			return nil, &ProcessingError{Processor: p.ID(), Stage: i, Err: ErrNonFinite}
		}

		if p.AffectsTiming() {
			if res.Timing == nil {
				return nil, &ProcessingError{Processor: p.ID(), Stage: i, Err: fmt.Errorf("timing processor returned no timing map")}
			}
			if res.Timing.ProcessedDuration() != res.Buffer.Duration() {
				return nil, &ProcessingError{Processor: p.ID(), Stage: i,
					Err: fmt.Errorf("timing map ends at %v but output is %v", res.Timing.ProcessedDuration(), res.Buffer.Duration())}
			}
			tm, err = timing.Compose(tm, res.Timing)
			if err != nil {
				return nil, &ProcessingError{Processor: p.ID(), Stage: i, Err: err}
			}
		} else if res.Buffer.Frames() != frames {
			return nil, &ProcessingError{Processor: p.ID(), Stage: i,
				Err: fmt.Errorf("%w: %d -> %d frames", ErrDurationChanged, frames, res.Buffer.Frames())}
		}

		buf = res.Buffer
		pc.Record(res.Analysis)
		if progress != nil {
			progress(i+1, total, p.ID(), float64(i+1)/float64(total))
		}
	}

	return &ChainResult{
		Buffer:   buf,
		Analyses: append([]Analysis(nil), pc.Analyses[start:]...),
		Timing:   tm,
	}, nil
}
