package processor

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/linuxmatters/takemaster/internal/audio"
)

// fakeProcessor runs fn over the buffer and records its ID when called.
type fakeProcessor struct {
	id     FilterID
	timing bool
	calls  *[]FilterID
	fn     func(buf *audio.Buffer) *audio.Buffer
}

func (f *fakeProcessor) ID() FilterID        { return f.id }
func (f *fakeProcessor) AffectsTiming() bool { return f.timing }

func (f *fakeProcessor) Process(_ context.Context, buf *audio.Buffer, _ *Context) (*Result, error) {
	if f.calls != nil {
		*f.calls = append(*f.calls, f.id)
	}
	if f.fn != nil {
		buf = f.fn(buf)
	}
	return &Result{Buffer: buf, Analysis: Analysis{Processor: f.id}}, nil
}

func TestEmptyChainIsIdentity(t *testing.T) {
	buf := generate(t, tone(time.Second, 440, -12))
	want := buf.Clone()

	res, err := NewChain().Run(context.Background(), buf, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Buffer.Equal(want) {
		t.Error("empty chain changed the samples")
	}
	if res.Timing.ProcessedDuration() != want.Duration() || res.Timing.RemovedDuration() != 0 {
		t.Errorf("timing = %v processed, %v removed; want identity", res.Timing.ProcessedDuration(), res.Timing.RemovedDuration())
	}
	if len(res.Analyses) != 0 {
		t.Errorf("got %d analyses, want 0", len(res.Analyses))
	}
}

func TestBuildUnknownProcessor(t *testing.T) {
	_, err := DefaultRegistry().Build([]Stage{
		{ID: FilterHighpass},
		{ID: "reverse_reverb"},
	})
	if !errors.Is(err, ErrUnknownProcessor) {
		t.Fatalf("err = %v, want ErrUnknownProcessor", err)
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unknown processor should also be an ErrInvalidConfig")
	}
}

func TestBuildRejectsBadParameter(t *testing.T) {
	_, err := DefaultRegistry().Build([]Stage{
		{ID: FilterGate, Config: config(t, P("ratio", Float(0.5)))},
	})
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
	if ce.Processor != FilterGate || ce.Key != "ratio" {
		t.Errorf("ConfigError = %+v, want gate/ratio", ce)
	}
}

func TestChainRunsStagesInOrder(t *testing.T) {
	var calls []FilterID
	c := NewChain(
		&fakeProcessor{id: "a", calls: &calls},
		&fakeProcessor{id: "b", calls: &calls},
		&fakeProcessor{id: "c", calls: &calls},
	)

	var progress []int
	_, err := c.Run(context.Background(), generate(t, tone(ms(100), 440, -12)), nil,
		func(stage, total int, _ FilterID, _ float64) {
			if total != 3 {
				t.Errorf("total = %d, want 3", total)
			}
			progress = append(progress, stage)
		})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !slices.Equal(calls, []FilterID{"a", "b", "c"}) {
		t.Errorf("calls = %v", calls)
	}
	if !slices.Equal(progress, []int{1, 2, 3}) {
		t.Errorf("progress = %v", progress)
	}
}

func TestChainCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls []FilterID
	c := NewChain(
		&fakeProcessor{id: "first", calls: &calls, fn: func(b *audio.Buffer) *audio.Buffer {
			cancel()
			return b
		}},
		&fakeProcessor{id: "second", calls: &calls},
	)
	_, err := c.Run(ctx, generate(t, tone(ms(100), 440, -12)), nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !slices.Equal(calls, []FilterID{"first"}) {
		t.Errorf("calls = %v, second stage should not run", calls)
	}
}

func TestChainRejectsDurationChange(t *testing.T) {
	c := NewChain(
		&fakeProcessor{id: "ok"},
		&fakeProcessor{id: "shortener", fn: func(b *audio.Buffer) *audio.Buffer {
			return b.Slice(0, b.Frames()/2)
		}},
	)
	_, err := c.Run(context.Background(), generate(t, tone(ms(200), 440, -12)), nil, nil)
	if !errors.Is(err, ErrDurationChanged) {
		t.Fatalf("err = %v, want ErrDurationChanged", err)
	}
	if !errors.Is(err, ErrProcessing) {
		t.Error("stage failure should match ErrProcessing")
	}
	var pe *ProcessingError
	if !errors.As(err, &pe) || pe.Processor != "shortener" || pe.Stage != 1 {
		t.Errorf("ProcessingError = %+v", pe)
	}
}

func TestChainRejectsNonFinite(t *testing.T) {
	c := NewChain(&fakeProcessor{id: "nan", fn: func(b *audio.Buffer) *audio.Buffer {
		b.Samples[0][10] = float32(math.NaN())
		return b
	}})
	_, err := c.Run(context.Background(), generate(t, tone(ms(100), 440, -12)), nil, nil)
	if !errors.Is(err, ErrNonFinite) {
		t.Fatalf("err = %v, want ErrNonFinite", err)
	}
}

func TestChainTimingFollowsTrim(t *testing.T) {
	buf := generate(t,
		hiss(2*time.Second, -70),
		tone(time.Second, 220, -20),
		hiss(2*time.Second, -70),
	)
	in := buf.Duration()
	c := NewChain(build(t, FilterHighpass, P("frequency_hz", Int(60))), build(t, FilterDeadAirTrim))
	if !c.AffectsTiming() {
		t.Fatal("chain with dead_air_trim should affect timing")
	}

	res, err := c.Run(context.Background(), buf, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Buffer.Duration() >= in {
		t.Errorf("output %v not shorter than input %v", res.Buffer.Duration(), in)
	}
	if res.Timing.OriginalDuration() != in {
		t.Errorf("timing original = %v, want %v", res.Timing.OriginalDuration(), in)
	}
	if res.Timing.ProcessedDuration() != res.Buffer.Duration() {
		t.Errorf("timing processed = %v, output = %v", res.Timing.ProcessedDuration(), res.Buffer.Duration())
	}
	if len(res.Analyses) != 2 {
		t.Errorf("got %d analyses, want 2", len(res.Analyses))
	}
}

func TestUnknownParameterIsNoted(t *testing.T) {
	p := build(t, FilterLimiter, P("ceiling_db", Float(-3)), P("colour", String("warm")))
	res, err := p.Process(context.Background(), generate(t, tone(ms(100), 440, -1)), nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Analysis.Notes) != 1 {
		t.Fatalf("notes = %v, want one ignored-parameter note", res.Analysis.Notes)
	}
}
