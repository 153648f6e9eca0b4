package pipeline

import (
	"log/slog"
	"runtime"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/observe"
	"github.com/linuxmatters/takemaster/internal/processor"
	"github.com/linuxmatters/takemaster/internal/storage"
)

// Codec decodes takes and encodes outputs.
type Codec interface {
	audio.Decoder
	audio.Encoder
}

// Option is a functional option for [New].
type Option func(*Pipeline)

// WithRegistry sets the processor registry. Defaults to
// [processor.DefaultRegistry].
func WithRegistry(r *processor.Registry) Option {
	return func(p *Pipeline) { p.registry = r }
}

// WithCodec sets the audio codec. Defaults to 24-bit WAV.
func WithCodec(c Codec) Option {
	return func(p *Pipeline) { p.codec = c }
}

// WithCache shares a Pass-1 cache between runs.
func WithCache(c *Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithMetrics sets the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the structured logger. Defaults to a logger that discards
// everything.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithWorkers caps how many takes run Pass 1 at once. Values below one use
// the CPU count.
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithWorkDir places the per-take Pass-1 files in dir instead of the job's
// output directory. The directory is created if missing.
func WithWorkDir(dir string) Option {
	return func(p *Pipeline) { p.workDir = dir }
}

// WithPublisher publishes the programme artifacts under prefix/<job ID>
// after a successful export.
func WithPublisher(pub storage.Publisher, prefix string) Option {
	return func(p *Pipeline) {
		p.publisher = pub
		p.publishPrefix = prefix
	}
}

func (p *Pipeline) applyDefaults() {
	if p.registry == nil {
		p.registry = processor.DefaultRegistry()
	}
	if p.codec == nil {
		p.codec = audio.NewWAVCodec()
	}
	if p.cache == nil {
		p.cache = NewCache(DefaultCacheEntries)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.log == nil {
		p.log = slog.New(slog.DiscardHandler)
	}
	if p.workers < 1 {
		p.workers = runtime.NumCPU()
	}
	if p.publisher == nil {
		p.publisher = storage.Noop{}
	}
}
