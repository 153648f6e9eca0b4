// Package observe provides the OpenTelemetry metric instruments recorded by
// the export pipeline.
//
// Instruments are created from an injected [metric.MeterProvider] so tests can
// read them back through a ManualReader. [DefaultMetrics] binds to the global
// provider, which is a no-op until the application installs one.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all takemaster metrics.
const meterName = "github.com/linuxmatters/takemaster"

// Take outcome values for the status attribute.
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Metrics holds all metric instruments. All fields are safe for concurrent
// use.
type Metrics struct {
	// StageDuration tracks how long one processor stage takes. Use with
	// attribute.String("processor", ...).
	StageDuration metric.Float64Histogram

	// ExportDuration tracks a whole export, from pre-flight to written report.
	ExportDuration metric.Float64Histogram

	// TakesProcessed counts takes by outcome. Use with
	// attribute.String("status", ...).
	TakesProcessed metric.Int64Counter

	// ClippingEvents counts clipped runs found in processed output.
	ClippingEvents metric.Int64Counter

	// SyncDrift records the audio/video drift before compensation, in seconds.
	// Use with attribute.String("strategy", ...).
	SyncDrift metric.Float64Histogram

	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// ActiveTakes tracks takes currently in Pass 1.
	ActiveTakes metric.Int64UpDownCounter
}

// stageBuckets (seconds) span a fast biquad on a short take up to spectral
// noise reduction on a long one.
var stageBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// driftBuckets (seconds) follow the compensation bands.
var driftBuckets = []float64{
	0.01, 0.033, 0.1, 0.5, 1, 2, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.StageDuration, err = m.Float64Histogram("takemaster.stage.duration",
		metric.WithDescription("Time spent in one processing stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExportDuration, err = m.Float64Histogram("takemaster.export.duration",
		metric.WithDescription("Time spent on a whole export."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SyncDrift, err = m.Float64Histogram("takemaster.sync.drift",
		metric.WithDescription("Absolute audio/video drift before compensation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(driftBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TakesProcessed, err = m.Int64Counter("takemaster.takes.processed",
		metric.WithDescription("Takes processed by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ClippingEvents, err = m.Int64Counter("takemaster.clipping.events",
		metric.WithDescription("Clipped sample runs in processed output."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("takemaster.cache.hits",
		metric.WithDescription("Pass-1 results served from cache."),
	); err != nil {
		return nil, err
	}
	if met.CacheMisses, err = m.Int64Counter("takemaster.cache.misses",
		metric.WithDescription("Pass-1 results computed because the cache had none."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveTakes, err = m.Int64UpDownCounter("takemaster.active_takes",
		metric.WithDescription("Takes currently in Pass 1."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordStage records one stage duration.
func (m *Metrics) RecordStage(ctx context.Context, processor string, seconds float64) {
	m.StageDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("processor", processor)),
	)
}

// RecordTake counts one finished take.
func (m *Metrics) RecordTake(ctx context.Context, status string) {
	m.TakesProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordClipping adds clipping events found in a buffer, skipping zero.
func (m *Metrics) RecordClipping(ctx context.Context, events int) {
	if events > 0 {
		m.ClippingEvents.Add(ctx, int64(events))
	}
}

// RecordDrift records the drift compensated with strategy.
func (m *Metrics) RecordDrift(ctx context.Context, strategy string, seconds float64) {
	if seconds < 0 {
		seconds = -seconds
	}
	m.SyncDrift.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("strategy", strategy)),
	)
}

// RecordCache counts a cache lookup.
func (m *Metrics) RecordCache(ctx context.Context, hit bool) {
	if hit {
		m.CacheHits.Add(ctx, 1)
		return
	}
	m.CacheMisses.Add(ctx, 1)
}
