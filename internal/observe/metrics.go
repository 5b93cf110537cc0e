// Package observe provides application-wide observability primitives for
// voxsplit: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxsplit metrics.
const meterName = "github.com/voxsplit/voxsplit"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// SegmentDuration tracks the audio duration of emitted speech segments.
	SegmentDuration metric.Float64Histogram

	// ClassifyDuration tracks per-frame classifier inference latency. Use
	// with attribute: attribute.String("classifier", ...)
	ClassifyDuration metric.Float64Histogram

	// --- Counters ---

	// FramesProcessed counts audio frames fed through the pipeline.
	FramesProcessed metric.Int64Counter

	// SegmentsEmitted counts finalized speech segments.
	SegmentsEmitted metric.Int64Counter

	// Misfires counts segments discarded for being shorter than the
	// minimum speech duration.
	Misfires metric.Int64Counter

	// AudioBytesIn counts inbound audio payload bytes. Use with attribute:
	//   attribute.String("encoding", ...)
	AudioBytesIn metric.Int64Counter

	// ClassifierErrors counts degraded frames caused by classifier
	// failures. Use with attribute: attribute.String("classifier", ...)
	ClassifierErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of live segmentation streams.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// segmentBuckets defines histogram bucket boundaries (in seconds) for
// speech segment durations: from barely-over-misfire to long monologues.
var segmentBuckets = []float64{
	0.25, 0.5, 1, 2, 5, 10, 20, 30, 60,
}

// inferenceBuckets defines histogram bucket boundaries (in seconds) for
// per-frame classifier latency: frames arrive every 16 ms, so anything past
// 10 ms is already trouble.
var inferenceBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SegmentDuration, err = m.Float64Histogram("voxsplit.segment.duration",
		metric.WithDescription("Audio duration of emitted speech segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(segmentBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClassifyDuration, err = m.Float64Histogram("voxsplit.classify.duration",
		metric.WithDescription("Per-frame classifier inference latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(inferenceBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("voxsplit.frames.processed",
		metric.WithDescription("Total audio frames fed through the pipeline."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsEmitted, err = m.Int64Counter("voxsplit.segments.emitted",
		metric.WithDescription("Total finalized speech segments."),
	); err != nil {
		return nil, err
	}
	if met.Misfires, err = m.Int64Counter("voxsplit.segments.misfires",
		metric.WithDescription("Total segments discarded as misfires."),
	); err != nil {
		return nil, err
	}
	if met.AudioBytesIn, err = m.Int64Counter("voxsplit.audio.bytes_in",
		metric.WithDescription("Total inbound audio payload bytes by encoding."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.ClassifierErrors, err = m.Int64Counter("voxsplit.classifier.errors",
		metric.WithDescription("Total degraded frames caused by classifier failures."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStreams, err = m.Int64UpDownCounter("voxsplit.active_streams",
		metric.WithDescription("Number of live segmentation streams."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxsplit.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSegment records a finalized segment with its audio duration.
func (m *Metrics) RecordSegment(ctx context.Context, seconds float64) {
	m.SegmentsEmitted.Add(ctx, 1)
	m.SegmentDuration.Record(ctx, seconds)
}

// RecordMisfire records a discarded short segment.
func (m *Metrics) RecordMisfire(ctx context.Context) {
	m.Misfires.Add(ctx, 1)
}

// RecordClassifierError records a degraded frame for the named classifier.
func (m *Metrics) RecordClassifierError(ctx context.Context, classifier string) {
	m.ClassifierErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("classifier", classifier)),
	)
}

// StreamOpened increments the active stream gauge.
func (m *Metrics) StreamOpened(ctx context.Context) {
	m.ActiveStreams.Add(ctx, 1)
}

// StreamClosed decrements the active stream gauge.
func (m *Metrics) StreamClosed(ctx context.Context) {
	m.ActiveStreams.Add(ctx, -1)
}
