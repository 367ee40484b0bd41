// Package observe provides application-wide observability for spellcast:
// OpenTelemetry metrics, tracing, and HTTP middleware tying them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so everything can be
// scraped from the usual /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with their own [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all spellcast metrics.
const meterName = "github.com/whizbee/spellcast"

// Metrics holds the OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// AttemptDuration tracks the wall time of one spelling attempt, from
	// capture start to delivered outcome.
	AttemptDuration metric.Float64Histogram

	// ASRDuration tracks transcription latency, including failover.
	ASRDuration metric.Float64Histogram

	// Attempts counts finished attempts. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("accepted", ...)
	Attempts metric.Int64Counter

	// Finalizations counts recording finalizations by reason (silence,
	// timeout, manual, cancelled, drained).
	Finalizations metric.Int64Counter

	// ASRFailures counts transcriptions that exhausted every backend.
	ASRFailures metric.Int64Counter

	// ExtractionConfidence distributes the extractor's 0-100 score.
	ExtractionConfidence metric.Int64Histogram

	// ActiveAttempts tracks attempts currently in flight.
	ActiveAttempts metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram boundaries (in seconds) sized for a
// pipeline that records for a few seconds and then makes one network call.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30,
}

// confidenceBuckets mirrors the extractor's scoring tiers.
var confidenceBuckets = []float64{0, 30, 50, 70, 80, 90, 100}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AttemptDuration, err = m.Float64Histogram("spellcast.attempt.duration",
		metric.WithDescription("Wall time of one spelling attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ASRDuration, err = m.Float64Histogram("spellcast.asr.duration",
		metric.WithDescription("Latency of transcription including failover."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Attempts, err = m.Int64Counter("spellcast.attempts",
		metric.WithDescription("Finished attempts by mode and acceptance."),
	); err != nil {
		return nil, err
	}
	if met.Finalizations, err = m.Int64Counter("spellcast.recording.finalized",
		metric.WithDescription("Recording finalizations by reason."),
	); err != nil {
		return nil, err
	}
	if met.ASRFailures, err = m.Int64Counter("spellcast.asr.failures",
		metric.WithDescription("Transcriptions that exhausted every backend."),
	); err != nil {
		return nil, err
	}

	if met.ExtractionConfidence, err = m.Int64Histogram("spellcast.extraction.confidence",
		metric.WithDescription("Extractor confidence score distribution."),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ActiveAttempts, err = m.Int64UpDownCounter("spellcast.active_attempts",
		metric.WithDescription("Spelling attempts currently in flight."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("spellcast.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call from [otel.GetMeterProvider]. Call [InitProvider] before the
// first use or the instruments bind to the no-op global provider. Panics if
// instrument creation fails (does not happen with the global provider).
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

// RecordAttempt records one finished attempt with its duration and outcome.
func (m *Metrics) RecordAttempt(ctx context.Context, mode string, accepted bool, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("accepted", strconv.FormatBool(accepted)),
	)
	m.Attempts.Add(ctx, 1, attrs)
	m.AttemptDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordFinalization records why a recording ended.
func (m *Metrics) RecordFinalization(ctx context.Context, reason string) {
	m.Finalizations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordASR records one transcription round trip.
func (m *Metrics) RecordASR(ctx context.Context, d time.Duration) {
	m.ASRDuration.Record(ctx, d.Seconds())
}

// RecordASRFailure records a transcription that produced no text.
func (m *Metrics) RecordASRFailure(ctx context.Context) {
	m.ASRFailures.Add(ctx, 1)
}

// RecordConfidence records the extractor's score for one attempt.
func (m *Metrics) RecordConfidence(ctx context.Context, confidence int) {
	m.ExtractionConfidence.Record(ctx, int64(confidence))
}

// AttemptStarted marks an attempt as in flight.
func (m *Metrics) AttemptStarted(ctx context.Context) {
	m.ActiveAttempts.Add(ctx, 1)
}

// AttemptEnded marks an in-flight attempt as finished.
func (m *Metrics) AttemptEnded(ctx context.Context) {
	m.ActiveAttempts.Add(ctx, -1)
}
