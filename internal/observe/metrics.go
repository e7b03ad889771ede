// Package observe provides observability primitives for transcribot:
// OpenTelemetry metrics, tracing, trace-aware structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping on /metrics through the Prometheus exporter set up by
// [InitProvider]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all transcribot metrics.
const meterName = "github.com/MrWong99/transcribot"

// Progress edit outcomes for [Metrics.RecordProgressEdit].
const (
	EditSent        = "sent"
	EditSkipped     = "skipped"
	EditRateLimited = "rate_limited"
	EditFailed      = "failed"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// Jobs counts finished transcription jobs. Attributes: provider, status.
	Jobs metric.Int64Counter

	// JobDuration tracks the time from submission to terminal status.
	JobDuration metric.Float64Histogram

	// QueueWait tracks how long requests waited for the admission gate.
	QueueWait metric.Float64Histogram

	// QueueWaiting is the number of requests currently waiting for the gate.
	QueueWaiting metric.Int64UpDownCounter

	// ActiveSessions is the number of sessions holding the gate (0 or 1).
	ActiveSessions metric.Int64UpDownCounter

	// ProviderErrors counts provider failures. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// ProgressEdits counts status-message edits. Attribute: outcome.
	ProgressEdits metric.Int64Counter

	// SummaryDuration tracks meeting-minutes generation latency.
	SummaryDuration metric.Float64Histogram

	// HTTPRequestDuration tracks ops-server request latency. Attributes:
	// method, route, status.
	HTTPRequestDuration metric.Float64Histogram
}

// jobBuckets are histogram boundaries in seconds for jobs that run from
// seconds to hours.
var jobBuckets = []float64{
	1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600, 7200,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Jobs, err = m.Int64Counter("transcribot.jobs",
		metric.WithDescription("Finished transcription jobs by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.JobDuration, err = m.Float64Histogram("transcribot.job.duration",
		metric.WithDescription("Time from job submission to terminal status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(jobBuckets...),
	); err != nil {
		return nil, err
	}
	if met.QueueWait, err = m.Float64Histogram("transcribot.queue.wait",
		metric.WithDescription("Time spent waiting for the admission gate."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(jobBuckets...),
	); err != nil {
		return nil, err
	}
	if met.QueueWaiting, err = m.Int64UpDownCounter("transcribot.queue.waiting",
		metric.WithDescription("Requests waiting for the admission gate."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("transcribot.active_sessions",
		metric.WithDescription("Sessions currently holding the admission gate."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("transcribot.provider.errors",
		metric.WithDescription("Provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ProgressEdits, err = m.Int64Counter("transcribot.progress.edits",
		metric.WithDescription("Status message edits by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SummaryDuration, err = m.Float64Histogram("transcribot.summary.duration",
		metric.WithDescription("Latency of meeting-minutes generation."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("transcribot.http.duration",
		metric.WithDescription("Ops server request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordJob records a finished job and its duration.
func (m *Metrics) RecordJob(ctx context.Context, provider, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	)
	m.Jobs.Add(ctx, 1, attrs)
	m.JobDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordQueueWait records the time a request waited for the gate.
func (m *Metrics) RecordQueueWait(ctx context.Context, d time.Duration) {
	m.QueueWait.Record(ctx, d.Seconds())
}

// RecordProviderError records a provider error. kind is a short label such
// as "submit", "await" or "summary".
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordProgressEdit records the outcome of one status-message edit.
func (m *Metrics) RecordProgressEdit(ctx context.Context, outcome string) {
	m.ProgressEdits.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
