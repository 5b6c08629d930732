// Package observe provides application-wide observability primitives for
// Voice Runner: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Voice Runner metrics.
const meterName = "github.com/carivox/voicerunner"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// UtteranceDuration tracks detected utterance lengths.
	UtteranceDuration metric.Float64Histogram

	// RunDuration tracks full game-run lengths.
	RunDuration metric.Float64Histogram

	// HTTPRequestDuration tracks collector HTTP request processing time.
	// Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// Verdicts counts evaluation outcomes. Use with attribute:
	//   attribute.String("reason", ...)
	Verdicts metric.Int64Counter

	// PhraseReveals counts phrases bound to obstacles. Use with attribute:
	//   attribute.String("category", ...)
	PhraseReveals metric.Int64Counter

	// RecordingsStored counts attempt recordings persisted by the collector.
	// Use with attribute: attribute.String("store", ...)
	RecordingsStored metric.Int64Counter

	// --- Error counters ---

	// StoreErrors counts collector storage failures. Use with attributes:
	//   attribute.String("store", ...), attribute.String("op", ...)
	StoreErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveRecordings tracks the number of live recording sessions.
	ActiveRecordings metric.Int64UpDownCounter

	// LiveFeedClients tracks connected live-feed websocket clients.
	LiveFeedClients metric.Int64UpDownCounter
}

// durationBuckets defines histogram bucket boundaries (in seconds) spanning
// both utterance lengths and HTTP request latencies.
var durationBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.UtteranceDuration, err = m.Float64Histogram("voicerunner.utterance.duration",
		metric.WithDescription("Length of detected utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RunDuration, err = m.Float64Histogram("voicerunner.run.duration",
		metric.WithDescription("Length of completed game runs."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voicerunner.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Verdicts, err = m.Int64Counter("voicerunner.evaluation.verdicts",
		metric.WithDescription("Total evaluation verdicts by reason."),
	); err != nil {
		return nil, err
	}
	if met.PhraseReveals, err = m.Int64Counter("voicerunner.phrase.reveals",
		metric.WithDescription("Total phrases revealed to players by category."),
	); err != nil {
		return nil, err
	}
	if met.RecordingsStored, err = m.Int64Counter("voicerunner.recordings.stored",
		metric.WithDescription("Total attempt recordings persisted by store backend."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.StoreErrors, err = m.Int64Counter("voicerunner.store.errors",
		metric.WithDescription("Total collector storage failures by backend and operation."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRecordings, err = m.Int64UpDownCounter("voicerunner.active_recordings",
		metric.WithDescription("Number of live recording sessions."),
	); err != nil {
		return nil, err
	}
	if met.LiveFeedClients, err = m.Int64UpDownCounter("voicerunner.livefeed.clients",
		metric.WithDescription("Number of connected live-feed clients."),
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

// RecordVerdict records an evaluation verdict counter increment.
func (m *Metrics) RecordVerdict(ctx context.Context, reason string) {
	m.Verdicts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordPhraseReveal records a phrase reveal counter increment.
func (m *Metrics) RecordPhraseReveal(ctx context.Context, category string) {
	m.PhraseReveals.Add(ctx, 1,
		metric.WithAttributes(attribute.String("category", category)),
	)
}

// RecordStoreError records a collector storage failure.
func (m *Metrics) RecordStoreError(ctx context.Context, store, op string) {
	m.StoreErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("store", store),
			attribute.String("op", op),
		),
	)
}
