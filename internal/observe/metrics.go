// Package observe provides application-wide observability primitives for
// voxlog: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all voxlog metrics.
const meterName = "github.com/voxlog/voxlog"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks ASR latency per transcribed file.
	TranscriptionDuration metric.Float64Histogram

	// ChunkDuration tracks ASR latency per chunk window within a file.
	ChunkDuration metric.Float64Histogram

	// JournalWriteDuration tracks journal store write latency.
	JournalWriteDuration metric.Float64Histogram

	// --- Counters ---

	// BackendRequests counts ASR backend calls. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("status", ...)
	BackendRequests metric.Int64Counter

	// SegmentsConfirmed counts speech segments confirmed during recording.
	SegmentsConfirmed metric.Int64Counter

	// DedupOverlapWords distributes the word count removed when merging
	// consecutive chunk transcripts. Zero means no overlap matched.
	DedupOverlapWords metric.Int64Histogram

	// DedupNearMisses counts chunk boundaries where no exact overlap matched
	// but a fuzzy comparison suggests the texts disagree on the same words.
	DedupNearMisses metric.Int64Counter

	// ModelDownloadBytes accumulates bytes fetched while downloading models.
	ModelDownloadBytes metric.Int64Counter

	// --- Error counters ---

	// PipelineErrors counts pipeline failures. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("kind", ...)
	PipelineErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveRecordings tracks the number of live recording sessions.
	ActiveRecordings metric.Int64UpDownCounter

	// PendingTranscriptions tracks voice entries awaiting transcription.
	PendingTranscriptions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for transcription latencies: chunk decodes take hundreds of milliseconds to
// tens of seconds depending on hardware and window length.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// overlapBuckets covers the dedup search range of 2 to 10 words.
var overlapBuckets = []float64{0, 2, 3, 4, 5, 6, 7, 8, 9, 10}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("voxlog.transcription.duration",
		metric.WithDescription("Latency of one full-file transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChunkDuration, err = m.Float64Histogram("voxlog.chunk.duration",
		metric.WithDescription("Latency of one chunk-window decode."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.JournalWriteDuration, err = m.Float64Histogram("voxlog.journal.write.duration",
		metric.WithDescription("Latency of journal store writes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DedupOverlapWords, err = m.Int64Histogram("voxlog.dedup.overlap_words",
		metric.WithDescription("Words removed per chunk boundary during overlap dedup."),
		metric.WithUnit("{word}"),
		metric.WithExplicitBucketBoundaries(overlapBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.BackendRequests, err = m.Int64Counter("voxlog.backend.requests",
		metric.WithDescription("Total ASR backend requests by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsConfirmed, err = m.Int64Counter("voxlog.segments.confirmed",
		metric.WithDescription("Total speech segments confirmed during recording."),
	); err != nil {
		return nil, err
	}
	if met.DedupNearMisses, err = m.Int64Counter("voxlog.dedup.near_misses",
		metric.WithDescription("Chunk boundaries where only a fuzzy overlap was found."),
	); err != nil {
		return nil, err
	}
	if met.ModelDownloadBytes, err = m.Int64Counter("voxlog.model.download.bytes",
		metric.WithDescription("Bytes fetched while downloading ASR models."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.PipelineErrors, err = m.Int64Counter("voxlog.pipeline.errors",
		metric.WithDescription("Total pipeline errors by stage and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRecordings, err = m.Int64UpDownCounter("voxlog.active_recordings",
		metric.WithDescription("Number of live recording sessions."),
	); err != nil {
		return nil, err
	}
	if met.PendingTranscriptions, err = m.Int64UpDownCounter("voxlog.pending_transcriptions",
		metric.WithDescription("Voice entries awaiting transcription."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxlog.http.request.duration",
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

// RecordBackendRequest is a convenience method that records an ASR backend
// request counter increment with the standard attribute set.
func (m *Metrics) RecordBackendRequest(ctx context.Context, backend, status string) {
	m.BackendRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("status", status),
		),
	)
}

// RecordPipelineError is a convenience method that records a pipeline error
// counter increment.
func (m *Metrics) RecordPipelineError(ctx context.Context, stage, kind string) {
	m.PipelineErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("kind", kind),
		),
	)
}

// RecordDedupOverlap records the word count removed at one chunk boundary.
func (m *Metrics) RecordDedupOverlap(ctx context.Context, words int) {
	m.DedupOverlapWords.Record(ctx, int64(words))
}
