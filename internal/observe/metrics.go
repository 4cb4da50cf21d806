// Package observe provides observability primitives for the sermon pipeline:
// OpenTelemetry metrics, tracing helpers, and HTTP middleware tying them
// together.
//
// Metrics are recorded through the OTel Metrics API and exposed for scraping
// via the Prometheus exporter bridge set up in [InitProvider]. Tests should
// use [NewMetrics] with their own [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all pipeline metrics.
const meterName = "github.com/calebmoss/berea"

// Metrics holds the pipeline's metric instruments. All fields are safe for
// concurrent use.
type Metrics struct {
	// ChunkUploadDuration tracks per-chunk upload latency. Attributes:
	//   attribute.String("status", "succeeded"|"failed")
	ChunkUploadDuration metric.Float64Histogram

	// TranscriptionDuration tracks per-chunk transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// TrackTransitions counts sermon track state transitions. Attributes:
	//   attribute.String("track", ...), attribute.String("status", ...)
	TrackTransitions metric.Int64Counter

	// SegmentCacheHits and SegmentCacheMisses count segment cache outcomes.
	SegmentCacheHits   metric.Int64Counter
	SegmentCacheMisses metric.Int64Counter

	// AnchorConfidence records the similarity score of each resolved anchor.
	AnchorConfidence metric.Float64Histogram

	// AnchorsUnresolved counts anchors that fell below the threshold.
	AnchorsUnresolved metric.Int64Counter

	// VerificationLookups counts suggested-reference classifications.
	// Attribute: attribute.String("status", "verified"|"partial"|"unverified"|"unknown")
	VerificationLookups metric.Int64Counter

	// CaptionDetections counts newly emitted live caption references.
	CaptionDetections metric.Int64Counter

	// ActiveCaptionSessions tracks currently open caption sessions.
	ActiveCaptionSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets covers both quick HTTP requests and minute-long chunk jobs
// (seconds).
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300,
}

// confidenceBuckets covers the anchor similarity range above the threshold.
var confidenceBuckets = []float64{
	0.80, 0.85, 0.90, 0.95, 0.99, 1.0,
}

// NewMetrics creates all instruments on the given [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ChunkUploadDuration, err = m.Float64Histogram("berea.chunk.upload.duration",
		metric.WithDescription("Per-chunk upload latency by status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("berea.chunk.transcription.duration",
		metric.WithDescription("Per-chunk transcription latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TrackTransitions, err = m.Int64Counter("berea.sermon.track.transitions",
		metric.WithDescription("Sermon processing track transitions by track and status."),
	); err != nil {
		return nil, err
	}
	if met.SegmentCacheHits, err = m.Int64Counter("berea.segments.cache.hits",
		metric.WithDescription("Display segment cache hits."),
	); err != nil {
		return nil, err
	}
	if met.SegmentCacheMisses, err = m.Int64Counter("berea.segments.cache.misses",
		metric.WithDescription("Display segment cache misses (recomputations)."),
	); err != nil {
		return nil, err
	}
	if met.AnchorConfidence, err = m.Float64Histogram("berea.anchor.confidence",
		metric.WithDescription("Similarity score of resolved anchors."),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnchorsUnresolved, err = m.Int64Counter("berea.anchor.unresolved",
		metric.WithDescription("Anchors left unresolved below the similarity threshold."),
	); err != nil {
		return nil, err
	}
	if met.VerificationLookups, err = m.Int64Counter("berea.verify.lookups",
		metric.WithDescription("Suggested reference classifications by status."),
	); err != nil {
		return nil, err
	}
	if met.CaptionDetections, err = m.Int64Counter("berea.caption.detections",
		metric.WithDescription("Newly detected references in live captions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCaptionSessions, err = m.Int64UpDownCounter("berea.caption.active_sessions",
		metric.WithDescription("Currently open live caption sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("berea.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// DefaultMetrics returns the package-level [Metrics] instance, created on
// first call from the global meter provider.
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

// RecordTrackTransition increments the track transition counter.
func (m *Metrics) RecordTrackTransition(ctx context.Context, track, status string) {
	m.TrackTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("track", track),
		attribute.String("status", status),
	))
}

// RecordVerification increments the classification counter for one status.
func (m *Metrics) RecordVerification(ctx context.Context, status string) {
	m.VerificationLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}
