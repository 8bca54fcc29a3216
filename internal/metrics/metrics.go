// Package metrics exposes Prometheus instrumentation for the transcription
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription pipeline.
type Metrics struct {
	JobsStarted   prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobsCancelled prometheus.Counter

	ChunksSubmitted prometheus.Counter
	ChunkRetries    prometheus.Counter

	FailuresByCategory *prometheus.CounterVec

	NormalizeFallbacks prometheus.Counter

	SubmissionDuration prometheus.Histogram
}

// New creates pipeline metrics registered on the given registerer. Pass
// prometheus.DefaultRegisterer for production use or a fresh registry in
// tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JobsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicepipe_jobs_started_total",
			Help: "Transcription jobs started",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicepipe_jobs_completed_total",
			Help: "Transcription jobs that reached completed",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicepipe_jobs_failed_total",
			Help: "Transcription jobs that reached failed",
		}),
		JobsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicepipe_jobs_cancelled_total",
			Help: "Transcription jobs cancelled by the user",
		}),
		ChunksSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicepipe_chunks_submitted_total",
			Help: "Audio chunks submitted to providers",
		}),
		ChunkRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicepipe_chunk_retries_total",
			Help: "Chunk submissions retried after a retryable failure",
		}),
		FailuresByCategory: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicepipe_failures_total",
			Help: "Classified failures by category",
		}, []string{"category"}),
		NormalizeFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicepipe_normalize_fallbacks_total",
			Help: "Files passed through unnormalized after decode failure",
		}),
		SubmissionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicepipe_submission_duration_seconds",
			Help:    "Wall time of individual provider submissions",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}
