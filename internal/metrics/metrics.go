package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsStarted counts background jobs by type.
	JobsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobtrack_jobs_started_total",
		Help: "The total number of background jobs started",
	}, []string{"type"})

	// JobsFinished counts finished background jobs by type and outcome.
	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobtrack_jobs_finished_total",
		Help: "The total number of background jobs finished",
	}, []string{"type", "status"})

	// JobDuration observes how long background jobs run.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jobtrack_job_duration_seconds",
		Help:    "Duration of background job execution.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"type"})

	// EnrichmentRequests counts enrichment fetches by outcome
	// (success, failure).
	EnrichmentRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobtrack_enrichment_requests_total",
		Help: "The total number of enrichment page fetches",
	}, []string{"outcome"})

	// CandidatesImported counts imported candidate items by kind.
	CandidatesImported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobtrack_candidates_imported_total",
		Help: "The total number of email candidates imported",
	}, []string{"kind"})
)
