// Package metrics holds the Prometheus collectors exported by the server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RankRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsearch_rank_requests_total",
			Help: "Total number of ranking requests by outcome",
		},
		[]string{"outcome"},
	)

	RankDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobsearch_rank_duration_seconds",
			Help:    "Duration of ranking requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetrieverHits = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobsearch_retriever_hits",
			Help:    "Number of chunk hits returned per retrieval channel",
			Buckets: []float64{0, 1, 10, 50, 100, 250, 500},
		},
		[]string{"channel"},
	)

	RetrieverFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsearch_retriever_failures_total",
			Help: "Total number of retrieval channel failures",
		},
		[]string{"channel", "kind"},
	)

	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsearch_embedding_requests_total",
			Help: "Total number of upstream embedding calls",
		},
		[]string{"provider", "outcome"},
	)

	IngestedJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsearch_ingested_jobs_total",
			Help: "Total number of jobs processed by ingestion",
		},
		[]string{"outcome"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
