// Package metrics holds the Prometheus collectors for ingestion, retrieval and HTTP traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docrag_http_requests_total",
	Help: "Total number of requests labelled by route and status",
}, []string{"route", "status"})

var ingestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docrag_ingestions_total",
	Help: "Ingestions labelled by outcome (indexed, skipped, or the error kind)",
}, []string{"outcome"})

var chunksIndexed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "docrag_chunks_indexed_total",
	Help: "Chunks written to the vector index",
})

var retrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docrag_retrievals_total",
	Help: "Retrievals labelled by outcome (results, no_results, error)",
}, []string{"outcome"})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "docrag_dependency_latency_seconds",
	Help:    "Latency of embedding and vector index calls.",
	Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2, 5, 10},
}, []string{"service"})

var operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "docrag_operation_duration_seconds",
	Help:    "Total time spent in ingest and retrieve.",
	Buckets: []float64{.01, .05, .1, .5, 1, 2, 5, 10, 30},
}, []string{"operation"})

// StatusRecorder captures the response status for request metrics.
type StatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *StatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordIngestion(outcome string, chunks int, elapsed time.Duration) {
	ingestionsTotal.WithLabelValues(outcome).Inc()
	if chunks > 0 {
		chunksIndexed.Add(float64(chunks))
	}
	operationDuration.WithLabelValues("ingest").Observe(elapsed.Seconds())
}

func RecordRetrieval(outcome string, elapsed time.Duration) {
	retrievalsTotal.WithLabelValues(outcome).Inc()
	operationDuration.WithLabelValues("retrieve").Observe(elapsed.Seconds())
}

func CaptureDependencyLatency(service string, elapsed time.Duration) {
	dependencyLatency.WithLabelValues(service).Observe(elapsed.Seconds())
}
