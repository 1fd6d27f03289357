package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	conversions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixconv",
		Name:      "conversions_total",
		Help:      "Conversions by execution mode and outcome.",
	}, []string{"mode", "outcome"})

	conversionSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pixconv",
		Name:      "conversion_duration_seconds",
		Help:      "Wall time of successful conversions.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"mode"})

	codecLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixconv",
		Name:      "codec_loads_total",
		Help:      "Codec load attempts by codec and outcome.",
	}, []string{"codec", "outcome"})

	batchJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixconv",
		Name:      "batch_jobs_total",
		Help:      "Batch jobs that reached a terminal status.",
	}, []string{"status"})

	edgeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixconv",
		Name:      "edge_requests_total",
		Help:      "Requests served by the edge endpoint by HTTP status class.",
	}, []string{"class"})
)

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ObserveConversion records one finished conversion.
func ObserveConversion(mode string, ok bool, elapsed time.Duration) {
	conversions.WithLabelValues(mode, outcome(ok)).Inc()
	if ok {
		conversionSeconds.WithLabelValues(mode).Observe(elapsed.Seconds())
	}
}

// ObserveCodecLoad records one codec load attempt.
func ObserveCodecLoad(codec string, ok bool) {
	codecLoads.WithLabelValues(codec, outcome(ok)).Inc()
}

// ObserveBatchJob records a job reaching status.
func ObserveBatchJob(status string) {
	batchJobs.WithLabelValues(status).Inc()
}

// ObserveEdgeRequest records a response written by the edge endpoint.
func ObserveEdgeRequest(statusCode int) {
	class := "5xx"
	switch {
	case statusCode < 300:
		class = "2xx"
	case statusCode < 400:
		class = "3xx"
	case statusCode < 500:
		class = "4xx"
	}
	edgeRequests.WithLabelValues(class).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
