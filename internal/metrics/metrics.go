// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idlab",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "idlab",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idlab",
		Name:      "workflow_transitions_total",
		Help:      "Committed status transitions by entity and target status.",
	}, []string{"entity", "status"})

	notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idlab",
		Name:      "notifications_total",
		Help:      "Notification attempts by kind and result.",
	}, []string{"kind", "result"})

	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests,
		httpDuration,
		transitions,
		notifications,
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func ObserveRequest(method, route string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func Transition(entity, status string) {
	transitions.WithLabelValues(entity, status).Inc()
}

func Notification(kind string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	notifications.WithLabelValues(kind, result).Inc()
}
