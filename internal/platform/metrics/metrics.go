// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clinic"

var (
	once sync.Once

	admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_total",
			Help:      "Appointment admissions by outcome and rejection code.",
		},
		[]string{"outcome", "code"},
	)

	demoResets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "demo_resets_total",
			Help:      "Demo reset runs by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Register adds the collectors to the default registry. Safe to call more
// than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(admissions, demoResets, httpRequests, httpDuration)
	})
}

// Outcome labels for IncAdmission.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

func IncAdmission(outcome, code string) {
	admissions.WithLabelValues(outcome, code).Inc()
}

func IncDemoReset(result string) {
	demoResets.WithLabelValues(result).Inc()
}

func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
