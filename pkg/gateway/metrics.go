package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// clientMetrics counts the traffic of one Client in its own registry.
type clientMetrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	logins   *prometheus.CounterVec
}

func newClientMetrics() *clientMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &clientMetrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gwcli_http_requests_total",
			Help: "Requests sent to the gateway by method and response code.",
		}, []string{"method", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gwcli_http_request_duration_seconds",
			Help:    "Gateway request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gwcli_logins_total",
			Help: "Interactive login attempts by result.",
		}, []string{"result"}),
	}
}

// observe records one completed (or failed) request. code is the HTTP
// status or "error" for transport failures.
func (m *clientMetrics) observe(method, code string, elapsed time.Duration) {
	m.requests.WithLabelValues(method, code).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *clientMetrics) login(result string) {
	m.logins.WithLabelValues(result).Inc()
}
