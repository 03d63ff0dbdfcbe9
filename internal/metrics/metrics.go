package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// WebhookEvents counts inbound webhook outcomes (queued, duplicate, rejected...)
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_events_total", Help: "Inbound webhook events by outcome."},
		[]string{"outcome"},
	)
	// EventsProcessed counts drained events by type and result
	EventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_events_processed_total", Help: "Processed webhook events by type and result."},
		[]string{"event_type", "result"},
	)
	// QueueDepth tracks the number of events waiting in the handoff queue
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "webhook_queue_depth", Help: "Events waiting in the in-memory queue."},
	)

	// APIRequests counts outbound Bling API attempts by method and status class
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bling_api_requests_total", Help: "Outbound Bling API attempts by method and status."},
		[]string{"method", "status"},
	)
	// RateLimitWait tracks time spent waiting for outbound admission
	RateLimitWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "bling_ratelimit_wait_seconds", Help: "Time spent waiting on the outbound rate limiter.", Buckets: []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 30}},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(WebhookEvents)
		Registry.MustRegister(EventsProcessed)
		Registry.MustRegister(QueueDepth)
		Registry.MustRegister(APIRequests)
		Registry.MustRegister(RateLimitWait)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
