package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BuildersTotal tracks active builders by status (§3).
	BuildersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentfarm_builders_total",
			Help: "Total number of builders by status",
		},
		[]string{"status"},
	)

	UtilsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentfarm_utils_total",
			Help: "Total number of open utility terminals",
		},
	)

	AnnotationsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentfarm_annotations_total",
			Help: "Total number of open annotation viewers",
		},
	)

	TabsOpenTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentfarm_tabs_open_total",
			Help: "Total number of open dashboard tabs (builders + utils + annotations)",
		},
	)

	PortBlocksAllocated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentfarm_port_blocks_allocated",
			Help: "Number of 100-port blocks currently allocated in the Port Registry",
		},
	)

	PortBlocksAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentfarm_port_blocks_available",
			Help: "Number of 100-port blocks still free in the Port Registry",
		},
	)

	// DashboardRequestsTotal counts HTTP requests handled by the Dashboard
	// Server, labeled by route and status.
	DashboardRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentfarm_dashboard_requests_total",
			Help: "Total number of Dashboard Server requests by route and status",
		},
		[]string{"route", "status"},
	)

	DashboardRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentfarm_dashboard_request_duration_seconds",
			Help:    "Dashboard Server request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// ProxyRequestsTotal counts reverse-proxy outcomes to terminal bridges.
	ProxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentfarm_proxy_requests_total",
			Help: "Total number of reverse-proxy requests to terminal bridges by outcome",
		},
		[]string{"outcome"}, // ok, not_found, bad_gateway
	)

	ProxyWebsocketsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentfarm_proxy_websockets_active",
			Help: "Number of currently open WebSocket tunnels through the reverse proxy",
		},
	)

	// SpawnRetriesTotal counts port-conflict retries during spawn (§4.5).
	SpawnRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentfarm_spawn_retries_total",
			Help: "Total number of spawn retries caused by a port-selection conflict",
		},
	)

	OrphansReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentfarm_orphans_reaped_total",
			Help: "Total number of orphaned multiplexer sessions reaped at orchestrator start",
		},
	)
)

func init() {
	prometheus.MustRegister(
		BuildersTotal,
		UtilsTotal,
		AnnotationsTotal,
		TabsOpenTotal,
		PortBlocksAllocated,
		PortBlocksAvailable,
		DashboardRequestsTotal,
		DashboardRequestDuration,
		ProxyRequestsTotal,
		ProxyWebsocketsActive,
		SpawnRetriesTotal,
		OrphansReapedTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
