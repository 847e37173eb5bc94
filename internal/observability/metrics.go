package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	turnsTotal       *prometheus.CounterVec
	streamDuration   prometheus.Histogram
	fragmentsTotal   prometheus.Counter
	generateTotal    *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	sessionsSwept    prometheus.Counter
	appendDuration   prometheus.Histogram
	loadDuration     prometheus.Histogram
	eventsBroadcast  prometheus.Counter
	connectedClients prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
	registry    *prometheus.Registry
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			turnsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "sayra",
					Name:      "chat_turns_total",
					Help:      "Total chat turns by terminal status.",
				},
				[]string{"status"},
			),
			streamDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "sayra",
					Name:      "chat_stream_duration_seconds",
					Help:      "Duration of provider streams from open to terminal state.",
					Buckets:   prometheus.DefBuckets,
				},
			),
			fragmentsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "sayra",
					Name:      "chat_fragments_forwarded_total",
					Help:      "Total provider fragments forwarded to callers.",
				},
			),
			generateTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "sayra",
					Name:      "generate_requests_total",
					Help:      "Total one-shot generate requests by status.",
				},
				[]string{"status"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "sayra",
					Name:      "sessions_active",
					Help:      "Number of stored sessions.",
				},
			),
			sessionsSwept: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "sayra",
					Name:      "sessions_swept_total",
					Help:      "Total sessions removed by the retention sweeper.",
				},
			),
			appendDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "sayra",
					Name:      "session_append_duration_seconds",
					Help:      "Duration of session append operations.",
					Buckets:   prometheus.DefBuckets,
				},
			),
			loadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "sayra",
					Name:      "session_load_duration_seconds",
					Help:      "Duration of session load operations.",
					Buckets:   prometheus.DefBuckets,
				},
			),
			eventsBroadcast: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "sayra",
					Name:      "events_broadcast_total",
					Help:      "Total events broadcast to websocket clients.",
				},
			),
			connectedClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "sayra",
					Name:      "events_connected_clients",
					Help:      "Number of connected websocket event clients.",
				},
			),
		}

		registry = prometheus.NewRegistry()
		registry.MustRegister(
			m.turnsTotal,
			m.streamDuration,
			m.fragmentsTotal,
			m.generateTotal,
			m.activeSessions,
			m.sessionsSwept,
			m.appendDuration,
			m.loadDuration,
			m.eventsBroadcast,
			m.connectedClients,
		)

		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered initializes the metrics registry. Safe to call from
// multiple packages; registration happens once.
func EnsureRegistered() {
	getMetrics()
}

// Handler returns an HTTP handler exposing the metrics registry.
func Handler() http.Handler {
	getMetrics()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordTurn records a completed chat turn with its terminal status and
// total streaming duration.
func RecordTurn(status string, d time.Duration) {
	m := getMetrics()
	m.turnsTotal.WithLabelValues(status).Inc()
	m.streamDuration.Observe(d.Seconds())
}

// RecordFragment counts one fragment forwarded to a caller.
func RecordFragment() {
	getMetrics().fragmentsTotal.Inc()
}

// RecordGenerate records a one-shot generate request.
func RecordGenerate(status string) {
	getMetrics().generateTotal.WithLabelValues(status).Inc()
}

// SetActiveSessions updates the stored-session gauge.
func SetActiveSessions(n int) {
	getMetrics().activeSessions.Set(float64(n))
}

// RecordSweep counts sessions removed by the retention sweeper.
func RecordSweep(n int) {
	getMetrics().sessionsSwept.Add(float64(n))
}

// RecordSessionAppend records the duration of an append operation.
func RecordSessionAppend(d time.Duration) {
	getMetrics().appendDuration.Observe(d.Seconds())
}

// RecordSessionLoad records the duration of a load operation.
func RecordSessionLoad(d time.Duration) {
	getMetrics().loadDuration.Observe(d.Seconds())
}

// RecordBroadcast counts one event broadcast.
func RecordBroadcast() {
	getMetrics().eventsBroadcast.Inc()
}

// SetConnectedClients updates the websocket client gauge.
func SetConnectedClients(n int) {
	getMetrics().connectedClients.Set(float64(n))
}
