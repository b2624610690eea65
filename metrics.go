package rocketchat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments REST calls and the realtime subscription. A nil
// *Metrics records nothing.
type Metrics struct {
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	RealtimeEvents      *prometheus.CounterVec
	RealtimeDropped     prometheus.Counter
	RealtimeConnections prometheus.Gauge
}

// NewMetrics registers the adapter's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rocketchat",
			Name:      "requests_total",
			Help:      "Total REST requests by endpoint and HTTP status (\"error\" when no response).",
		}, []string{"endpoint", "code"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rocketchat",
			Name:      "request_duration_seconds",
			Help:      "REST request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		RealtimeEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rocketchat",
			Name:      "realtime_events_total",
			Help:      "Realtime events delivered to the subscriber by kind.",
		}, []string{"kind"}),

		RealtimeDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rocketchat",
			Name:      "realtime_dropped_total",
			Help:      "Realtime events dropped because the subscriber's buffer was full.",
		}),

		RealtimeConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "rocketchat",
			Name:      "realtime_connections",
			Help:      "Number of open realtime subscriptions.",
		}),
	}
}

func (m *Metrics) observeRequest(endpoint, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(endpoint, code).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) eventDelivered(kind EventKind) {
	if m == nil {
		return
	}
	m.RealtimeEvents.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) eventDropped() {
	if m == nil {
		return
	}
	m.RealtimeDropped.Inc()
}

func (m *Metrics) connectionDelta(delta float64) {
	if m == nil {
		return
	}
	m.RealtimeConnections.Add(delta)
}
