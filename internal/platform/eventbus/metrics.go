package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the event bus. All methods are
// nil-receiver safe so the bus can run unmetered in tests.
type Metrics struct {
	Published       prometheus.Counter
	PublishFailures prometheus.Counter
	Delivered       prometheus.Counter
	HandlerFailures prometheus.Counter
	DecodeFailures  prometheus.Counter
	Reconnects      *prometheus.CounterVec
	ConnectionState *prometheus.GaugeVec
}

// NewMetrics creates and registers the event bus metrics on the default
// registry. Call at most once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounter(prometheus.CounterOpts{
			Name: "complyd_eventbus_published_total",
			Help: "Total number of events successfully published",
		}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "complyd_eventbus_publish_failures_total",
			Help: "Total number of publish calls that returned an error",
		}),
		Delivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "complyd_eventbus_delivered_total",
			Help: "Total number of successful handler invocations",
		}),
		HandlerFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "complyd_eventbus_handler_failures_total",
			Help: "Total number of handler invocations that errored or panicked",
		}),
		DecodeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "complyd_eventbus_decode_failures_total",
			Help: "Total number of inbound messages dropped as undecodable",
		}),
		Reconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "complyd_eventbus_reconnects_total",
			Help: "Total number of successful reconnects per connection",
		}, []string{"connection"}),
		ConnectionState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "complyd_eventbus_connection_state",
			Help: "Current connection state (0=disconnected 1=connecting 2=ready 3=reconnecting 4=closed 5=ended)",
		}, []string{"connection"}),
	}
}

func (m *Metrics) IncPublished() {
	if m == nil {
		return
	}
	m.Published.Inc()
}

func (m *Metrics) IncPublishFailures() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

func (m *Metrics) IncDelivered() {
	if m == nil {
		return
	}
	m.Delivered.Inc()
}

func (m *Metrics) IncHandlerFailures() {
	if m == nil {
		return
	}
	m.HandlerFailures.Inc()
}

func (m *Metrics) IncDecodeFailures() {
	if m == nil {
		return
	}
	m.DecodeFailures.Inc()
}

func (m *Metrics) IncReconnects(connection string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(connection).Inc()
}

func (m *Metrics) SetConnectionState(connection string, s State) {
	if m == nil {
		return
	}
	m.ConnectionState.WithLabelValues(connection).Set(float64(s))
}
