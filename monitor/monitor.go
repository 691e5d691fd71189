// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Subscribers        prometheus.Gauge
	EventsPublished    prometheus.Counter
	SubscribersDropped prometheus.Counter
	Transitions        *prometheus.CounterVec
	Rejections         *prometheus.CounterVec
	Phase              prometheus.Gauge
	LedgerLatency      prometheus.Histogram
}

// NewMetrics registers every collector on reg.
func NewMetrics(namespace string, reg prometheus.Registerer, startTime time.Time) *Metrics {
	m := &Metrics{
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Number of connected event stream observers",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of events published to the bus",
		}),
		SubscribersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribers_dropped_total",
			Help:      "Observers disconnected because they could not keep up",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed lobby transitions by name",
		}, []string{"transition"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_rejected_total",
			Help:      "Rejected lobby transitions by reason",
		}, []string{"reason"}),
		Phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase",
			Help:      "Current lobby phase (0 idle, 1 open, 2 resolving, 3 cooldown)",
		}),
		LedgerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_seconds",
			Help:      "Ledger write latency inside lobby transitions",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}

	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the process started",
	}, func() float64 {
		return time.Since(startTime).Seconds()
	})

	reg.MustRegister(
		m.Subscribers,
		m.EventsPublished,
		m.SubscribersDropped,
		m.Transitions,
		m.Rejections,
		m.Phase,
		m.LedgerLatency,
		uptime,
	)

	return m
}

// Monitor owns a private registry so several instances (tests) never collide
// on the global one.
type Monitor struct {
	metrics  *Metrics
	registry *prometheus.Registry
	server   *http.Server
}

func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Monitor{
		metrics:  NewMetrics(namespace, reg, time.Now()),
		registry: reg,
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// StartServer serves /metrics on addr in the background.
func (m *Monitor) StartServer(addr string, onError func(error)) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed && onError != nil {
			onError(err)
		}
	}()
}

func (m *Monitor) Close() error {
	if m.server == nil {
		return nil
	}
	return m.server.Close()
}

// --- broadcast.Metrics ---

func (m *Monitor) SubscriberAdded()   { m.metrics.Subscribers.Inc() }
func (m *Monitor) SubscriberRemoved() { m.metrics.Subscribers.Dec() }
func (m *Monitor) EventPublished()    { m.metrics.EventsPublished.Inc() }
func (m *Monitor) SubscriberDropped() { m.metrics.SubscribersDropped.Inc() }

// --- lobby.Metrics ---

func (m *Monitor) Transition(name string) {
	m.metrics.Transitions.WithLabelValues(name).Inc()
}

func (m *Monitor) Rejected(reason string) {
	m.metrics.Rejections.WithLabelValues(reason).Inc()
}

func (m *Monitor) SetPhase(ordinal int) {
	m.metrics.Phase.Set(float64(ordinal))
}

func (m *Monitor) ObserveLedger(d time.Duration) {
	m.metrics.LedgerLatency.Observe(d.Seconds())
}
