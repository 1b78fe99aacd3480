package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"partymix/internal/core"
)

// Metrics exposes party events to Prometheus. It implements core.Metrics and
// registers on its own registry so several servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	AddsTotal       *prometheus.CounterVec
	DuplicatesTotal prometheus.Counter
	RejectedTotal   *prometheus.CounterVec
	AutoFillTotal   *prometheus.CounterVec
	SuggestTime     prometheus.Histogram
	QueueLength     prometheus.Gauge
	RequestsTotal   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AddsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partymix_adds_total",
				Help: "Total number of tracks added to the queue",
			},
			[]string{"source"},
		),
		DuplicatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "partymix_duplicates_total",
				Help: "Total number of duplicate track requests rejected",
			},
		),
		RejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partymix_rejected_total",
				Help: "Total number of track requests rejected",
			},
			[]string{"reason"},
		),
		AutoFillTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partymix_autofill_runs_total",
				Help: "Auto-fill tier runs by outcome",
			},
			[]string{"tier", "status"},
		),
		SuggestTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "partymix_suggest_duration_seconds",
				Help:    "Time spent computing mix suggestions",
				Buckets: prometheus.DefBuckets,
			},
		),
		QueueLength: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "partymix_queue_length",
				Help: "Number of tracks waiting in the queue",
			},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partymix_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}

	m.registry.MustRegister(
		m.AddsTotal,
		m.DuplicatesTotal,
		m.RejectedTotal,
		m.AutoFillTotal,
		m.SuggestTime,
		m.QueueLength,
		m.RequestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WatchGuests exports the number of guests currently tracked by the rate
// limiter. Call it once; a second registration panics.
func (m *Metrics) WatchGuests(active func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "partymix_active_guests",
			Help: "Guests with adds inside the current rate-limit window",
		},
		func() float64 { return float64(active()) },
	))
}

func (m *Metrics) SetQueueLength(n int) {
	m.QueueLength.Set(float64(n))
}

func (m *Metrics) TrackAdded(source string) {
	m.AddsTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) TrackRejected(reason string) {
	if reason == "duplicate" {
		m.DuplicatesTotal.Inc()
	}
	m.RejectedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) AutoFillRun(tier, status string) {
	m.AutoFillTotal.WithLabelValues(tier, status).Inc()
}

func (m *Metrics) ObserveSuggest(d time.Duration) {
	m.SuggestTime.Observe(d.Seconds())
}

var _ core.Metrics = (*Metrics)(nil)
