// Package metrics exposes bot counters in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remindbot/internal/eventbus"
)

// Metrics owns a private registry so tests and multiple instances never collide.
type Metrics struct {
	Registry *prometheus.Registry

	TicksTotal       *prometheus.CounterVec
	TickDuration     prometheus.Histogram
	Notifications    *prometheus.CounterVec
	DeliveryFailures *prometheus.CounterVec
	ReportsTotal     *prometheus.CounterVec
	StateEntries     *prometheus.GaugeVec
	JobRuns          *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	EventsConsumed   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remindbot_ticks_total",
			Help: "Reminder ticks by result",
		}, []string{"result"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "remindbot_tick_duration_seconds",
			Help:    "Duration of reminder ticks",
			Buckets: prometheus.DefBuckets,
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remindbot_notifications_total",
			Help: "Batches delivered by job",
		}, []string{"job"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remindbot_delivery_failures_total",
			Help: "Batches that failed to deliver by job",
		}, []string{"job"}),
		ReportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remindbot_reports_total",
			Help: "Error reports by kind",
		}, []string{"kind"}),
		StateEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "remindbot_reminder_state_entries",
			Help: "Deadlines recorded as notified per threshold",
		}, []string{"threshold"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remindbot_job_runs_total",
			Help: "Scheduled job runs by job and result",
		}, []string{"job", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remindbot_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"path", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "remindbot_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remindbot_events_consumed_total",
			Help: "Deadline events read from the broker by outcome",
		}, []string{"outcome"}),
	}
	m.Registry.MustRegister(
		m.TicksTotal, m.TickDuration, m.Notifications, m.DeliveryFailures, m.ReportsTotal,
		m.StateEntries, m.JobRuns, m.HTTPRequests, m.HTTPDuration, m.EventsConsumed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveTick records one reminder tick.
func (m *Metrics) ObserveTick(result string, took time.Duration, state map[string][]int64) {
	m.TicksTotal.WithLabelValues(result).Inc()
	m.TickDuration.Observe(took.Seconds())
	for th, ids := range state {
		m.StateEntries.WithLabelValues(th).Set(float64(len(ids)))
	}
}

func (m *Metrics) ObserveReport(kind string) {
	m.ReportsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveEvent(outcome string) {
	m.EventsConsumed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTP(path, method string, status int, took time.Duration) {
	m.HTTPRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(path, method).Observe(took.Seconds())
}

// Consume counts delivery and job events until ctx is done or the channel closes.
func (m *Metrics) Consume(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			m.observeEvent(e)
		}
	}
}

func (m *Metrics) observeEvent(e eventbus.Event) {
	switch d := e.Data.(type) {
	case eventbus.DeliveryEvent:
		job := d.Job
		if job == "" {
			job = "adhoc"
		}
		if e.Type == eventbus.TypeDeliveryFailed {
			m.DeliveryFailures.WithLabelValues(job).Inc()
		} else {
			m.Notifications.WithLabelValues(job).Inc()
		}
	case eventbus.JobEvent:
		result := "ok"
		if d.Error != "" {
			result = "error"
		}
		m.JobRuns.WithLabelValues(d.Job, result).Inc()
	}
}
