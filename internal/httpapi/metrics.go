// Metrics registry for the sidecar's own counters: series flushed,
// reminders sent, silence notifications sent, classify calls, request
// latency. Only the request duration and request count are updated (by the
// /process_request handler); the other collectors are registered and
// exported but nothing in the module increments or sets them.
package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRegistry holds every Prometheus collector this process exposes.
type MetricsRegistry struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec

	SeriesFlushed        prometheus.Counter
	RemindersSent        prometheus.Counter
	SilenceNotifications prometheus.Counter
	ClassifyCalls        *prometheus.CounterVec
	MatchAnswerCalls     *prometheus.CounterVec
	ActiveWorkers        prometheus.Gauge
}

// NewMetricsRegistry builds every collector and registers it on the default
// Prometheus registry. Registration panics on a duplicate name, so it is
// called once per process.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pinokio_request_duration_seconds",
				Help:    "Duration of /process_request calls in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"status"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinokio_requests_total",
				Help: "Total number of /process_request calls by outcome",
			},
			[]string{"status", "reason"},
		),
		SeriesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pinokio_series_flushed_total",
			Help: "Total number of burst-fusion series flushed into a final message",
		}),
		RemindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pinokio_reminders_sent_total",
			Help: "Total number of merchant-overdue reminders sent",
		}),
		SilenceNotifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pinokio_silence_notifications_total",
			Help: "Total number of chat-silence notifications sent",
		}),
		ClassifyCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinokio_classify_calls_total",
				Help: "Total number of classify() calls by outcome",
			},
			[]string{"outcome"},
		),
		MatchAnswerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinokio_match_answer_calls_total",
				Help: "Total number of match_answer() calls by outcome",
			},
			[]string{"outcome"},
		),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pinokio_active_workers",
			Help: "Number of currently running per-chat worker goroutines",
		}),
	}

	prometheus.MustRegister(
		m.RequestDuration,
		m.RequestsTotal,
		m.SeriesFlushed,
		m.RemindersSent,
		m.SilenceNotifications,
		m.ClassifyCalls,
		m.MatchAnswerCalls,
		m.ActiveWorkers,
	)
	return m
}
