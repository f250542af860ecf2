package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "alertmanager_telegram_webhook"

// Metrics holds Prometheus collectors for the service. Each Metrics owns
// its registry, so handlers built in tests do not share counters.
type Metrics struct {
	registry       *prometheus.Registry
	requests       *prometheus.CounterVec
	alertsReceived prometheus.Counter
	messagesSent   prometheus.Counter
	messagesFailed prometheus.Counter
	sendDuration   prometheus.Histogram
}

// NewMetrics returns a new Metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Total number of POST /webhook requests by response code.",
		}, []string{"code"}),
		alertsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "alerts_received_total",
			Help:      "Total number of alerts accepted in webhook batches.",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_sent_total",
			Help:      "Total Telegram messages sent successfully.",
		}),
		messagesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_failed_total",
			Help:      "Total Telegram messages that failed to send.",
		}),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "send_duration_seconds",
			Help:      "Duration of Telegram sendMessage calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.alertsReceived,
		m.messagesSent,
		m.messagesFailed,
		m.sendDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// InstrumentWebhook counts requests to next by response code.
func (m *Metrics) InstrumentWebhook(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(m.requests, next)
}
