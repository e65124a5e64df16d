// Package metrics exposes Prometheus instruments for the storefront.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	Registry *prometheus.Registry

	ConversationsStarted *prometheus.CounterVec
	MessagesTotal        *prometheus.CounterVec
	EscalationsTotal     prometheus.Counter
	AssistantReplies     *prometheus.CounterVec
	AssistantDuration    prometheus.Histogram
	CacheLookups         *prometheus.CounterVec
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	ActiveSessions       prometheus.Gauge
}

// New creates the instruments on a private registry so tests can build as
// many as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{Registry: reg}

	m.ConversationsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoelite_conversations_started_total",
			Help: "Conversations opened from the chat widget",
		},
		[]string{"status"},
	)
	m.MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoelite_messages_total",
			Help: "Chat messages persisted, by sender",
		},
		[]string{"sender"},
	)
	m.EscalationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autoelite_escalations_total",
			Help: "Conversations handed to a seller",
		},
	)
	m.AssistantReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoelite_assistant_replies_total",
			Help: "Assistant replies by mode (live, degraded, fallback, malformed)",
		},
		[]string{"mode"},
	)
	m.AssistantDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autoelite_assistant_duration_seconds",
			Help:    "Time spent producing an assistant reply",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	m.CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoelite_cache_lookups_total",
			Help: "Vehicle query cache lookups",
		},
		[]string{"result"},
	)
	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoelite_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoelite_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	m.ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "autoelite_chat_sessions_active",
			Help: "Chat widget sessions currently held in memory",
		},
	)

	reg.MustRegister(
		m.ConversationsStarted,
		m.MessagesTotal,
		m.EscalationsTotal,
		m.AssistantReplies,
		m.AssistantDuration,
		m.CacheLookups,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveSessions,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) RecordAssistantReply(mode string, duration time.Duration) {
	m.AssistantReplies.WithLabelValues(mode).Inc()
	m.AssistantDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordHTTPRequest(route string, code string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
