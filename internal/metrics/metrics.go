package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Logins             *prometheus.CounterVec
	SessionTokens      prometheus.Counter
	RoomGrants         *prometheus.CounterVec
	TranscriptEvents   prometheus.Counter
	ActiveTranscripts  prometheus.Gauge
	UpstreamLatency    *prometheus.HistogramVec
	RateLimitDecisions *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vocameet_logins_total",
			Help: "Completed login attempts by strategy and outcome",
		}, []string{"strategy", "outcome"}),

		SessionTokens: f.NewCounter(prometheus.CounterOpts{
			Name: "vocameet_session_tokens_issued_total",
			Help: "Session tokens signed, including refreshes",
		}),

		RoomGrants: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vocameet_room_grants_total",
			Help: "Room grant requests by outcome",
		}, []string{"outcome"}),

		TranscriptEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "vocameet_transcript_events_total",
			Help: "Transcript events relayed from room data channels",
		}),

		ActiveTranscripts: f.NewGauge(prometheus.GaugeOpts{
			Name: "vocameet_transcript_rooms_active",
			Help: "Rooms with an attached data channel",
		}),

		UpstreamLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vocameet_upstream_request_duration_seconds",
			Help:    "Latency of calls to Google and the token endpoint",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"upstream"}),

		RateLimitDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vocameet_rate_limit_decisions_total",
			Help: "Rate limiter decisions by limiter and result",
		}, []string{"limiter", "result"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
