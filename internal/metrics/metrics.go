package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarschat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tarschat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tarschat_messages_sent_total",
			Help: "Total messages sent",
		},
	)

	ReactionsToggled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarschat_reactions_toggled_total",
			Help: "Total reaction toggles",
		},
		[]string{"result"}, // "added" or "removed"
	)

	ConversationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarschat_conversations_created_total",
			Help: "Total conversations created",
		},
		[]string{"kind"}, // "direct" or "group"
	)

	TypingSignals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tarschat_typing_signals_total",
			Help: "Total typing signals received",
		},
	)

	PresenceDemotions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tarschat_presence_demotions_total",
			Help: "Users marked offline by the presence sweeper",
		},
	)

	IdentityEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarschat_identity_events_total",
			Help: "Identity provider webhook events applied",
		},
		[]string{"type"},
	)

	// Realtime metrics
	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tarschat_websocket_connections",
			Help: "Open websocket connections",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarschat_events_published_total",
			Help: "Realtime events published",
		},
		[]string{"type"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarschat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
