package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	wsConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quiz_ws_connections",
			Help: "Live websocket connections by role",
		},
		[]string{"role"},
	)

	wsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_ws_dropped_connections_total",
			Help: "Websocket connections dropped because their send buffer was full",
		},
	)

	broadcastMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_broadcast_messages_total",
			Help: "Session messages fanned out, by message type",
		},
		[]string{"type"},
	)

	responsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_responses_total",
			Help: "Scored quiz responses",
		},
		[]string{"correct"},
	)
)

// Middleware records request counts and latency per route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// ConnectionOpened tracks a newly attached socket.
func ConnectionOpened(role string) {
	wsConnections.WithLabelValues(role).Inc()
}

// ConnectionClosed tracks a detached socket.
func ConnectionClosed(role string) {
	wsConnections.WithLabelValues(role).Dec()
}

// ConnectionDropped counts sockets removed for falling behind.
func ConnectionDropped() {
	wsDropped.Inc()
}

// MessageBroadcast counts one fan-out of a message type.
func MessageBroadcast(messageType string) {
	broadcastMessages.WithLabelValues(messageType).Inc()
}

// ResponseScored counts a scored answer.
func ResponseScored(correct bool) {
	responsesTotal.WithLabelValues(strconv.FormatBool(correct)).Inc()
}
