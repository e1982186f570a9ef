package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rooms            prometheus.Gauge
	Connections      prometheus.Gauge
	Published        prometheus.Counter
	Delivered        prometheus.Counter
	Dropped          prometheus.Counter
	Rejected         *prometheus.CounterVec
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
}

// New registers the relay collectors on reg. A nil reg yields working but
// unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rooms: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_rooms",
			Help: "Rooms with at least one member",
		}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Connections that belong to at least one room",
		}),
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_published_total",
			Help: "Frames published into rooms",
		}),
		Delivered: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_delivered_total",
			Help: "Frames handed to member connections",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_dropped_total",
			Help: "Frames dropped because a member could not accept them",
		}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_rejected_total",
			Help: "Inbound frames answered with an error event",
		}, []string{"event", "code"}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		RequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests being served",
		}),
	}
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.RequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
