package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// AttemptTransitions counts attempt lifecycle events: started, reused,
	// completed, abandoned.
	AttemptTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_attempt_transitions_total",
			Help: "Assessment attempt lifecycle events",
		},
		[]string{"event"},
	)

	// AttemptRejections counts rejected start/complete requests by error kind.
	AttemptRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_attempt_rejections_total",
			Help: "Rejected attempt operations by reason",
		},
		[]string{"operation", "reason"},
	)

	ScoreClamps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assessment_score_clamped_total",
			Help: "Scores clamped to the assessment total marks",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(AttemptTransitions)
		prometheus.MustRegister(AttemptRejections)
		prometheus.MustRegister(ScoreClamps)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
