package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts HTTP requests.
	// Labels: method, route (gin full path), status
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "odoograph",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served",
	}, []string{"method", "route", "status"})

	// requestDuration measures request latency.
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "odoograph",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "route"})

	// projectionDepth tracks the depth requests are served at.
	projectionDepth = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "odoograph",
		Subsystem: "projector",
		Name:      "depth",
		Help:      "Effective projection depth per request",
		Buckets:   []float64{0, 1, 2, 3, 4, 6, 8},
	}, []string{"model"})
)

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
