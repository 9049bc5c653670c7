// Package metrics registers the Prometheus collectors exposed on /metrics.
// HTTP metrics are recorded by Middleware; business metrics are updated
// from the service and conversion layers.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resourcehub_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resourcehub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Business metrics
var (
	// UploadsTotal counts upload attempts by result (accepted, rejected, failed).
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resourcehub_uploads_total",
			Help: "Total number of artifact uploads",
		},
		[]string{"result"},
	)

	// ConversionsTotal counts conversions by direction and result.
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resourcehub_conversions_total",
			Help: "Total number of document conversions",
		},
		[]string{"direction", "result"},
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resourcehub_conversion_duration_seconds",
			Help:    "External conversion duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"direction"},
	)

	// DownloadsTotal counts served downloads; kind is "permanent" or "staged".
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resourcehub_downloads_total",
			Help: "Total number of served downloads",
		},
		[]string{"kind"},
	)

	// StagedCleanupsTotal counts staged file removals by result
	// (removed, missing, failed, swept).
	StagedCleanupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resourcehub_staged_cleanups_total",
			Help: "Total number of staged file cleanups",
		},
		[]string{"result"},
	)

	PromotionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resourcehub_promotions_total",
			Help: "Total number of staged artifact promotions",
		},
		[]string{"result"},
	)
)

// Middleware records request count and latency per route template.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)

			httpRequestsTotal.WithLabelValues(c.Request().Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
