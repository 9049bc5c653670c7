package api

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"resourcehub/internal/server/config"
	"resourcehub/internal/server/metrics"
)

// multipartOverhead is the room left for form fields and boundaries on top
// of the largest accepted file.
const multipartOverhead = 1 << 20

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestLogger())
	e.Use(metrics.Middleware())

	// Upload and convert are the expensive endpoints
	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	bodyLimit := middleware.BodyLimit(fmt.Sprintf("%dK", (cfg.MaxFileSize+multipartOverhead)/1024))

	// Health & metrics
	e.GET("/health", handler.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api", Auth([]byte(cfg.JWTSecret)))

	api.POST("/files", handler.HandleUpload, limiter.Middleware(), bodyLimit)
	api.GET("/files", handler.HandleList)
	api.GET("/files/:id", handler.HandleGet)
	api.PATCH("/files/:id", handler.HandlePatch)
	api.DELETE("/files/:id", handler.HandleDelete)
	api.GET("/files/:id/download", handler.HandleDownload)

	// Conversion and staged files
	api.POST("/files/:id/convert", handler.HandleConvert, limiter.Middleware())
	api.POST("/files/:id/save-converted", handler.HandleSaveConverted)
	api.GET("/temp/download", handler.HandleTempDownload)
	api.POST("/temp/cleanup", handler.HandleTempCleanup)

	// Pins
	api.POST("/files/:id/pin", handler.HandlePin)
	api.DELETE("/files/:id/pin", handler.HandleUnpin)
	api.GET("/pins", handler.HandleListPinned)

	return e
}
