package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"convertly/internal/server/config"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(ctx context.Context, handler *Handler, hub *Hub, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{}

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestLogger())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	// Rate limiter on conversion endpoints only
	convertLimiter := NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Health & stats
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleStats)

	// History events
	e.GET("/api/events", hub.HandleEvents)

	// Conversions (rate-limited)
	conv := e.Group("/api", convertLimiter.Middleware())
	conv.POST("/pdf/merge", handler.HandleMerge)
	conv.POST("/pdf/image-to-pdf", handler.HandleImageToPDF)
	conv.POST("/pdf/pdf-to-image", handler.HandlePDFToImage)
	conv.POST("/images/convert", handler.HandleImageConvert)

	// Download
	e.GET("/api/download", handler.HandleDownload)

	// History
	e.GET("/api/conversions", handler.HandleListConversions)
	e.DELETE("/api/conversions/:id", handler.HandleDeleteConversion)

	return e
}
