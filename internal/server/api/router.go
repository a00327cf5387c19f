package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sharelink/internal/server/config"
	"sharelink/internal/server/storage"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Renderer = newTemplateRenderer()

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	e.Use(RequestLogger())
	e.Use(Metrics())

	e.GET("/", handler.HandleIndex)

	// Health, stats & metrics
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleStats)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Users
	e.POST("/users", handler.HandleUpsertUser)

	// Links
	e.GET("/links", handler.HandleListLinks)
	e.POST("/links", handler.HandleCreateLink)
	e.GET("/links/:id", handler.HandleViewLink)
	e.PUT("/links/:id", handler.HandleUpdateLink)
	e.DELETE("/links/:id", handler.HandleDeleteLink)

	// Analytics
	e.GET("/analytics/:id", handler.HandleAnalytics)

	// Files written by the local store are served from disk; remote stores
	// hand out their own URLs.
	if cfg.StorageType == config.StorageLocal {
		e.Static(strings.TrimSuffix(storage.PublicPrefix, "/"), cfg.StoragePath)
	}

	return e
}
