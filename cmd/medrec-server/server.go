package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ehr/medrec/internal/config"
	"github.com/ehr/medrec/internal/domain/medicalrecord"
	"github.com/ehr/medrec/internal/platform/auth"
	"github.com/ehr/medrec/internal/platform/middleware"
)

const version = "0.1.0"

// newServer wires the HTTP surface. dbHealth serves /health/db.
func newServer(cfg *config.Config, logger zerolog.Logger, gdb *gorm.DB, dbHealth echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit("1M"))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", dbHealth)

	// Medical records
	records := e.Group("/medical-records", auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
		Logger:     &logger,
	}))
	recordSvc := medicalrecord.NewService(medicalrecord.NewRecordRepoGorm(gdb))
	medicalrecord.NewHandler(recordSvc).RegisterRoutes(records)

	return e
}
