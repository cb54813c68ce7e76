package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/ehr/hl7bridge/internal/domain/conversion"
	"github.com/ehr/hl7bridge/internal/domain/transaction"
	"github.com/ehr/hl7bridge/internal/platform/auth"
	"github.com/ehr/hl7bridge/internal/platform/db"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
	"github.com/ehr/hl7bridge/internal/platform/middleware"
	"github.com/ehr/hl7bridge/internal/platform/webhook"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, plus the MLLP listener and queue workers when enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// newServer builds the echo instance with the full middleware chain and
// every route registered.
func newServer(a *app) (*echo.Echo, error) {
	cfg := a.cfg
	timeout, err := cfg.RequestTimeoutDuration()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", db.TenantHeader, middleware.RequestIDHeader},
		ExposeHeaders: []string{conversion.TransactionIDHeader, conversion.StatusHeader, conversion.CacheHeader, middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	if cfg.AuthConfigured() {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	} else {
		a.logger.Warn().Msg("no auth key source configured, using development auth")
		e.Use(auth.DevAuthMiddleware())
	}

	e.GET("/health", healthHandler)
	e.GET("/ready", readyHandler(a.checkers()))
	e.GET("/version", versionHandler)

	api := e.Group("/api/v1")
	api.Use(db.TenantMiddleware(a.pool, cfg.DefaultTenant))
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	api.Use(middleware.RequestTimeout(timeout))
	api.Use(middleware.Audit(a.logger))

	conversion.NewHandler(a.conversions).RegisterRoutes(api)
	transaction.NewHandler(a.txs).RegisterRoutes(api)
	webhook.NewHandler(a.webhooks).RegisterRoutes(api.Group("/webhooks"))

	return e, nil
}

func runServer() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := newServer(a)
	if err != nil {
		return err
	}

	var mllp *hl7v2.MLLPServer
	if cfg.MLLPEnabled {
		mllp = hl7v2.NewMLLPServer(cfg.MLLPAddr, a.conversions.MLLPHandler(cfg.DefaultTenant), logger)
		if err := mllp.Start(); err != nil {
			return err
		}
		logger.Info().Str("addr", mllp.Addr()).Str("tenant", cfg.DefaultTenant).Msg("MLLP listener started")
	}

	consumerDone := make(chan error, 1)
	if cfg.QueueEnabled {
		go func() { consumerDone <- a.consume(ctx) }()
	} else {
		close(consumerDone)
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	if mllp != nil {
		if err := mllp.Stop(); err != nil {
			logger.Error().Err(err).Msg("MLLP shutdown error")
		}
	}
	cancel()
	if err := <-consumerDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("queue consumer error")
	}

	logger.Info().Msg("server stopped")
	return nil
}
