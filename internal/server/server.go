// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

// Package server assembles the engine: storage, services, sweeper, and
// the JSON surface, with graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/urfave/cli/v3"

	"github.com/mwaldner/veriflow/internal/config"
	"github.com/mwaldner/veriflow/internal/database"
	"github.com/mwaldner/veriflow/internal/handlers"
	"github.com/mwaldner/veriflow/internal/i18n"
	"github.com/mwaldner/veriflow/internal/repository"
	"github.com/mwaldner/veriflow/internal/services/audit"
	"github.com/mwaldner/veriflow/internal/services/auth"
	"github.com/mwaldner/veriflow/internal/services/deletion"
	"github.com/mwaldner/veriflow/internal/services/login"
	"github.com/mwaldner/veriflow/internal/services/notify"
	"github.com/mwaldner/veriflow/internal/services/session"
	"github.com/mwaldner/veriflow/internal/services/transfer"
	"github.com/mwaldner/veriflow/internal/services/vault"
	"github.com/mwaldner/veriflow/internal/sse"
	"github.com/mwaldner/veriflow/internal/sweeper"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	repo := repository.New(db)
	hub := sse.NewHub()
	auditSvc := audit.NewService(repo)
	auditSvc.StreamTo(hub)
	vaultSvc := vault.NewService(repo, auditSvc)
	authSvc := auth.NewService(repo)

	notifier, err := notify.NewService(&cfg.SMTP, cfg.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to init notifier: %w", err)
	}

	sessions, err := session.NewService(cfg.Session.HashKey, cfg.Session.BlockKey,
		time.Duration(cfg.Session.MaxAge)*time.Second)
	if err != nil {
		return fmt.Errorf("failed to init sessions: %w", err)
	}

	logins := login.NewService(repo, vaultSvc, sessions, notifier, auditSvc)
	transfers := transfer.NewService(repo, vaultSvc, authSvc, notifier, auditSvc)
	deletions := deletion.NewService(repo, vaultSvc, authSvc, notifier, auditSvc)

	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			return fmt.Errorf("failed to bootstrap admin: %w", err)
		}
	}

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"path", v.URI,
				"status", v.Status,
				"ip", c.RealIP(),
			)
			return nil
		},
	}))

	// Outbound mail triggered by a request follows the caller's language.
	e.Use(localize)

	h := handlers.New(logins, transfers, deletions, auditSvc, sessions, hub)
	h.RegisterRoutes(e)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Sweeper runs independently of any request.
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sw := sweeper.New(repo, logins, transfers, deletions, cfg.Sweeper.Interval)
	go sw.Run(sweepCtx)

	return startWithGracefulShutdown(ctx, e, cfg)
}

// localize stores the caller's preferred language in the request
// context, detected from the Accept-Language header.
func localize(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		lang := i18n.MatchLanguage(c.Request().Header.Get("Accept-Language"))
		ctx := i18n.WithLocale(c.Request().Context(), lang)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("server running", "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
