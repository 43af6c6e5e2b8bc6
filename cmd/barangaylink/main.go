package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/barangaylink/barangaylink/internal/admin"
	"github.com/barangaylink/barangaylink/internal/app"
	"github.com/barangaylink/barangaylink/internal/audit"
	"github.com/barangaylink/barangaylink/internal/identity"
	"github.com/barangaylink/barangaylink/internal/observability"
	"github.com/barangaylink/barangaylink/internal/platform/cache"
	"github.com/barangaylink/barangaylink/internal/platform/db"
	"github.com/barangaylink/barangaylink/internal/revocation"
	"github.com/barangaylink/barangaylink/internal/roles"
	"github.com/barangaylink/barangaylink/internal/saga"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	identityClient := identity.NewHTTPClient(cfg.IdentityURL, cfg.IdentityAnonKey, cfg.IdentityServiceKey)

	rolesRepo := roles.NewRepository(pool)
	sagaRepo := saga.NewRepository(pool)
	revoked := revocation.NewStore(redisClient, 24*time.Hour)
	auditLogger := audit.NewLogger(pool)
	metrics := observability.NewMetrics()

	adminService := admin.NewService(logger, identityClient, rolesRepo, sagaRepo, revoked, auditLogger)
	authenticator := admin.NewAuthenticator(logger, identityClient, rolesRepo, revoked)
	adminHandler := admin.NewHandler(logger, adminService, authenticator, metrics)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AdminHandler: adminHandler,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin proxy listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
