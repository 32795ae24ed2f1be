package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"nasiya/internal/auth"
	"nasiya/internal/backend"
	"nasiya/internal/cli"
	"nasiya/internal/log"

	apphttp "nasiya/internal/http"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(nil)
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	factory := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog())
	res, err := factory.CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	var issuer *auth.Issuer
	if cfg.AuthEnabled() {
		issuer = auth.NewIssuer(cfg.AuthSecret, cfg.AuthTokenTTL)
	}

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:    ":" + cfg.Port,
		Backend: res.Backend,
		Ready:   res.Ready,
		Issuer:  issuer,
		Credentials: auth.Credentials{
			Username:     cfg.LoginUsername,
			PasswordHash: cfg.LoginPasswordHash,
		},
		SessionTTL:    cfg.SessionTTL,
		MaxSessions:   cfg.MaxSessions,
		DraftTTL:      cfg.DraftTTL,
		MaxImageBytes: cfg.MaxImageBytes,
		SecureCookies: cfg.SecureCookies,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("Failed to create server", log.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(context.Background(), logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting nasiya server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"auth_enabled", issuer != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	<-done
	logger.Info("Server stopped gracefully")
}
