package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"query-assistant/internal/adapter/httpapi"
	"query-assistant/internal/di"
	"query-assistant/internal/infrastructure/config"
	"query-assistant/internal/infrastructure/env"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load(env.NewEnvService())
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(ctx, cfg, di.Options{})
	if err != nil {
		log.Fatalf("Initialization failed: %v", err)
	}
	defer container.Close()

	api := httpapi.NewServer(httpapi.Config{
		SecretToken:    cfg.SecretToken,
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		JSONLogs:       cfg.AppEnv != "dev",
	}, container.Gateway, container.Loader, container.Logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		container.Logger.Info("HTTP server listening", "addr", cfg.HTTPAddr, "env", cfg.AppEnv)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			container.Logger.Error("HTTP server failed", "error", err)
		}
	case <-ctx.Done():
		container.Logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			container.Logger.Error("Graceful shutdown failed", "error", err)
		}
	}
}
