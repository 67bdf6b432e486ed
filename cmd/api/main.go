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

	"github.com/yodusanwo/ai-trip-planner/internal/bootstrap"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/config"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/server"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()
	app.Start(ctx)

	srv := &http.Server{
		Addr:              server.Addr(cfg.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		telemetry.Info("server.start", map[string]any{
			"addr":    srv.Addr,
			"env":     cfg.Env,
			"version": cfg.Version,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Printf("server error: %v", err)
		}
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight requests and jobs", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if err := app.Drain(shutdownCtx); err != nil {
		telemetry.Warn("server.drain_timeout", map[string]any{
			"running": app.Dispatcher.Running(),
			"queued":  app.Dispatcher.Queued(),
			"error":   err,
		})
	}
	telemetry.Info("server.stopped", nil)
}
