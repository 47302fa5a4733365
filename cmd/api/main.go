package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Alyfish/spacestest-v0-mvp/config"
	"github.com/Alyfish/spacestest-v0-mvp/internal/bootstrap"
	"github.com/Alyfish/spacestest-v0-mvp/internal/observability"
	"github.com/Alyfish/spacestest-v0-mvp/internal/platform/logger"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/retention"
)

const serviceName = "spaces-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg, err := logger.New(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer lg.Sync()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("server exited", "error", err)
	}
}

func run(cfg *config.Config, lg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap.SetGinMode(cfg.App.Environment)

	shutdownTracing, err := observability.InitTracing(ctx, lg, observability.TracingConfig{
		Enabled:      cfg.Telemetry.OTelEnabled,
		ServiceName:  serviceName,
		Environment:  cfg.App.Environment,
		Version:      cfg.App.Version,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		Insecure:     !cfg.IsProduction(),
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	app, err := bootstrap.NewApp(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer app.Close()

	var purger *retention.Scheduler
	if cfg.Retention.MaxAge > 0 {
		purger = retention.NewScheduler(app.Service, cfg.Retention.MaxAge, cfg.Retention.Schedule, lg)
		if err := purger.Start(); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: bootstrap.BuildRouter(bootstrap.RouterDeps{
			ServiceName: serviceName,
			Version:     cfg.App.Version,
			App:         app,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("listening", "addr", srv.Addr, "env", cfg.App.Environment, "store", cfg.Store.Backend, "lock", cfg.Lock.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		lg.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown", "error", err)
	}
	if purger != nil {
		purger.Stop(shutdownCtx)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		lg.Warn("tracing shutdown", "error", err)
	}
	return nil
}
