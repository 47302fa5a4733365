// Command spacesctl inspects and maintains the project store directly,
// without going through the HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Alyfish/spacestest-v0-mvp/config"
	"github.com/Alyfish/spacestest-v0-mvp/internal/bootstrap"
	"github.com/Alyfish/spacestest-v0-mvp/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	open := func(ctx context.Context) (*bootstrap.App, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		// The CLI is a second writer; never serve it from a snapshot cache.
		cfg.Store.SnapshotCacheSize = 0
		lg, err := logger.New(cfg.App.Environment, "warn")
		if err != nil {
			return nil, err
		}
		return bootstrap.NewApp(ctx, cfg, lg)
	}

	if err := newRootCmd(open).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
