package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/Alyfish/spacestest-v0-mvp/config"
	"github.com/Alyfish/spacestest-v0-mvp/internal/capabilities"
	"github.com/Alyfish/spacestest-v0-mvp/internal/capabilities/openai"
	"github.com/Alyfish/spacestest-v0-mvp/internal/capabilities/serp"
	"github.com/Alyfish/spacestest-v0-mvp/internal/imaging"
	"github.com/Alyfish/spacestest-v0-mvp/internal/observability"
	"github.com/Alyfish/spacestest-v0-mvp/internal/platform/logger"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/repository"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/service"
)

// App holds the long-lived dependencies shared by the API server and the
// operator CLI.
type App struct {
	Config   *config.Config
	Log      *logger.Logger
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Store    repository.ContextStore
	Service  *service.Service
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	closers []func()
}

// NewApp opens the configured backends and builds the workflow service.
func NewApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = observability.MustNewMetrics(a.Registry)

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	locker, err := a.locker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	images, err := imaging.NewFileStore(filepath.Join(cfg.App.DataDir, "images"), nil)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("image store: %w", err)
	}

	a.Service, err = service.New(service.Deps{
		Store:   a.Store,
		Images:  images,
		Caps:    a.capabilities(),
		Locker:  locker,
		Metrics: a.Metrics,
		Log:     log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.Redis != nil {
		return a.Redis, nil
	}
	client, err := OpenRedis(ctx, RedisOptions{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	a.Redis = client
	a.closers = append(a.closers, func() { _ = client.Close() })
	return client, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	var store repository.ContextStore

	switch cfg.Store.Backend {
	case config.BackendRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return err
		}
		store = repository.NewRedisStore(client, cfg.Store.TTL)
	case config.BackendPostgres:
		pool, err := OpenDB(ctx, DBOptions{DSN: cfg.Database.DSN})
		if err != nil {
			return err
		}
		a.DB = pool
		a.closers = append(a.closers, pool.Close)
		pg := repository.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		store = pg
	case config.BackendSQLite:
		sq, err := repository.OpenSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = sq.Close() })
		store = sq
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	// The snapshot cache is only coherent with a single writer process.
	if cfg.Store.SnapshotCacheSize > 0 && cfg.Lock.Backend == config.LockLocal {
		cached, err := repository.NewCachedStore(store, cfg.Store.SnapshotCacheSize)
		if err != nil {
			return err
		}
		store = cached
	}
	a.Store = store
	a.Log.Info("context store ready", "backend", cfg.Store.Backend, "snapshot_cache", cfg.Store.SnapshotCacheSize)
	return nil
}

func (a *App) locker(ctx context.Context) (service.Locker, error) {
	cfg := a.Config.Lock
	if cfg.Backend != config.LockRedis {
		return service.NewLocalLocker(cfg.Wait), nil
	}
	client, err := a.redisClient(ctx)
	if err != nil {
		return nil, err
	}
	return service.NewRedisLocker(client, cfg.TTL, cfg.Wait)
}

// capabilities wires the AI and search adapters. Ports without credentials
// stay unconfigured and fail with an unavailable error when used.
func (a *App) capabilities() capabilities.Set {
	cfg := a.Config
	var set capabilities.Set
	if cfg.AI.APIKey != "" {
		client := openai.New(openai.Config{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			TextModel:   cfg.AI.TextModel,
			VisionModel: cfg.AI.VisionModel,
			ImageModel:  cfg.AI.ImageModel,
		})
		set.Text, set.Vision, set.Images = client, client, client
	} else {
		a.Log.Warn("OPENAI_API_KEY not set, AI capabilities disabled")
	}
	if cfg.Search.SerpAPIKey != "" {
		set.Products = serp.New(cfg.Search.SerpURL, cfg.Search.SerpAPIKey)
	} else {
		a.Log.Warn("SERP_API_KEY not set, product search disabled")
	}

	set = capabilities.Instrument(set, a.Metrics, a.Log)
	if cfg.AI.RateLimit > 0 {
		burst := max(cfg.AI.RateBurst, 1)
		set = capabilities.WithRateLimit(set, rate.NewLimiter(rate.Limit(cfg.AI.RateLimit), burst))
	}
	return set
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
