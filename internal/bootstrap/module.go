package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"goalsync/internal/bootstrap/config"
	"goalsync/internal/bootstrap/database"
	"goalsync/internal/bootstrap/logging"
	cacheinfra "goalsync/internal/infrastructure/cache"
	"goalsync/internal/infrastructure/lock"
	sqliterepo "goalsync/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "goalsync/internal/infrastructure/persistence/sqlite/uow"
	"goalsync/internal/infrastructure/provider"
	"goalsync/internal/infrastructure/publisher"
	"goalsync/internal/infrastructure/telemetry"
	"goalsync/internal/ports"
	"goalsync/internal/usecase/livesync"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewEventRepository,
			fx.As(new(ports.EventRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			cacheinfra.NewSQLiteCache,
			fx.As(new(ports.Cache)),
		),
	),
	fx.Provide(provideLocker),
	fx.Provide(provideProvider),
	fx.Provide(providePublisher),
	fx.Provide(provideMetrics),
	fx.Provide(provideLiveSync),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

func provideLocker(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (ports.KeyedLocker, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	switch strings.ToLower(cfg.Lock.Backend) {
	case "postgres":
		locker, err := lock.OpenPostgresLocker(logCtx, cfg.Lock.PostgresDSN, cfg.Lock.KeyPrefix)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return locker.Close() }})
		logging.Info(logCtx, "lock backend ready", slog.String("backend", "postgres"))
		return locker, nil
	case "redis":
		locker := lock.NewRedisLocker(cfg.Lock.RedisAddr, cfg.Lock.RedisPassword, cfg.Lock.RedisDB, cfg.Lock.KeyPrefix, cfg.Lock.TTL)
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return locker.Close() }})
		logging.Info(logCtx, "lock backend ready", slog.String("backend", "redis"), slog.String("addr", cfg.Lock.RedisAddr))
		return locker, nil
	default:
		return lock.NewMemoryLocker(), nil
	}
}

func provideProvider(cfg config.Config) (ports.ProviderClient, error) {
	switch strings.ToLower(cfg.Provider.Backend) {
	case "http":
		return provider.NewHTTPClient(provider.HTTPOptions{
			BaseURL:    cfg.Provider.BaseURL,
			User:       cfg.Provider.User,
			Secret:     cfg.Provider.Secret,
			Timeout:    cfg.Provider.Timeout,
			MaxRetries: cfg.Provider.MaxRetries,
			BaseDelay:  cfg.Provider.BaseDelay,
			MaxDelay:   cfg.Provider.MaxDelay,
			RateLimit:  cfg.Provider.RateLimit,
			Burst:      cfg.Provider.Burst,
		}, nil), nil
	case "fixture":
		return provider.NewFixtureClient(cfg.Provider.FixtureFile), nil
	default:
		return nil, errors.New("unsupported provider backend " + cfg.Provider.Backend)
	}
}

func providePublisher(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (ports.TransitionPublisher, error) {
	if strings.ToLower(cfg.Publisher.Backend) != "nats" {
		return publisher.Noop{}, nil
	}

	natsPublisher, err := publisher.ConnectNATS(ctx, cfg.Publisher.NATSURL, cfg.Publisher.SubjectPrefix)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return natsPublisher.Close() }})
	return natsPublisher, nil
}

func provideMetrics(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (ports.SyncMetrics, error) {
	meterProvider, err := telemetry.NewProvider(ctx, telemetry.Options{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		ServiceName:    cfg.Telemetry.ServiceName,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: meterProvider.Shutdown})
	return telemetry.NewMetrics(meterProvider.Meter())
}

type liveSyncParams struct {
	fx.In

	Config    config.Config
	Repo      ports.EventRepository
	UOW       ports.UnitOfWork
	Cache     ports.Cache
	Locker    ports.KeyedLocker
	Provider  ports.ProviderClient
	Publisher ports.TransitionPublisher
	Metrics   ports.SyncMetrics
}

func provideLiveSync(p liveSyncParams) *livesync.Service {
	return livesync.NewService(livesync.Deps{
		Repo:      p.Repo,
		UOW:       p.UOW,
		Locker:    p.Locker,
		Provider:  p.Provider,
		Cache:     p.Cache,
		Publisher: p.Publisher,
		Metrics:   p.Metrics,
	}, LiveSyncOptions(p.Config))
}

// LiveSyncOptions maps the sync, watchdog and lock sections onto service
// options. Used at startup and on every config reload.
func LiveSyncOptions(cfg config.Config) livesync.Options {
	return livesync.Options{
		TickInterval:        cfg.Sync.TickInterval,
		TickTimeout:         cfg.Sync.TickTimeout,
		BatchSize:           cfg.Sync.BatchSize,
		Concurrency:         cfg.Sync.Concurrency,
		MaxRetries:          cfg.Sync.MaxRetries,
		RetryBaseDelay:      cfg.Sync.RetryBaseDelay,
		RetryMaxDelay:       cfg.Sync.RetryMaxDelay,
		FinalityThreshold:   cfg.Sync.FinalityThreshold,
		DriftThreshold:      cfg.Sync.DriftThreshold,
		RetiredLookback:     cfg.Sync.RetiredLookback,
		LockTimeout:         cfg.Lock.Timeout,
		WatchdogInterval:    cfg.Watchdog.Interval,
		WatchdogFreshness:   cfg.Watchdog.FreshnessThreshold,
		WatchdogBatchSize:   cfg.Watchdog.BatchSize,
		WatchdogConcurrency: cfg.Watchdog.Concurrency,
	}
}
