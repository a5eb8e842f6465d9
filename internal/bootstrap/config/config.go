package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/errs"
)

const envPrefix = "GS"

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Watchdog  WatchdogConfig  `mapstructure:"watchdog"`
	Lock      LockConfig      `mapstructure:"lock"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type ProviderConfig struct {
	Backend     string        `mapstructure:"backend"`
	BaseURL     string        `mapstructure:"base_url"`
	User        string        `mapstructure:"user"`
	Secret      string        `mapstructure:"secret"`
	FixtureFile string        `mapstructure:"fixture_file"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	Burst       int           `mapstructure:"burst"`
}

type SyncConfig struct {
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	TickTimeout       time.Duration `mapstructure:"tick_timeout"`
	BatchSize         int           `mapstructure:"batch_size"`
	Concurrency       int           `mapstructure:"concurrency"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay"`
	FinalityThreshold time.Duration `mapstructure:"finality_threshold"`
	DriftThreshold    int           `mapstructure:"drift_threshold"`
	RetiredLookback   time.Duration `mapstructure:"retired_lookback"`
}

type WatchdogConfig struct {
	Interval           time.Duration `mapstructure:"interval"`
	FreshnessThreshold time.Duration `mapstructure:"freshness_threshold"`
	BatchSize          int           `mapstructure:"batch_size"`
	Concurrency        int           `mapstructure:"concurrency"`
}

type LockConfig struct {
	Backend       string        `mapstructure:"backend"`
	Timeout       time.Duration `mapstructure:"timeout"`
	TTL           time.Duration `mapstructure:"ttl"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	PostgresDSN   string        `mapstructure:"postgres_dsn"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

type PublisherConfig struct {
	Backend       string `mapstructure:"backend"`
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type TelemetryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	OTLPEndpoint   string        `mapstructure:"otlp_endpoint"`
	Insecure       bool          `mapstructure:"insecure"`
	ServiceName    string        `mapstructure:"service_name"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v, err := readViper(logCtx, configFile)
	if err != nil {
		return Config{}, err
	}

	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("provider_backend", cfg.Provider.Backend),
		slog.String("lock_backend", cfg.Lock.Backend),
	)

	return cfg, nil
}

// Watch re-reads configFile whenever it changes on disk and hands every valid
// result to onChange. Invalid edits are logged and ignored.
func Watch(ctx context.Context, configFile string, onChange func(Config)) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if strings.TrimSpace(configFile) == "" {
		return errors.New("config file is required for watch")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v, err := readViper(logCtx, configFile)
	if err != nil {
		return err
	}

	v.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logging.Warn(logCtx, "ignore invalid config change", slog.String("path", event.Name), slog.Any("err", errs.Loggable(err)))
			return
		}
		logging.Info(logCtx, "config reloaded", slog.String("path", event.Name))
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func readViper(ctx context.Context, configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(ctx, v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			// Keep default and env-backed config when no file is provided.
			logging.Warn(ctx, "config file not found, fallback to defaults and env")
		} else {
			return nil, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(ctx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}
	return v, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var problems []error
	if strings.TrimSpace(c.Database.DSN) == "" {
		problems = append(problems, errors.New("database.dsn is required"))
	}
	switch strings.ToLower(c.Provider.Backend) {
	case "http":
		if strings.TrimSpace(c.Provider.BaseURL) == "" {
			problems = append(problems, errors.New("provider.base_url is required for http backend"))
		}
	case "fixture":
		if strings.TrimSpace(c.Provider.FixtureFile) == "" {
			problems = append(problems, errors.New("provider.fixture_file is required for fixture backend"))
		}
	default:
		problems = append(problems, fmt.Errorf("unsupported provider.backend %q", c.Provider.Backend))
	}
	switch strings.ToLower(c.Lock.Backend) {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Lock.PostgresDSN) == "" {
			problems = append(problems, errors.New("lock.postgres_dsn is required for postgres backend"))
		}
	case "redis":
		if strings.TrimSpace(c.Lock.RedisAddr) == "" {
			problems = append(problems, errors.New("lock.redis_addr is required for redis backend"))
		}
		// the key must outlive the work done under it
		if c.Lock.TTL <= c.Lock.Timeout {
			problems = append(problems, fmt.Errorf("lock.ttl (%s) must exceed lock.timeout (%s) for redis backend", c.Lock.TTL, c.Lock.Timeout))
		}
	default:
		problems = append(problems, fmt.Errorf("unsupported lock.backend %q", c.Lock.Backend))
	}
	switch strings.ToLower(c.Publisher.Backend) {
	case "", "noop":
	case "nats":
		if strings.TrimSpace(c.Publisher.NATSURL) == "" {
			problems = append(problems, errors.New("publisher.nats_url is required for nats backend"))
		}
	default:
		problems = append(problems, fmt.Errorf("unsupported publisher.backend %q", c.Publisher.Backend))
	}
	if c.Sync.TickInterval <= 0 || c.Watchdog.Interval <= 0 {
		problems = append(problems, errors.New("sync.tick_interval and watchdog.interval must be positive"))
	}
	if c.Sync.BatchSize < 1 || c.Sync.Concurrency < 1 || c.Watchdog.Concurrency < 1 {
		problems = append(problems, errors.New("batch sizes and concurrency limits must be at least 1"))
	}
	if c.Sync.MaxRetries < 1 {
		problems = append(problems, errors.New("sync.max_retries must be at least 1"))
	}
	if c.Sync.FinalityThreshold <= 0 || c.Watchdog.FreshnessThreshold <= 0 {
		problems = append(problems, errors.New("sync.finality_threshold and watchdog.freshness_threshold must be positive"))
	}
	return errors.Join(problems...)
}

func setDefaults(ctx context.Context, v *viper.Viper) {
	if ctx == nil {
		return
	}

	v.SetDefault("app.name", "goalsync")
	v.SetDefault("app.env", "local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".goalsync/state/goalsync.sqlite")

	v.SetDefault("provider.backend", "fixture")
	v.SetDefault("provider.fixture_file", "configs/fixtures/live.toml")
	v.SetDefault("provider.timeout", 10*time.Second)
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("provider.base_delay", 500*time.Millisecond)
	v.SetDefault("provider.max_delay", 5*time.Second)
	v.SetDefault("provider.rate_limit", 5.0)
	v.SetDefault("provider.burst", 5)

	v.SetDefault("sync.tick_interval", time.Minute)
	v.SetDefault("sync.tick_timeout", 50*time.Second)
	v.SetDefault("sync.batch_size", 500)
	v.SetDefault("sync.concurrency", 20)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.retry_base_delay", 200*time.Millisecond)
	v.SetDefault("sync.retry_max_delay", 2*time.Second)
	v.SetDefault("sync.finality_threshold", 15*time.Minute)
	v.SetDefault("sync.drift_threshold", 2)
	v.SetDefault("sync.retired_lookback", 24*time.Hour)

	v.SetDefault("watchdog.interval", 5*time.Minute)
	v.SetDefault("watchdog.freshness_threshold", 3*time.Minute)
	v.SetDefault("watchdog.batch_size", 50)
	v.SetDefault("watchdog.concurrency", 4)

	v.SetDefault("lock.backend", "memory")
	v.SetDefault("lock.timeout", 20*time.Second)
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("lock.key_prefix", "goalsync:event:")
	v.SetDefault("lock.redis_db", 0)

	v.SetDefault("publisher.backend", "noop")
	v.SetDefault("publisher.subject_prefix", "goalsync.transitions")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "goalsync")
	v.SetDefault("telemetry.export_interval", 30*time.Second)
}
