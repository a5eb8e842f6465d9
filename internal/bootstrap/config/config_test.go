package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path string, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoadAppliesFileAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, `
database:
  dsn: /tmp/goalsync-test.sqlite
provider:
  backend: http
  base_url: https://api.example.test/v1
sync:
  concurrency: 8
  tick_interval: 30s
watchdog:
  freshness_threshold: 4m
`)

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.Concurrency != 8 || cfg.Sync.TickInterval != 30*time.Second {
		t.Fatalf("Load() sync = %+v", cfg.Sync)
	}
	if cfg.Watchdog.FreshnessThreshold != 4*time.Minute || cfg.Watchdog.Interval != 5*time.Minute {
		t.Fatalf("Load() watchdog = %+v", cfg.Watchdog)
	}
	if cfg.Sync.FinalityThreshold != 15*time.Minute {
		t.Fatalf("Load() finality threshold = %s", cfg.Sync.FinalityThreshold)
	}
	if cfg.Lock.Backend != "memory" || cfg.Publisher.Backend != "noop" {
		t.Fatalf("Load() backends lock=%q publisher=%q", cfg.Lock.Backend, cfg.Publisher.Backend)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "sync:\n  max_retries: 2\n")
	t.Setenv("GS_SYNC_MAX_RETRIES", "6")
	t.Setenv("GS_LOCK_BACKEND", "redis")
	t.Setenv("GS_LOCK_REDIS_ADDR", "127.0.0.1:6379")

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.MaxRetries != 6 {
		t.Fatalf("Load() max retries = %d, want 6", cfg.Sync.MaxRetries)
	}
	if cfg.Lock.Backend != "redis" || cfg.Lock.RedisAddr != "127.0.0.1:6379" {
		t.Fatalf("Load() lock = %+v", cfg.Lock)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want string
	}{
		{name: "http without url", body: "provider:\n  backend: http\n", want: "provider.base_url"},
		{name: "unknown lock", body: "lock:\n  backend: etcd\n", want: "lock.backend"},
		{name: "zero concurrency", body: "sync:\n  concurrency: 0\n", want: "concurrency"},
		{name: "nats without url", body: "publisher:\n  backend: nats\n", want: "publisher.nats_url"},
		{name: "redis ttl shorter than timeout", body: "lock:\n  backend: redis\n  redis_addr: 127.0.0.1:6379\n  ttl: 10s\n  timeout: 20s\n", want: "lock.ttl"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			writeConfig(t, path, testCase.body)

			_, err := Load(context.Background(), path)
			if err == nil || !strings.Contains(err.Error(), testCase.want) {
				t.Fatalf("Load() error = %v, want mention of %q", err, testCase.want)
			}
		})
	}
}

func TestWatchReportsChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "sync:\n  concurrency: 3\n")

	changes := make(chan Config, 4)
	if err := Watch(context.Background(), path, func(cfg Config) { changes <- cfg }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	writeConfig(t, path, "sync:\n  concurrency: 9\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Sync.Concurrency == 9 {
				return
			}
		case <-deadline:
			t.Fatalf("Watch() did not report the new concurrency")
		}
	}
}
