// Package livesync keeps stored match events in line with the provider feed.
// A periodic tick reconciles the live batch and a slower watchdog sweep
// re-fetches events that went quiet or asked for readmission.
package livesync

import (
	"context"
	"errors"
	"sync"
	"time"

	"goalsync/internal/domain/match"
	"goalsync/internal/ports"
)

var ErrProviderFetch = errors.New("provider fetch failed")

const (
	SourceTick     = "tick"
	SourceWatchdog = "watchdog"

	lastTickKey  = "tick:last_summary"
	lastSweepKey = "sweep:last_summary"
)

// Options are the tunables a running service can pick up on config reload.
type Options struct {
	TickInterval        time.Duration
	TickTimeout         time.Duration
	BatchSize           int
	Concurrency         int
	MaxRetries          int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	FinalityThreshold   time.Duration
	DriftThreshold      int
	RetiredLookback     time.Duration
	LockTimeout         time.Duration
	WatchdogInterval    time.Duration
	WatchdogFreshness   time.Duration
	WatchdogBatchSize   int
	WatchdogConcurrency int
}

func DefaultOptions() Options {
	return Options{
		TickInterval:        time.Minute,
		TickTimeout:         50 * time.Second,
		BatchSize:           500,
		Concurrency:         20,
		MaxRetries:          3,
		RetryBaseDelay:      200 * time.Millisecond,
		RetryMaxDelay:       2 * time.Second,
		FinalityThreshold:   match.DefaultFinalityThreshold,
		DriftThreshold:      match.DefaultDriftThreshold,
		RetiredLookback:     24 * time.Hour,
		LockTimeout:         20 * time.Second,
		WatchdogInterval:    5 * time.Minute,
		WatchdogFreshness:   3 * time.Minute,
		WatchdogBatchSize:   50,
		WatchdogConcurrency: 4,
	}
}

// normalized fills zero values from the defaults.
func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.TickInterval <= 0 {
		o.TickInterval = d.TickInterval
	}
	if o.TickTimeout <= 0 {
		o.TickTimeout = d.TickTimeout
	}
	if o.BatchSize < 1 {
		o.BatchSize = d.BatchSize
	}
	if o.Concurrency < 1 {
		o.Concurrency = d.Concurrency
	}
	if o.MaxRetries < 1 {
		o.MaxRetries = 1
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = d.RetryBaseDelay
	}
	if o.RetryMaxDelay < o.RetryBaseDelay {
		o.RetryMaxDelay = o.RetryBaseDelay
	}
	if o.FinalityThreshold <= 0 {
		o.FinalityThreshold = d.FinalityThreshold
	}
	if o.DriftThreshold <= 0 {
		o.DriftThreshold = d.DriftThreshold
	}
	if o.RetiredLookback <= 0 {
		o.RetiredLookback = d.RetiredLookback
	}
	if o.WatchdogInterval <= 0 {
		o.WatchdogInterval = d.WatchdogInterval
	}
	if o.WatchdogFreshness <= 0 {
		o.WatchdogFreshness = d.WatchdogFreshness
	}
	if o.WatchdogBatchSize < 1 {
		o.WatchdogBatchSize = d.WatchdogBatchSize
	}
	if o.WatchdogConcurrency < 1 {
		o.WatchdogConcurrency = d.WatchdogConcurrency
	}
	return o
}

func (o Options) policy() match.Policy {
	return match.Policy{FinalityThreshold: o.FinalityThreshold, DriftThreshold: o.DriftThreshold}
}

// Deps are the collaborators of a Service. Cache, Publisher and Metrics are
// optional.
type Deps struct {
	Repo      ports.EventRepository
	UOW       ports.UnitOfWork
	Locker    ports.KeyedLocker
	Provider  ports.ProviderClient
	Cache     ports.Cache
	Publisher ports.TransitionPublisher
	Metrics   ports.SyncMetrics
	Now       func() time.Time
}

type Service struct {
	repo      ports.EventRepository
	uow       ports.UnitOfWork
	locker    ports.KeyedLocker
	provider  ports.ProviderClient
	cache     ports.Cache
	publisher ports.TransitionPublisher
	metrics   ports.SyncMetrics
	now       func() time.Time
	retired   *retiredSet

	mu   sync.RWMutex
	opts Options
}

func NewService(deps Deps, options Options) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		repo:      deps.Repo,
		uow:       deps.UOW,
		locker:    deps.Locker,
		provider:  deps.Provider,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		metrics:   metrics,
		now:       now,
		retired:   newRetiredSet(),
		opts:      options.normalized(),
	}
}

// UpdateOptions swaps the tunables. In-flight ticks keep the values they
// started with.
func (s *Service) UpdateOptions(options Options) {
	s.mu.Lock()
	s.opts = options.normalized()
	s.mu.Unlock()
}

func (s *Service) Options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

type nopMetrics struct{}

func (nopMetrics) RecordTick(context.Context, string, time.Duration) {}
func (nopMetrics) RecordReconcile(context.Context, string, string)   {}
func (nopMetrics) RecordSweep(context.Context, string, int)          {}
func (nopMetrics) RecordAnomaly(context.Context, string)             {}
