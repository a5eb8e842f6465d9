// Package telemetry exposes sync counters through OpenTelemetry.
package telemetry

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/errs"
	"goalsync/internal/ports"
)

const meterName = "goalsync/livesync"

type Options struct {
	Enabled        bool
	Endpoint       string
	Insecure       bool
	ServiceName    string
	ExportInterval time.Duration
}

// Provider owns the meter provider and its exporter.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
}

// NewProvider returns a no-op provider when telemetry is disabled.
func NewProvider(ctx context.Context, options Options) (*Provider, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "telemetry"))
	if !options.Enabled {
		logging.Debug(logCtx, "telemetry disabled")
		return &Provider{meter: noop.NewMeterProvider().Meter(meterName)}, nil
	}

	serviceName := strings.TrimSpace(options.ServiceName)
	if serviceName == "" {
		serviceName = "goalsync"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, errs.Wrap(err, "build telemetry resource")
	}

	exporterOptions := []otlpmetricgrpc.Option{}
	if endpoint := strings.TrimSpace(options.Endpoint); endpoint != "" {
		exporterOptions = append(exporterOptions, otlpmetricgrpc.WithEndpoint(endpoint))
	}
	if options.Insecure {
		exporterOptions = append(exporterOptions, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, exporterOptions...)
	if err != nil {
		return nil, errs.Wrap(err, "create metric exporter")
	}

	interval := options.ExportInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	logging.Info(logCtx, "telemetry enabled", slog.String("endpoint", options.Endpoint), slog.Duration("interval", interval))
	return &Provider{meterProvider: meterProvider, meter: meterProvider.Meter(meterName)}, nil
}

// NewProviderWithReader wires an explicit reader, mainly for tests.
func NewProviderWithReader(reader sdkmetric.Reader) *Provider {
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return &Provider{meterProvider: meterProvider, meter: meterProvider.Meter(meterName)}
}

func (p *Provider) Meter() metric.Meter {
	return p.meter
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.meterProvider == nil {
		return nil
	}
	return errs.Wrap(p.meterProvider.Shutdown(ctx), "shutdown meter provider")
}

// Metrics records tick, reconcile, sweep and anomaly counts.
type Metrics struct {
	ticks        metric.Int64Counter
	tickDuration metric.Float64Histogram
	reconciles   metric.Int64Counter
	sweeps       metric.Int64Counter
	sweepSize    metric.Int64Histogram
	anomalies    metric.Int64Counter
}

var _ ports.SyncMetrics = (*Metrics)(nil)

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error
	if m.ticks, err = meter.Int64Counter("goalsync.ticks",
		metric.WithDescription("Completed reconciliation ticks"),
		metric.WithUnit("{tick}"),
	); err != nil {
		return nil, errs.Wrap(err, "create ticks counter")
	}
	if m.tickDuration, err = meter.Float64Histogram("goalsync.tick.duration",
		metric.WithDescription("Tick wall time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	); err != nil {
		return nil, errs.Wrap(err, "create tick duration histogram")
	}
	if m.reconciles, err = meter.Int64Counter("goalsync.reconciles",
		metric.WithDescription("Per-event reconcile outcomes"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, errs.Wrap(err, "create reconciles counter")
	}
	if m.sweeps, err = meter.Int64Counter("goalsync.sweeps",
		metric.WithDescription("Watchdog sweeps"),
		metric.WithUnit("{sweep}"),
	); err != nil {
		return nil, errs.Wrap(err, "create sweeps counter")
	}
	if m.sweepSize, err = meter.Int64Histogram("goalsync.sweep.candidates",
		metric.WithDescription("Stale candidates per sweep"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, errs.Wrap(err, "create sweep size histogram")
	}
	if m.anomalies, err = meter.Int64Counter("goalsync.anomalies",
		metric.WithDescription("Lifecycle anomalies such as retired events reappearing"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, errs.Wrap(err, "create anomalies counter")
	}
	return m, nil
}

func (m *Metrics) RecordTick(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.ticks.Add(ctx, 1, attrs)
	m.tickDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *Metrics) RecordReconcile(ctx context.Context, source string, outcome string) {
	m.reconciles.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordSweep(ctx context.Context, outcome string, candidates int) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.sweeps.Add(ctx, 1, attrs)
	m.sweepSize.Record(ctx, int64(candidates), attrs)
}

func (m *Metrics) RecordAnomaly(ctx context.Context, kind string) {
	m.anomalies.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
