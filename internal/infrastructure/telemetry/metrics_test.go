package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	out := map[string]metricdata.Aggregation{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, key string, value string) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("aggregation %T is not an int64 sum", data)
	}
	var total int64
	for _, point := range sum.DataPoints {
		if got, ok := point.Attributes.Value(attribute.Key(key)); ok && got.AsString() == value {
			total += point.Value
		}
	}
	return total
}

func TestMetricsRecordsCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := NewProviderWithReader(reader)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := NewMetrics(provider.Meter())
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	ctx := context.Background()
	metrics.RecordTick(ctx, "ok", 120*time.Millisecond)
	metrics.RecordTick(ctx, "ok", 80*time.Millisecond)
	metrics.RecordTick(ctx, "fetch_failed", time.Millisecond)
	metrics.RecordReconcile(ctx, "tick", "updated")
	metrics.RecordReconcile(ctx, "watchdog", "skipped")
	metrics.RecordSweep(ctx, "ok", 3)
	metrics.RecordAnomaly(ctx, "retired_active")

	data := collect(t, reader)
	testCases := []struct {
		metric string
		key    string
		value  string
		want   int64
	}{
		{metric: "goalsync.ticks", key: "outcome", value: "ok", want: 2},
		{metric: "goalsync.ticks", key: "outcome", value: "fetch_failed", want: 1},
		{metric: "goalsync.reconciles", key: "source", value: "watchdog", want: 1},
		{metric: "goalsync.sweeps", key: "outcome", value: "ok", want: 1},
		{metric: "goalsync.anomalies", key: "kind", value: "retired_active", want: 1},
	}
	for _, tc := range testCases {
		if got := sumFor(t, data[tc.metric], tc.key, tc.value); got != tc.want {
			t.Fatalf("%s{%s=%s} = %d, want %d", tc.metric, tc.key, tc.value, got, tc.want)
		}
	}

	hist, ok := data["goalsync.tick.duration"].(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("goalsync.tick.duration is %T, want float64 histogram", data["goalsync.tick.duration"])
	}
	var count uint64
	for _, point := range hist.DataPoints {
		count += point.Count
	}
	if count != 3 {
		t.Fatalf("tick duration count = %d, want 3", count)
	}
}

func TestDisabledProviderIsNoop(t *testing.T) {
	provider, err := NewProvider(context.Background(), Options{})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	metrics, err := NewMetrics(provider.Meter())
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	metrics.RecordTick(context.Background(), "ok", time.Second)
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}
