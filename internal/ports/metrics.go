package ports

import (
	"context"
	"time"
)

type SyncMetrics interface {
	RecordTick(ctx context.Context, outcome string, duration time.Duration)
	RecordReconcile(ctx context.Context, source string, outcome string)
	RecordSweep(ctx context.Context, outcome string, candidates int)
	RecordAnomaly(ctx context.Context, kind string)
}
