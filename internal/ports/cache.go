package ports

import (
	"context"
	"time"
)

// Cache is the key-value store for run summaries. A zero ttl keeps the
// entry until it is overwritten.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}
