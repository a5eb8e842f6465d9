package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/errs"
	"goalsync/internal/ports"
)

const redisUnlockTimeout = 5 * time.Second

// redisReleaseScript deletes the key only while it still holds our token.
// KEYS[1] = lock key
// ARGV[1] = owner token
var redisReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares locks across processes. The ttl bounds how long a
// crashed holder can block a key.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ ports.KeyedLocker = (*RedisLocker)(nil)

func NewRedisLocker(addr string, password string, db int, prefix string, ttl time.Duration) *RedisLocker {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	lockKey := l.prefix + key
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, errs.Wrapf(err, "redis setnx %q", lockKey)
	}
	if !acquired {
		return nil, false, nil
	}

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), redisUnlockTimeout)
		defer cancel()
		if err := redisReleaseScript.Run(unlockCtx, l.client, []string{lockKey}, token).Err(); err != nil {
			logging.Warn(ctx, "redis unlock failed", slog.String("lock_key", lockKey), slog.Any("err", errs.Loggable(err)))
		}
	}, true, nil
}

func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}
