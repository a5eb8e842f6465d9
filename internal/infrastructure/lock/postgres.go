package lock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/errs"
	"goalsync/internal/ports"
)

const postgresUnlockTimeout = 5 * time.Second

// PostgresLocker uses session-level advisory locks. Each held key pins one
// connection until it is unlocked.
type PostgresLocker struct {
	db     *sql.DB
	prefix string
}

var _ ports.KeyedLocker = (*PostgresLocker)(nil)

func NewPostgresLocker(db *sql.DB, prefix string) *PostgresLocker {
	return &PostgresLocker{db: db, prefix: prefix}
}

func OpenPostgresLocker(ctx context.Context, dsn string, prefix string) (*PostgresLocker, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errs.Wrap(err, "open postgres lock db")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(err, "ping postgres lock db")
	}
	return NewPostgresLocker(db, prefix), nil
}

func (l *PostgresLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	lockKey := advisoryKey(l.prefix, key)

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, errs.Wrap(err, "acquire postgres lock connection")
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockKey).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, false, errs.Wrapf(err, "try advisory lock %q", key)
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), postgresUnlockTimeout)
		defer cancel()

		var released bool
		if err := conn.QueryRowContext(unlockCtx, "SELECT pg_advisory_unlock($1)", lockKey).Scan(&released); err != nil || !released {
			logging.Warn(ctx, "advisory unlock failed", slog.String("lock_key", key), slog.Bool("released", released), slog.Any("err", errs.Loggable(err)))
		}
		_ = conn.Close()
	}, true, nil
}

func (l *PostgresLocker) Close() error {
	return l.db.Close()
}

func advisoryKey(prefix string, key string) int64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(strings.TrimSpace(prefix)))
	_, _ = hasher.Write([]byte{0})
	_, _ = hasher.Write([]byte(strings.TrimSpace(key)))
	return int64(hasher.Sum64())
}
