package livesync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"goalsync/internal/infrastructure/lock"
)

type failingLocker struct{ err error }

func (l failingLocker) TryLock(context.Context, string) (func(), bool, error) {
	return nil, false, l.err
}

func TestWithLockSkipsBlankKey(t *testing.T) {
	for _, key := range []string{"", "   ", "\t"} {
		called := false
		outcome, err := WithLock(context.Background(), lock.NewMemoryLocker(), key, time.Second, func(context.Context) error {
			called = true
			return nil
		})
		if err != nil || outcome != LockSkippedInvalidKey || called {
			t.Fatalf("WithLock(%q) = %s, %v, called=%v; want skipped_invalid_key, nil, false", key, outcome, err, called)
		}
	}
}

func TestWithLockSkipsOnContention(t *testing.T) {
	locker := lock.NewMemoryLocker()
	unlock, acquired, err := locker.TryLock(context.Background(), "abc")
	if err != nil || !acquired {
		t.Fatalf("TryLock() = %v, %v", acquired, err)
	}

	called := false
	outcome, err := WithLock(context.Background(), locker, "abc", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || outcome != LockSkippedContention || called {
		t.Fatalf("WithLock() = %s, %v, called=%v; want skipped_contention", outcome, err, called)
	}

	unlock()
	outcome, err = WithLock(context.Background(), locker, "abc", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || outcome != LockAcquired || !called {
		t.Fatalf("WithLock() after unlock = %s, %v, called=%v", outcome, err, called)
	}
	if locker.Held() != 0 {
		t.Fatalf("Held() = %d after WithLock, want 0", locker.Held())
	}
}

func TestWithLockNeverOverlaps(t *testing.T) {
	locker := lock.NewMemoryLocker()
	var active, peak, ran int32

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = WithLock(context.Background(), locker, "abc", time.Second, func(context.Context) error {
				current := atomic.AddInt32(&active, 1)
				if current > atomic.LoadInt32(&peak) {
					atomic.StoreInt32(&peak, current)
				}
				atomic.AddInt32(&ran, 1)
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Fatalf("peak holders = %d, want 1", peak)
	}
	if ran < 1 {
		t.Fatalf("no caller acquired the lock")
	}
}

func TestWithLockBoundsCallbackContext(t *testing.T) {
	outcome, err := WithLock(context.Background(), lock.NewMemoryLocker(), "abc", 5*time.Millisecond, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("callback context has no deadline")
		}
		<-ctx.Done()
		return ctx.Err()
	})
	if outcome != LockAcquired || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WithLock() = %s, %v; want acquired, deadline exceeded", outcome, err)
	}
}

func TestWithLockReportsLockerFailure(t *testing.T) {
	boom := errors.New("redis down")
	outcome, err := WithLock(context.Background(), failingLocker{err: boom}, "abc", 0, func(context.Context) error {
		t.Fatalf("callback ran without the lock")
		return nil
	})
	if outcome != LockFailed || !errors.Is(err, boom) {
		t.Fatalf("WithLock() = %s, %v; want failed wrapping the cause", outcome, err)
	}
}
