package workpool

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func TestMapDoublesInOrderWithCap(t *testing.T) {
	var active, peak int32
	worker := func(_ context.Context, item int) (int, error) {
		current := atomic.AddInt32(&active, 1)
		for {
			seen := atomic.LoadInt32(&peak)
			if current <= seen || atomic.CompareAndSwapInt32(&peak, seen, current) {
				break
			}
		}
		// later items finish first
		time.Sleep(time.Duration(6-item) * 5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return item * 2, nil
	}

	got, err := Map(context.Background(), []int{1, 2, 3, 4, 5}, 2, worker)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if want := []int{2, 4, 6, 8, 10}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Map() = %v, want %v", got, want)
	}
	if got := atomic.LoadInt32(&peak); got != 2 {
		t.Fatalf("peak concurrency = %d, want 2", got)
	}
}

func TestMapEmptyInputSkipsWorker(t *testing.T) {
	called := false
	got, err := Map(context.Background(), []int{}, 3, func(_ context.Context, item int) (int, error) {
		called = true
		return item, nil
	})
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("Map() = %#v, want empty non-nil slice", got)
	}
	if called {
		t.Fatalf("Map() called worker for empty input")
	}

	got, err = Map[int, int](context.Background(), nil, 3, func(_ context.Context, item int) (int, error) {
		called = true
		return item, nil
	})
	if err != nil {
		t.Fatalf("Map(nil) error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Map(nil) = %v, want empty", got)
	}
	if called {
		t.Fatalf("Map(nil) called worker")
	}
}

func TestMapClampsLimit(t *testing.T) {
	var active, peak int32
	got, err := Map(context.Background(), []string{"a", "b", "c"}, 0, func(_ context.Context, item string) (string, error) {
		if current := atomic.AddInt32(&active, 1); current > atomic.LoadInt32(&peak) {
			atomic.StoreInt32(&peak, current)
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return item + item, nil
	})
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if want := []string{"aa", "bb", "cc"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Map() = %v, want %v", got, want)
	}
	if got := atomic.LoadInt32(&peak); got != 1 {
		t.Fatalf("peak concurrency = %d, want 1", got)
	}
}

func TestMapReturnsFirstErrorWithoutWaiting(t *testing.T) {
	boom := errors.New("boom")
	release := make(chan struct{})
	defer close(release)

	var started int32
	returned := make(chan error, 1)
	go func() {
		_, err := Map(context.Background(), []int{1, 2, 3, 4, 5, 6}, 2, func(_ context.Context, item int) (int, error) {
			atomic.AddInt32(&started, 1)
			if item == 1 {
				<-release
				return item, nil
			}
			if item == 2 {
				return 0, boom
			}
			return item, nil
		})
		returned <- err
	}()

	select {
	case err := <-returned:
		if !errors.Is(err, boom) {
			t.Fatalf("Map() error = %v, want %v", err, boom)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Map() did not return while a worker was still in flight")
	}
	if got := atomic.LoadInt32(&started); got >= 6 {
		t.Fatalf("started = %d, want fewer than 6", got)
	}
}

func TestMapStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	_, err := Map(ctx, []int{1, 2, 3}, 2, func(_ context.Context, item int) (int, error) {
		atomic.AddInt32(&calls, 1)
		return item, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Map() error = %v, want %v", err, context.Canceled)
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("worker calls = %d, want 0", got)
	}
}
