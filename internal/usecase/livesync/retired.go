package livesync

import (
	"context"
	"sync"
)

// retiredSet caches ids of confirmed events so ticks can skip them without
// taking a lock. It is reloaded from the store at the start of every tick so
// readmissions done by another process show up.
type retiredSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func newRetiredSet() *retiredSet {
	return &retiredSet{ids: make(map[string]struct{})}
}

// refresh replaces the set with the store's view. On error the previous
// contents stay.
func (r *retiredSet) refresh(ctx context.Context, load func(ctx context.Context) ([]string, error)) error {
	ids, err := load(ctx)
	if err != nil {
		return err
	}

	fresh := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		fresh[id] = struct{}{}
	}
	r.mu.Lock()
	r.ids = fresh
	r.mu.Unlock()
	return nil
}

func (r *retiredSet) has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[id]
	return ok
}

func (r *retiredSet) add(id string) {
	r.mu.Lock()
	r.ids[id] = struct{}{}
	r.mu.Unlock()
}

func (r *retiredSet) remove(id string) {
	r.mu.Lock()
	delete(r.ids, id)
	r.mu.Unlock()
}

func (r *retiredSet) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}
