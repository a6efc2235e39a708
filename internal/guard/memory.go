package guard

import (
	"context"
	"sync"
	"time"
)

// MemoryGuard is an in-process Guard.
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{entries: map[string]Entry{}, now: time.Now}
}

func (g *MemoryGuard) TryAcquire(_ context.Context, key, owner string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.entries[key]; held {
		return false, nil
	}
	g.entries[key] = Entry{Key: key, Owner: owner, AcquiredAt: g.now().UTC()}
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, key, owner string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, held := g.entries[key]; held && e.Owner == owner {
		delete(g.entries, key)
	}
	return nil
}

func (g *MemoryGuard) Holder(_ context.Context, key string) (Entry, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, held := g.entries[key]
	return e, held, nil
}

func (g *MemoryGuard) Clear(_ context.Context, key string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if key == "" {
		n := len(g.entries)
		g.entries = map[string]Entry{}
		return n, nil
	}
	if _, held := g.entries[key]; !held {
		return 0, nil
	}
	delete(g.entries, key)
	return 1, nil
}

func (g *MemoryGuard) ClearStale(_ context.Context, key string, olderThan time.Duration) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := g.now().Add(-olderThan)
	n := 0
	for k, e := range g.entries {
		if (key == "" || k == key) && e.AcquiredAt.Before(cutoff) {
			delete(g.entries, k)
			n++
		}
	}
	return n, nil
}
