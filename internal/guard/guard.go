package guard

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrHeld is returned by Run when another owner holds the key.
var ErrHeld = errors.New("guard: key held by another owner")

// Entry describes who holds a key.
type Entry struct {
	Key        string    `json:"key"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Guard is a keyed lock table. At most one owner holds a key at a time.
// Entries never expire on their own; a stuck entry stays until Clear.
type Guard interface {
	TryAcquire(ctx context.Context, key, owner string) (bool, error)
	// Release is a no-op when owner does not hold key.
	Release(ctx context.Context, key, owner string) error
	Holder(ctx context.Context, key string) (Entry, bool, error)
	// Clear force-removes key, or every entry when key is empty.
	Clear(ctx context.Context, key string) (int, error)
}

// Run holds key for the duration of fn. The key is released after fn
// returns or panics, even when ctx was cancelled meanwhile.
func Run(ctx context.Context, g Guard, key, owner string, fn func(ctx context.Context) error) (err error) {
	ok, err := g.TryAcquire(ctx, key, owner)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return ErrHeld
	}
	defer func() {
		if rerr := g.Release(context.WithoutCancel(ctx), key, owner); rerr != nil && err == nil {
			err = fmt.Errorf("release %s: %w", key, rerr)
		}
	}()
	return fn(ctx)
}

// StaleClearer removes entries acquired more than olderThan ago. An empty
// key means every entry.
type StaleClearer interface {
	ClearStale(ctx context.Context, key string, olderThan time.Duration) (int, error)
}

// ClearOlder clears key regardless of age when olderThan is zero, otherwise
// only entries older than olderThan.
func ClearOlder(ctx context.Context, g Guard, key string, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return g.Clear(ctx, key)
	}
	sc, ok := g.(StaleClearer)
	if !ok {
		return 0, fmt.Errorf("guard %T cannot clear by age", g)
	}
	return sc.ClearStale(ctx, key, olderThan)
}
