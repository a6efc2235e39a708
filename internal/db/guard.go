package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/supsol/poreview/internal/guard"
)

// ProcessingGuard keeps guard entries in the processing_locks table so that
// separate processes sharing the database exclude each other.
type ProcessingGuard struct {
	store *Store
}

func NewProcessingGuard(s *Store) *ProcessingGuard {
	return &ProcessingGuard{store: s}
}

var _ guard.Guard = (*ProcessingGuard)(nil)
var _ guard.StaleClearer = (*ProcessingGuard)(nil)

func (g *ProcessingGuard) TryAcquire(ctx context.Context, key, owner string) (bool, error) {
	tag, err := g.store.Pool.Exec(ctx, `
		INSERT INTO processing_locks (key, owner, acquired_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO NOTHING`, key, owner)
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (g *ProcessingGuard) Release(ctx context.Context, key, owner string) error {
	_, err := g.store.Pool.Exec(ctx, `DELETE FROM processing_locks WHERE key = $1 AND owner = $2`, key, owner)
	return err
}

func (g *ProcessingGuard) Holder(ctx context.Context, key string) (guard.Entry, bool, error) {
	e := guard.Entry{Key: key}
	err := g.store.Pool.QueryRow(ctx, `SELECT owner, acquired_at FROM processing_locks WHERE key = $1`, key).Scan(&e.Owner, &e.AcquiredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return guard.Entry{}, false, nil
	}
	if err != nil {
		return guard.Entry{}, false, err
	}
	return e, true, nil
}

func (g *ProcessingGuard) Clear(ctx context.Context, key string) (int, error) {
	tag, err := g.store.Pool.Exec(ctx, `DELETE FROM processing_locks WHERE $1 = '' OR key = $1`, key)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (g *ProcessingGuard) ClearStale(ctx context.Context, key string, olderThan time.Duration) (int, error) {
	tag, err := g.store.Pool.Exec(ctx, `
		DELETE FROM processing_locks
		WHERE ($1 = '' OR key = $1)
		AND acquired_at < NOW() - make_interval(secs => $2)`, key, olderThan.Seconds())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
