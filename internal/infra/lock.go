package infra

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pipeline/internal/domain"
)

// lockSession is one pinned database session. Advisory locks belong to the
// session that took them, so the unlock must run on the same connection as
// the lock; running either call on an arbitrary pooled connection would
// leave the lock stranded on an idle session.
type lockSession interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Release()
}

// EntityLock serializes pipeline jobs targeting the same entity id using
// Postgres advisory locks. At most one job mutates a given entity at a
// time; a second job observes domain.ErrLockHeld and is retried by the
// queue after backoff. Each held lock pins its pool connection until
// Release returns it.
type EntityLock struct {
	acquire func(ctx context.Context) (lockSession, error)

	mu   sync.Mutex
	held map[string]lockSession
}

// NewEntityLock creates an advisory lock manager on the shared pool.
func NewEntityLock(pool *pgxpool.Pool) *EntityLock {
	return &EntityLock{
		acquire: func(ctx context.Context) (lockSession, error) {
			return pool.Acquire(ctx)
		},
		held: make(map[string]lockSession),
	}
}

// Acquire takes the advisory lock for entityID without blocking. The caller
// must Release with the same id on every path once mutation is finished.
func (l *EntityLock) Acquire(ctx context.Context, entityID string) error {
	sess, err := l.acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire lock session: %w", err)
	}
	var acquired bool
	row := sess.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, entityID)
	if err := row.Scan(&acquired); err != nil {
		sess.Release()
		return fmt.Errorf("acquire entity lock: %w", err)
	}
	if !acquired {
		sess.Release()
		return domain.ErrLockHeld
	}
	l.mu.Lock()
	l.held[entityID] = sess
	l.mu.Unlock()
	return nil
}

// Release drops the advisory lock for entityID and returns its pinned
// connection to the pool.
func (l *EntityLock) Release(ctx context.Context, entityID string) error {
	l.mu.Lock()
	sess, ok := l.held[entityID]
	delete(l.held, entityID)
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("release entity lock: %q is not held", entityID)
	}
	defer sess.Release()

	var released bool
	row := sess.QueryRow(ctx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, entityID)
	if err := row.Scan(&released); err != nil {
		return fmt.Errorf("release entity lock: %w", err)
	}
	if !released {
		return fmt.Errorf("release entity lock: session did not own %q", entityID)
	}
	return nil
}
