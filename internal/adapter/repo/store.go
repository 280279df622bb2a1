package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pipeline/internal/domain"
)

// DBTX is the subset of pgx executed by repositories, satisfied by both
// *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.Store on PostgreSQL. WithinTx yields a Store
// whose repositories share one transaction, which is how terminal status
// writes and their outbox events stay atomic.
type Store struct {
	pool *pgxpool.Pool
	db   DBTX
}

// NewStore creates a store on the shared pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

func (s *Store) Designs() domain.DesignRepository   { return &DesignRepositoryPG{db: s.db} }
func (s *Store) Renders() domain.RenderRepository   { return &RenderRepositoryPG{db: s.db} }
func (s *Store) Orders() domain.OrderRepository     { return &OrderRepositoryPG{db: s.db} }
func (s *Store) Products() domain.ProductRepository { return &ProductRepositoryPG{db: s.db} }
func (s *Store) Brands() domain.BrandRepository     { return &BrandRepositoryPG{db: s.db} }
func (s *Store) Assets() domain.AssetRepository     { return &AssetRepositoryPG{db: s.db} }
func (s *Store) Progress() domain.ProgressRepository {
	return &ProgressRepositoryPG{db: s.db}
}
func (s *Store) Outbox() domain.OutboxRepository { return &OutboxRepositoryPG{db: s.db} }

// WithinTx runs fn against a transaction-scoped Store. Nested calls reuse
// the ambient transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(domain.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{db: tx}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var _ domain.Store = (*Store)(nil)
