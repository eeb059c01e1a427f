// Package db holds the shared Postgres plumbing: pool construction, the
// Querier interface satisfied by both a pool and a transaction, and a
// transaction helper that defers follow-up work until after commit.
package db

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the query surface shared by *pgxpool.Pool and pgx.Tx. Stores are
// built against it so the same store code runs inside and outside a
// transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a pgx pool. An empty URL falls back to DATABASE_URL, then to a
// local default.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		url = "postgres://localhost:5432/openrecords"
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// TxHooks collects functions to run only after the surrounding transaction
// has durably committed. A rolled-back transaction drops its hooks.
type TxHooks struct {
	fns []func(context.Context) error
}

// OnCommit registers fn to run after a successful commit.
func (h *TxHooks) OnCommit(fn func(context.Context) error) {
	h.fns = append(h.fns, fn)
}

func (h *TxHooks) run(ctx context.Context) {
	for _, fn := range h.fns {
		if err := fn(ctx); err != nil {
			log.Printf("db: after-commit hook: %v", err)
		}
	}
}

// WithTx runs fn inside a transaction. Hooks registered through TxHooks fire
// after commit, so an async job dispatched from inside fn can never observe
// uncommitted state.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx, hooks *TxHooks) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	hooks := &TxHooks{}
	if err := fn(tx, hooks); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	hooks.run(ctx)
	return nil
}
