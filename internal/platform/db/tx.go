package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type txKey struct{}

// TxFromContext returns the transaction started by WithTx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// WithTx runs fn inside a transaction carried by the context. Repositories
// pick it up with TxFromContext. A nested call joins the outer transaction.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TxRunner runs a unit of work atomically.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PoolTx runs units of work in PostgreSQL transactions.
type PoolTx struct {
	Pool *pgxpool.Pool
}

func (p PoolTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithTx(ctx, p.Pool, fn)
}

type localTxKey struct{}

// LocalTx serializes units of work for the in-memory store. It gives
// isolation between units but no rollback.
type LocalTx struct {
	mu sync.Mutex
}

func (l *LocalTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(localTxKey{}) != nil {
		return fn(ctx)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(context.WithValue(ctx, localTxKey{}, true))
}
