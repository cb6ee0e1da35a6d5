// Package txn is the transaction coordinator. It carries the current
// transaction through context and flattens nested transaction requests:
// a mutation that asks for a transaction while one is already ambient
// reuses it instead of nesting.
package txn

import (
	"context"
	"database/sql"
	"fmt"
)

// Queryer is the common surface of *sql.DB and *sql.Tx the executor
// needs.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type txKey struct{}

// WithTx injects a transaction into the context so nested operations
// detect and reuse it.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Current extracts the ambient transaction, if any.
func Current(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// InTransaction reports whether the context already carries a
// transaction.
func InTransaction(ctx context.Context) bool {
	_, ok := Current(ctx)
	return ok
}

// Run executes fn inside a transaction. When the context already holds
// one, fn runs against it directly and commit/rollback stay with the
// outer owner; the isolation level is only applied when Run itself opens
// the transaction.
func Run(ctx context.Context, db *sql.DB, isolation sql.IsolationLevel, fn func(ctx context.Context) error) error {
	if InTransaction(ctx) {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
