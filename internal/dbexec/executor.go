// Package dbexec executes compiled queries against database/sql and
// scans results into field-name keyed entity rows. Every driver failure
// is wrapped in ormerr.DBQueryError carrying the SQL and parameters.
package dbexec

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"ormcore/internal/dialect"
	"ormcore/internal/ormerr"
	"ormcore/internal/txn"
)

// Result is the uniform outcome of one statement.
type Result struct {
	Rows        []map[string]any
	NumAffected int64
	InsertID    int64
	HasInsertID bool
}

// Executor runs statements against a handle, preferring the ambient
// transaction from context when one is present.
type Executor struct {
	db  *sql.DB
	log *slog.Logger
}

// New creates an executor. logger may be nil.
func New(db *sql.DB, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{db: db, log: logger}
}

// DB exposes the underlying handle for transaction opening.
func (e *Executor) DB() *sql.DB {
	return e.db
}

func (e *Executor) queryer(ctx context.Context) txn.Queryer {
	if tx, ok := txn.Current(ctx); ok {
		return tx
	}
	return e.db
}

// Query runs a row-returning statement and scans all rows.
func (e *Executor) Query(ctx context.Context, q dialect.SQLQuery) (Result, error) {
	start := time.Now()
	rows, err := e.queryer(ctx).QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return Result{}, wrapDBError(q, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	scanned, err := scanRows(rows)
	if err != nil {
		return Result{}, wrapDBError(q, err)
	}
	e.log.DebugContext(ctx, "query executed",
		slog.String("sql", q.SQL),
		slog.Int("rows", len(scanned)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return Result{Rows: scanned, NumAffected: int64(len(scanned))}, nil
}

// Exec runs a non-row-returning statement.
func (e *Executor) Exec(ctx context.Context, q dialect.SQLQuery) (Result, error) {
	start := time.Now()
	res, err := e.queryer(ctx).ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return Result{}, wrapDBError(q, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Result{}, wrapDBError(q, err)
	}
	out := Result{NumAffected: affected}
	// LastInsertId is only meaningful on backends with auto-increment
	// key reporting; drivers without it return an error we ignore.
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		out.InsertID = id
		out.HasInsertID = true
	}
	e.log.DebugContext(ctx, "statement executed",
		slog.String("sql", q.SQL),
		slog.Int64("affected", affected),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

func wrapDBError(q dialect.SQLQuery, err error) error {
	return &ormerr.DBQueryError{
		SQL:        q.SQL,
		Args:       q.Args,
		Constraint: dialect.Classify(err),
		Err:        err,
	}
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			// Text-protocol drivers hand back []byte for most columns.
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
