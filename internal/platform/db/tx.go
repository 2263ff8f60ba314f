package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	DBTxKey  contextKey = "db_tx"
	SQLTxKey contextKey = "sql_tx"
)

// Transactor runs fn inside a single storage transaction. Repositories pick
// the transaction up from the context passed to fn. Nested calls join the
// outer transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TxFromContext retrieves the pgx transaction from context.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// SQLTxFromContext retrieves the database/sql transaction from context.
func SQLTxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(SQLTxKey).(*sql.Tx)
	return tx
}

// PGTransactor opens serializable transactions on a pgx pool so that the
// check-then-insert sequences of identity reconciliation cannot interleave.
type PGTransactor struct {
	pool *pgxpool.Pool
}

func NewPGTransactor(pool *pgxpool.Pool) *PGTransactor {
	return &PGTransactor{pool: pool}
}

func (t *PGTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(context.WithValue(ctx, DBTxKey, tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return MapError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// SQLTransactor is the database/sql counterpart used with the SQLite store.
type SQLTransactor struct {
	db *sql.DB
}

func NewSQLTransactor(db *sql.DB) *SQLTransactor {
	return &SQLTransactor{db: db}
}

func (t *SQLTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if SQLTxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, SQLTxKey, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return MapError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// SQLQuerier is the subset of *sql.DB and *sql.Tx the SQLite repositories use.
type SQLQuerier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLConn returns the transaction carried by ctx, or sqlDB when there is none.
func SQLConn(ctx context.Context, sqlDB *sql.DB) SQLQuerier {
	if tx := SQLTxFromContext(ctx); tx != nil {
		return tx
	}
	return sqlDB
}
