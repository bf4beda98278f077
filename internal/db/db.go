// Package db provides the transactional executor boundary the sync core
// runs against. Everything above this package sees only Executor and
// Transact; the Postgres connection, commit/rollback discipline, and
// driver registration live here.
package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

const (
	connectTimeout = 5 * time.Second

	defaultMaxOpenConns = 16
	defaultMaxIdleConns = 4
)

// Executor runs one parameterized statement. Both *sql.DB and *sql.Tx
// satisfy it; the sync core only ever receives the transaction-bound form.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a Postgres connection pool.
type DB struct {
	sql *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres")
	}
	conn.SetMaxOpenConns(defaultMaxOpenConns)
	conn.SetMaxIdleConns(defaultMaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "pinging postgres")
	}
	return &DB{sql: conn}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Transact runs fn with an executor bound to a single transaction,
// committing when fn returns nil and rolling back on any error.
func (d *DB) Transact(ctx context.Context, fn func(Executor) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	committed = true
	return nil
}

// Transactor is the capability the sync core depends on. *DB is the
// production implementation.
type Transactor interface {
	Transact(ctx context.Context, fn func(Executor) error) error
}
