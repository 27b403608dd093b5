// Package postgres is a ports.Store on a pgx connection pool.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rotisserie/eris"

	"phishguard/internal/migrations"
)

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type DB struct {
	Pool Pool

	// raw is set when the pool was opened by Connect; migrations need it.
	raw *pgxpool.Pool
}

func Connect(ctx context.Context, url string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &DB{Pool: pool, raw: pool}, nil
}

// New wraps an existing pool, e.g. a pgxmock pool in tests.
func New(pool Pool) *DB {
	return &DB{Pool: pool}
}

func (db *DB) Close() error {
	db.Pool.Close()
	return nil
}

// Migrate applies the embedded schema through a database/sql view of the pool.
func (db *DB) Migrate(ctx context.Context) (int64, error) {
	if db.raw == nil {
		return 0, eris.New("postgres: migrate needs a pool opened by Connect")
	}
	sqlDB := stdlib.OpenDBFromPool(db.raw)
	defer sqlDB.Close()
	return migrations.Up(ctx, goose.DialectPostgres, sqlDB)
}
