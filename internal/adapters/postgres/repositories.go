package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

func (db *DB) Get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	var value string
	err := db.Pool.QueryRow(ctx,
		`SELECT value FROM kv WHERE bucket = $1 AND key = $2`, bucket, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "postgres: get %s/%s", bucket, key)
	}
	return []byte(value), true, nil
}

func (db *DB) Put(ctx context.Context, bucket, key string, value []byte) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO kv (bucket, key, value, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (bucket, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, bucket, key, string(value))
	return eris.Wrapf(err, "postgres: put %s/%s", bucket, key)
}

func (db *DB) List(ctx context.Context, bucket string) (map[string][]byte, error) {
	rows, err := db.Pool.Query(ctx, `SELECT key, value FROM kv WHERE bucket = $1`, bucket)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s", bucket)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, eris.Wrap(err, "postgres: scan row")
		}
		out[k] = []byte(v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate rows")
}
