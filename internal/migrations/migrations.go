// Package migrations embeds the schema shared by the SQL store drivers and
// applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var embedded embed.FS

// Up applies every pending migration and returns the resulting version.
func Up(ctx context.Context, dialect goose.Dialect, db *sql.DB) (int64, error) {
	fsys, err := fs.Sub(embedded, "sql")
	if err != nil {
		return 0, eris.Wrap(err, "migrations: sub fs")
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return 0, eris.Wrap(err, "migrations: new provider")
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "migrations: up")
	}
	for _, r := range results {
		zap.L().Info("migration applied",
			zap.Int64("version", r.Source.Version),
			zap.Duration("duration", r.Duration),
		)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "migrations: version")
	}
	return version, nil
}
