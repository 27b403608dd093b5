package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func TestUp_Idempotent(t *testing.T) {
	zap.ReplaceGlobals(zap.NewNop())
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	version, err := Up(ctx, goose.DialectSQLite3, db)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)

	version, err = Up(ctx, goose.DialectSQLite3, db)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)

	_, err = db.ExecContext(ctx, `INSERT INTO kv (bucket, key, value) VALUES ('settings', 'settings', '{}')`)
	assert.NoError(t, err)
}
