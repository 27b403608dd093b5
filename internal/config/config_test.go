package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "pg:", cfg.Redis.Prefix)
	assert.Equal(t, 6, cfg.VirusTotal.PollAttempts)
	assert.Equal(t, time.Second, cfg.VirusTotal.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.VirusTotal.Timeout)
	assert.Equal(t, "chrome-extension", cfg.Classifier.UserID)
	assert.Equal(t, 50, cfg.Scan.BatchLimit)
	assert.Equal(t, 5, cfg.Scan.Workers)
	assert.Equal(t, 150*time.Millisecond, cfg.Scan.Throttle)
	assert.Equal(t, 3, cfg.Scan.ReasonsLimit)
	assert.Equal(t, "warning.html", cfg.Guard.WarningPage)
	assert.Equal(t, []string{"bad-phish.example"}, cfg.Settings.BlockedDomains)
	assert.True(t, cfg.Settings.ShowBannerWarnings)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  dsn: cache.db
log:
  level: debug
  format: console
scan:
  throttle: 50ms
virustotal:
  api_key: vt-key
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "cache.db", cfg.Store.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 50*time.Millisecond, cfg.Scan.Throttle)
	assert.Equal(t, "vt-key", cfg.VirusTotal.APIKey)
	// Defaults still apply for unset values
	assert.Equal(t, 5, cfg.Scan.Workers)
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "phishguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9999\"\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0644))
	t.Setenv("PHISHGUARD_LOG_LEVEL", "warn")
	t.Setenv("PHISHGUARD_SCAN_WORKERS", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Scan.Workers)
}

func TestValidate(t *testing.T) {
	chdirTemp(t)

	t.Setenv("PHISHGUARD_STORE_DRIVER", "mongo")
	_, err := Load("")
	assert.ErrorContains(t, err, "unknown store.driver")

	t.Setenv("PHISHGUARD_STORE_DRIVER", "postgres")
	_, err = Load("")
	assert.ErrorContains(t, err, "store.dsn is required")

	t.Setenv("PHISHGUARD_STORE_DSN", "postgres://localhost/phishguard")
	_, err = Load("")
	assert.NoError(t, err)
}

func TestWatch_NoFileIsNoop(t *testing.T) {
	chdirTemp(t)
	assert.NoError(t, Watch("", func(*Config) { t.Fatal("unexpected reload") }))
}

func TestWatch_Reloads(t *testing.T) {
	zap.ReplaceGlobals(zap.NewNop())
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("virustotal:\n  api_key: old\n"), 0644))

	var key atomic.Value
	require.NoError(t, Watch(path, func(cfg *Config) { key.Store(cfg.VirusTotal.APIKey) }))

	require.NoError(t, os.WriteFile(path, []byte("virustotal:\n  api_key: new\n"), 0644))
	assert.Eventually(t, func() bool {
		v, _ := key.Load().(string)
		return v == "new"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
	zap.ReplaceGlobals(zap.NewNop())
}
