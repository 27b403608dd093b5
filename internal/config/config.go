// Package config loads phishguard configuration from an optional config.yaml
// and PHISHGUARD_* environment variables, and installs the global logger.
package config

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envPrefix = "PHISHGUARD"

var storeDrivers = []string{"memory", "sqlite", "postgres", "redis"}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Store      StoreConfig      `mapstructure:"store"`
	Redis      RedisConfig      `mapstructure:"redis"`
	VirusTotal VirusTotalConfig `mapstructure:"virustotal"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Scan       ScanConfig       `mapstructure:"scan"`
	Guard      GuardConfig      `mapstructure:"guard"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
	Settings   SettingsConfig   `mapstructure:"settings"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects the cache/settings backend. DSN is a file path for
// sqlite and a connection URL for postgres; redis uses RedisConfig.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type VirusTotalConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	PollAttempts      int           `mapstructure:"poll_attempts"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type ClassifierConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	UserID  string        `mapstructure:"user_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ScanConfig struct {
	BatchLimit   int           `mapstructure:"batch_limit"`
	Workers      int           `mapstructure:"workers"`
	Throttle     time.Duration `mapstructure:"throttle"`
	ReasonsLimit int           `mapstructure:"reasons_limit"`
}

type GuardConfig struct {
	WarningPage string `mapstructure:"warning_page"`
}

type DashboardConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// SettingsConfig seeds the persisted settings record on first use.
type SettingsConfig struct {
	BlockedDomains     []string `mapstructure:"blocked_domains"`
	ShowBannerWarnings bool     `mapstructure:"show_banner_warnings"`
}

func newViper(path string) *viper.Viper {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "pg:")
	v.SetDefault("virustotal.base_url", "https://www.virustotal.com/api/v3")
	v.SetDefault("virustotal.api_key", "")
	v.SetDefault("virustotal.poll_attempts", 6)
	v.SetDefault("virustotal.poll_interval", time.Second)
	v.SetDefault("virustotal.requests_per_minute", 0)
	v.SetDefault("virustotal.timeout", 30*time.Second)
	v.SetDefault("classifier.base_url", "http://127.0.0.1:8000")
	v.SetDefault("classifier.api_key", "")
	v.SetDefault("classifier.user_id", "chrome-extension")
	v.SetDefault("classifier.timeout", 10*time.Second)
	v.SetDefault("scan.batch_limit", 50)
	v.SetDefault("scan.workers", 5)
	v.SetDefault("scan.throttle", 150*time.Millisecond)
	v.SetDefault("scan.reasons_limit", 3)
	v.SetDefault("guard.warning_page", "warning.html")
	v.SetDefault("dashboard.base_url", "http://localhost:3000/scan")
	v.SetDefault("settings.blocked_domains", []string{"bad-phish.example"})
	v.SetDefault("settings.show_banner_warnings", true)

	return v
}

// Load reads configuration from file and environment. An empty path looks
// for ./config.yaml, which is optional; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be defaulted away.
func (c *Config) Validate() error {
	if !slices.Contains(storeDrivers, c.Store.Driver) {
		return eris.Errorf("config: unknown store.driver %q (want one of %s)", c.Store.Driver, strings.Join(storeDrivers, ", "))
	}
	if (c.Store.Driver == "sqlite" || c.Store.Driver == "postgres") && c.Store.DSN == "" {
		return eris.Errorf("config: store.dsn is required for %s", c.Store.Driver)
	}
	if c.Scan.BatchLimit < 0 || c.Scan.Workers < 0 || c.Scan.ReasonsLimit < 0 {
		return eris.New("config: scan limits must not be negative")
	}
	return nil
}

// Watch re-reads the config file whenever it changes and hands the new
// configuration to onChange. Invalid edits are logged and skipped. Watch is
// a no-op when no config file is in use.
func Watch(path string, onChange func(*Config)) error {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			return nil
		}
		return eris.Wrap(err, "config: read file")
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			zap.L().Warn("config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		zap.L().Info("config reloaded", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
