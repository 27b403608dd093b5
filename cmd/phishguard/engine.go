package main

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"phishguard/internal/adapters/classifier"
	"phishguard/internal/adapters/memory"
	"phishguard/internal/adapters/postgres"
	"phishguard/internal/adapters/redis"
	"phishguard/internal/adapters/sqlite"
	"phishguard/internal/adapters/virustotal"
	"phishguard/internal/config"
	"phishguard/internal/domain"
	"phishguard/internal/poll"
	"phishguard/internal/ports"
	"phishguard/internal/services/blocking"
	"phishguard/internal/services/dispatch"
	"phishguard/internal/services/reconcile"
	"phishguard/internal/services/scanner"
	"phishguard/internal/services/verdicts"
)

type migrator interface {
	Migrate(ctx context.Context) (int64, error)
}

// openStore opens the configured backend and brings SQL schemas up to date.
func openStore(ctx context.Context, c *config.Config) (ports.Store, error) {
	var (
		store ports.Store
		err   error
	)
	switch c.Store.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		store, err = sqlite.Open(c.Store.DSN)
	case "postgres":
		store, err = postgres.Connect(ctx, c.Store.DSN)
	case "redis":
		return redis.Connect(ctx, redis.Config{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Prefix:   c.Redis.Prefix,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if m, ok := store.(migrator); ok {
		version, err := m.Migrate(ctx)
		if err != nil {
			store.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		zap.L().Debug("store schema ready", zap.String("driver", c.Store.Driver), zap.Int64("version", version))
	}
	return store, nil
}

// engine holds the services shared by the server and the one-shot commands.
type engine struct {
	store      ports.Store
	verdicts   *verdicts.Service
	blocking   *blocking.Service
	scanner    *scanner.Service
	reconciler *reconcile.Service
}

func newEngine(store ports.Store, c *config.Config, installer ports.RuleInstaller) *engine {
	vt := virustotal.New(virustotal.Config{
		BaseURL: c.VirusTotal.BaseURL,
		Timeout: c.VirusTotal.Timeout,
		Poll: poll.Policy{
			MaxAttempts: c.VirusTotal.PollAttempts,
			Interval:    c.VirusTotal.PollInterval,
		},
		RequestsPerMinute: c.VirusTotal.RequestsPerMinute,
	})
	local := classifier.New(classifier.Config{
		BaseURL: c.Classifier.BaseURL,
		UserID:  c.Classifier.UserID,
		Timeout: c.Classifier.Timeout,
	})

	vs := verdicts.New(store, nil)
	bs := blocking.New(store, installer, nil, blocking.Defaults{
		BlockedDomains:     c.Settings.BlockedDomains,
		ShowBannerWarnings: c.Settings.ShowBannerWarnings,
		Credentials:        credentialsFrom(c),
	})
	return &engine{
		store:    store,
		verdicts: vs,
		blocking: bs,
		scanner: scanner.New(vt, local, bs, vs, nil, scanner.Options{
			BatchLimit:   c.Scan.BatchLimit,
			Workers:      c.Scan.Workers,
			Throttle:     c.Scan.Throttle,
			ReasonsLimit: c.Scan.ReasonsLimit,
		}),
		reconciler: reconcile.New(vt, local, bs, nil),
	}
}

func credentialsFrom(c *config.Config) domain.Credentials {
	return domain.Credentials{
		VirusTotalAPIKey: c.VirusTotal.APIKey,
		LocalAPIKey:      c.Classifier.APIKey,
	}
}

// loggingInstaller stands in for a browser when no extension is connected;
// rules stay persisted and are served from /api/rules.
type loggingInstaller struct{}

func (loggingInstaller) InstallRule(_ context.Context, rule domain.BlockRule) error {
	zap.L().Info("block rule stored", zap.Int("id", rule.ID), zap.String("domain", rule.Domain))
	return nil
}

// handleMessage decodes an extension frame and dispatches it on behalf of
// the sending client. A non-zero tabId marks the message as tab-originated.
func handleMessage(ctx context.Context, d *dispatch.Service, client string, raw json.RawMessage) (any, error) {
	var msg dispatch.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, eris.Wrap(err, "decode message")
	}
	from := dispatch.Sender{Client: client}
	if msg.TabID != 0 {
		from.Tab = &domain.Tab{Client: client, ID: msg.TabID}
	}
	return d.Handle(ctx, from, msg)
}
