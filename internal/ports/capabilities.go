package ports

import (
	"context"

	"phishguard/internal/domain"
)

// Side-effecting browser actions. Callers log and ignore their errors: they
// are fire-and-forget UX actions, not correctness-critical.

// Redirector points a tab at another URL.
type Redirector interface {
	Redirect(ctx context.Context, tab domain.Tab, target string) error
}

// TabOpener opens a new tab.
type TabOpener interface {
	OpenTab(ctx context.Context, client string, target string) error
}

// Notifier shows a desktop notification.
type Notifier interface {
	Notify(ctx context.Context, client string, n domain.Notification) error
}

// RuleInstaller pushes a block rule to the browser's network layer.
type RuleInstaller interface {
	InstallRule(ctx context.Context, rule domain.BlockRule) error
}
