// Package dispatch answers the messages the extension UI sends: scans,
// block rules, dashboard links, warning redirects, navigation events and
// notification callbacks.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"phishguard/internal/domain"
	"phishguard/internal/ports"
	"phishguard/internal/services/guard"
	"phishguard/internal/services/links"
	"phishguard/internal/services/scanner"
)

// ErrUnknownMessage is returned for a message type nobody handles.
var ErrUnknownMessage = eris.New("unknown message type")

const (
	TypeScanURL             = "SCAN_URL"
	TypeScanPageLinks       = "SCAN_PAGE_LINKS"
	TypeScanPageHTML        = "SCAN_PAGE_HTML"
	TypeAddBlockRule        = "ADD_BLOCK_RULE"
	TypeOpenDashboard       = "OPEN_DASHBOARD"
	TypeRedirectWarning     = "REDIRECT_WARNING"
	TypeNavigation          = "NAVIGATION"
	TypeRuleMatched         = "RULE_MATCHED"
	TypeNotificationClicked = "NOTIFICATION_CLICKED"
)

const notificationPrefix = "phish-"

// Message is the union of every request shape; Type selects the fields used.
type Message struct {
	Type   string          `json:"type"`
	URL    string          `json:"url,omitempty"`
	URLs   []string        `json:"urls,omitempty"`
	Domain string          `json:"domain,omitempty"`
	HTML   string          `json:"html,omitempty"`
	VT     *domain.Finding `json:"vt,omitempty"`
	Local  *domain.Finding `json:"local,omitempty"`

	// NAVIGATION
	TabID  int    `json:"tabId,omitempty"`
	Status string `json:"status,omitempty"`
	TabURL string `json:"tabUrl,omitempty"`

	// RULE_MATCHED / NOTIFICATION_CLICKED
	RuleID  int    `json:"ruleId,omitempty"`
	Request string `json:"requestType,omitempty"`
	ID      string `json:"id,omitempty"`
}

// Sender identifies where a message came from. Tab is nil for messages that
// did not originate in a page.
type Sender struct {
	Client string
	Tab    *domain.Tab
}

// ScanError is the SCAN_URL answer for input that cannot be scanned.
type ScanError struct {
	Error string `json:"error"`
}

type UnsafeLinks struct {
	Unsafe []string `json:"unsafe"`
}

type NavigationResult struct {
	Outcome guard.Outcome `json:"outcome"`
}

// Navigator is the part of the navigation guard the dispatcher drives.
type Navigator interface {
	HandleNavigation(ctx context.Context, ev domain.NavigationEvent) guard.Outcome
	WarningURL(target string) string
}

// Blocker installs block rules.
type Blocker interface {
	AddBlockRule(ctx context.Context, rawDomain string) (domain.BlockRule, error)
}

type Deps struct {
	Scanner    ports.Scanner
	Verdicts   ports.Verdicts
	Navigator  Navigator
	Blocker    Blocker
	Redirector ports.Redirector
	Tabs       ports.TabOpener
	Notifier   ports.Notifier

	DashboardURL string
	LinkLimit    int
}

type Service struct {
	deps Deps

	mu            sync.Mutex
	notifications map[string]string
}

func New(deps Deps) *Service {
	return &Service{deps: deps, notifications: make(map[string]string)}
}

// Handle answers one message. The returned value is JSON-encoded as the
// response; only ErrUnknownMessage is returned as an error.
func (s *Service) Handle(ctx context.Context, from Sender, msg Message) (any, error) {
	switch msg.Type {
	case TypeScanURL:
		res, err := s.deps.Scanner.Scan(ctx, msg.URL)
		if errors.Is(err, scanner.ErrInvalidURL) {
			return ScanError{Error: "Invalid URL"}, nil
		}
		if err != nil {
			return ScanError{Error: err.Error()}, nil
		}
		return res, nil

	case TypeScanPageLinks:
		return UnsafeLinks{Unsafe: s.deps.Scanner.ScanBatch(ctx, msg.URLs)}, nil

	case TypeScanPageHTML:
		urls, err := links.Extract(msg.URL, msg.HTML, s.deps.LinkLimit)
		if err != nil {
			zap.L().Warn("page link extraction failed", zap.String("url", msg.URL), zap.Error(err))
			return UnsafeLinks{Unsafe: []string{}}, nil
		}
		return UnsafeLinks{Unsafe: s.deps.Scanner.ScanBatch(ctx, urls)}, nil

	case TypeAddBlockRule:
		if msg.Domain == "" {
			return false, nil
		}
		if _, err := s.deps.Blocker.AddBlockRule(ctx, msg.Domain); err != nil {
			zap.L().Warn("add block rule failed", zap.String("domain", msg.Domain), zap.Error(err))
			return false, nil
		}
		return true, nil

	case TypeOpenDashboard:
		s.openTab(ctx, from.Client, DashboardURL(s.deps.DashboardURL, msg.URL, msg.VT, msg.Local))
		return true, nil

	case TypeRedirectWarning:
		if from.Tab == nil {
			return false, nil
		}
		if err := s.deps.Redirector.Redirect(ctx, *from.Tab, s.deps.Navigator.WarningURL(msg.URL)); err != nil {
			zap.L().Warn("warning redirect failed", zap.String("url", msg.URL), zap.Error(err))
		}
		return true, nil

	case TypeNavigation:
		tab := domain.Tab{Client: from.Client, ID: msg.TabID}
		out := s.deps.Navigator.HandleNavigation(ctx, domain.NavigationEvent{
			Tab:    tab,
			URL:    msg.URL,
			Status: msg.Status,
			TabURL: msg.TabURL,
		})
		return NavigationResult{Outcome: out}, nil

	case TypeRuleMatched:
		s.notifyRuleMatched(ctx, from.Client, msg)
		return true, nil

	case TypeNotificationClicked:
		s.mu.Lock()
		target := s.notifications[msg.ID]
		s.mu.Unlock()
		s.openTab(ctx, from.Client, DashboardURL(s.deps.DashboardURL, target, nil, nil))
		return true, nil
	}
	return nil, eris.Wrapf(ErrUnknownMessage, "%q", msg.Type)
}

func (s *Service) openTab(ctx context.Context, client, target string) {
	if err := s.deps.Tabs.OpenTab(ctx, client, target); err != nil {
		zap.L().Warn("open tab failed", zap.String("target", target), zap.Error(err))
	}
}

// notifyRuleMatched tells the user a network rule fired, quoting the first
// cached reason for the URL when there is one.
func (s *Service) notifyRuleMatched(ctx context.Context, client string, msg Message) {
	host := msg.URL
	if u, err := url.Parse(msg.URL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	ruleID := "?"
	if msg.RuleID != 0 {
		ruleID = fmt.Sprint(msg.RuleID)
	}
	text := fmt.Sprintf("Rule %s matched on %s", ruleID, host)
	if e, ok := s.deps.Verdicts.GetReasons(ctx, msg.URL); ok && len(e.Reasons) > 0 {
		text += "\nReason: " + e.Reasons[0]
	}

	id := notificationPrefix + uuid.NewString()
	s.mu.Lock()
	s.notifications[id] = msg.URL
	s.mu.Unlock()

	n := domain.Notification{
		ID:       id,
		Title:    "Blocked suspicious request",
		Message:  text,
		Context:  msg.URL,
		Priority: 2,
	}
	if err := s.deps.Notifier.Notify(ctx, client, n); err != nil {
		zap.L().Warn("notification failed", zap.String("url", msg.URL), zap.Error(err))
	}
}
