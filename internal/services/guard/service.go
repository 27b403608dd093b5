// Package guard reacts to tab navigations: it redirects to the warning page
// straight from the verdict cache and refreshes the cache with a background
// scan, redirecting again if that scan turns out malicious.
package guard

import (
	"context"
	"net/url"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"phishguard/internal/domain"
	"phishguard/internal/metrics"
	"phishguard/internal/ports"
	"phishguard/internal/services/scanner"
)

const defaultWarningPage = "warning.html"

var webURL = regexp.MustCompile(`(?i)^https?://`)

// Outcome is the guard's immediate decision for one navigation.
type Outcome string

const (
	OutcomeIgnored    Outcome = "ignored"
	OutcomeAllowed    Outcome = "allowed"
	OutcomeRedirected Outcome = "redirected"
)

type Service struct {
	verdicts    ports.Verdicts
	scanner     ports.Scanner
	redirector  ports.Redirector
	warningPage string

	rescans sync.WaitGroup
}

func New(verdicts ports.Verdicts, scanner ports.Scanner, redirector ports.Redirector, warningPage string) *Service {
	if warningPage == "" {
		warningPage = defaultWarningPage
	}
	return &Service{
		verdicts:    verdicts,
		scanner:     scanner,
		redirector:  redirector,
		warningPage: warningPage,
	}
}

// WarningURL is the warning page address carrying target as its url parameter.
func (s *Service) WarningURL(target string) string {
	return s.warningPage + "?url=" + url.QueryEscape(target)
}

// HandleNavigation decides from the cache, then starts a background rescan.
// The rescan outlives ctx; use Wait to join it.
func (s *Service) HandleNavigation(ctx context.Context, ev domain.NavigationEvent) Outcome {
	if ev.URL == "" && ev.Status != "loading" {
		return OutcomeIgnored
	}
	target := ev.URL
	if target == "" {
		target = ev.TabURL
	}
	// read the cache under the key the scanner writes
	target, err := scanner.ParseURL(target)
	if err != nil || !webURL.MatchString(target) {
		return OutcomeIgnored
	}

	outcome := OutcomeAllowed
	if s.verdicts.Get(ctx, target).Verdict == domain.VerdictMalicious {
		s.redirect(ctx, ev.Tab, target, "cache")
		outcome = OutcomeRedirected
	}

	bg := context.WithoutCancel(ctx)
	s.rescans.Add(1)
	go func() {
		defer s.rescans.Done()
		s.rescan(bg, ev.Tab, target)
	}()
	return outcome
}

func (s *Service) rescan(ctx context.Context, tab domain.Tab, target string) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("navigation rescan panicked", zap.String("url", target), zap.Any("panic", r))
		}
	}()
	res, err := s.scanner.Scan(ctx, target)
	if err != nil {
		zap.L().Debug("navigation rescan skipped", zap.String("url", target), zap.Error(err))
		return
	}
	if res.Verdict == domain.VerdictMalicious {
		s.redirect(ctx, tab, target, "scan")
	}
}

// redirect is best-effort: failures are logged and not retried.
func (s *Service) redirect(ctx context.Context, tab domain.Tab, target, trigger string) {
	metrics.Redirects.WithLabelValues(trigger).Inc()
	if err := s.redirector.Redirect(ctx, tab, s.WarningURL(target)); err != nil {
		zap.L().Warn("warning redirect failed",
			zap.String("url", target),
			zap.String("trigger", trigger),
			zap.Int("tab_id", tab.ID),
			zap.Error(err),
		)
	}
}

// Wait blocks until every background rescan started so far has finished.
func (s *Service) Wait() {
	s.rescans.Wait()
}
