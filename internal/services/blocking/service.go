// Package blocking owns the settings record, blocked-domain matching and the
// network-level block rules pushed to the browser.
package blocking

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"phishguard/internal/domain"
	"phishguard/internal/ports"
)

// ErrInvalidDomain is returned when a block rule names something that is not
// a registrable host name.
var ErrInvalidDomain = eris.New("invalid domain")

const (
	maxRuleID    = 1_000_000_000
	rulePriority = 1
	ruleAction   = "block"
)

// Defaults seed the settings record and back the provider credentials.
type Defaults struct {
	BlockedDomains     []string
	ShowBannerWarnings bool
	Credentials        domain.Credentials
}

type Service struct {
	store     ports.Store
	installer ports.RuleInstaller
	clock     clockwork.Clock

	settingsMu sync.Mutex
	defaults   Defaults

	rulesMu sync.Mutex
	nextID  func() int
}

func New(store ports.Store, installer ports.RuleInstaller, clock clockwork.Clock, defaults Defaults) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store:     store,
		installer: installer,
		clock:     clock,
		defaults:  defaults,
		nextID:    func() int { return rand.IntN(maxRuleID) + 1 },
	}
}

// NormalizeDomain lower-cases raw, converts it to its ASCII form and checks
// that it sits below a public suffix.
func NormalizeDomain(raw string) (string, error) {
	d := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), ".")
	if d == "" {
		return "", eris.Wrap(ErrInvalidDomain, "empty domain")
	}
	ascii, err := idna.Lookup.ToASCII(d)
	if err != nil {
		return "", eris.Wrapf(ErrInvalidDomain, "%q: %v", raw, err)
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(ascii); err != nil {
		return "", eris.Wrapf(ErrInvalidDomain, "%q: %v", raw, err)
	}
	return ascii, nil
}

// AddBlockRule persists a block rule for rawDomain and pushes it to connected
// browsers. Delivery is best-effort: clients that miss it pick the rule up
// from the rules listing.
func (s *Service) AddBlockRule(ctx context.Context, rawDomain string) (domain.BlockRule, error) {
	d, err := NormalizeDomain(rawDomain)
	if err != nil {
		return domain.BlockRule{}, err
	}

	s.rulesMu.Lock()
	existing, err := s.store.List(ctx, ports.BucketBlockRules)
	if err != nil {
		s.rulesMu.Unlock()
		return domain.BlockRule{}, eris.Wrap(err, "blocking: list rules")
	}
	id := s.nextID()
	for existing[strconv.Itoa(id)] != nil {
		id = s.nextID()
	}
	rule := domain.BlockRule{
		ID:        id,
		Priority:  rulePriority,
		Domain:    d,
		Action:    ruleAction,
		Scope:     []domain.ResourceScope{domain.ScopeMainFrame, domain.ScopeSubFrame},
		CreatedAt: s.clock.Now().UTC(),
	}
	raw, err := json.Marshal(rule)
	if err == nil {
		err = s.store.Put(ctx, ports.BucketBlockRules, strconv.Itoa(id), raw)
	}
	s.rulesMu.Unlock()
	if err != nil {
		return domain.BlockRule{}, eris.Wrap(err, "blocking: save rule")
	}

	if err := s.installer.InstallRule(ctx, rule); err != nil {
		zap.L().Warn("block rule broadcast failed", zap.Int("rule_id", id), zap.String("domain", d), zap.Error(err))
	}
	zap.L().Info("block rule added", zap.Int("rule_id", id), zap.String("domain", d))
	return rule, nil
}

// Rules lists the installed block rules ordered by id.
func (s *Service) Rules(ctx context.Context) ([]domain.BlockRule, error) {
	all, err := s.store.List(ctx, ports.BucketBlockRules)
	if err != nil {
		return nil, eris.Wrap(err, "blocking: list rules")
	}
	rules := make([]domain.BlockRule, 0, len(all))
	for key, raw := range all {
		var r domain.BlockRule
		if err := json.Unmarshal(raw, &r); err != nil {
			zap.L().Warn("block rule unreadable", zap.String("key", key), zap.Error(err))
			continue
		}
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}
