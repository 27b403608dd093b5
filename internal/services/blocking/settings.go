package blocking

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"phishguard/internal/domain"
	"phishguard/internal/ports"
)

const settingsKey = "settings"

// storedSettings uses pointers so absent fields can be told apart from
// false/empty ones when the record is first initialised.
type storedSettings struct {
	BlockedDomains     *[]string          `json:"blockedDomains,omitempty"`
	ShowBannerWarnings *bool              `json:"showBannerWarnings,omitempty"`
	Credentials        domain.Credentials `json:"credentials"`
}

// Settings returns the settings record, filling and persisting the defaults
// for any field that was never set.
func (s *Service) Settings(ctx context.Context) domain.Settings {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	var st storedSettings
	raw, found, err := s.store.Get(ctx, ports.BucketSettings, settingsKey)
	if err != nil {
		zap.L().Warn("settings read failed", zap.Error(err))
	} else if found {
		if err := json.Unmarshal(raw, &st); err != nil {
			zap.L().Warn("settings record unreadable", zap.Error(err))
			st = storedSettings{}
		}
	}

	changed := false
	if st.BlockedDomains == nil {
		domains := append([]string{}, s.defaults.BlockedDomains...)
		st.BlockedDomains = &domains
		changed = true
	}
	if st.ShowBannerWarnings == nil {
		show := s.defaults.ShowBannerWarnings
		st.ShowBannerWarnings = &show
		changed = true
	}
	if changed && err == nil {
		if err := s.putSettings(ctx, st); err != nil {
			zap.L().Warn("settings init failed", zap.Error(err))
		}
	}

	return domain.Settings{
		BlockedDomains:     *st.BlockedDomains,
		ShowBannerWarnings: *st.ShowBannerWarnings,
		Credentials:        st.Credentials,
	}
}

// SaveSettings replaces the settings record.
func (s *Service) SaveSettings(ctx context.Context, settings domain.Settings) error {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	domains := settings.BlockedDomains
	if domains == nil {
		domains = []string{}
	}
	show := settings.ShowBannerWarnings
	return s.putSettings(ctx, storedSettings{
		BlockedDomains:     &domains,
		ShowBannerWarnings: &show,
		Credentials:        settings.Credentials,
	})
}

func (s *Service) putSettings(ctx context.Context, st storedSettings) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return eris.Wrap(err, "blocking: encode settings")
	}
	return eris.Wrap(s.store.Put(ctx, ports.BucketSettings, settingsKey, raw), "blocking: save settings")
}

// Credentials returns the provider keys from the settings record, falling
// back per key to the configured ones.
func (s *Service) Credentials(ctx context.Context) domain.Credentials {
	creds := s.Settings(ctx).Credentials

	s.settingsMu.Lock()
	fallback := s.defaults.Credentials
	s.settingsMu.Unlock()

	if creds.VirusTotalAPIKey == "" {
		creds.VirusTotalAPIKey = fallback.VirusTotalAPIKey
	}
	if creds.LocalAPIKey == "" {
		creds.LocalAPIKey = fallback.LocalAPIKey
	}
	return creds
}

// SetFallbackCredentials swaps the configured keys, e.g. after a config reload.
func (s *Service) SetFallbackCredentials(creds domain.Credentials) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	s.defaults.Credentials = creds
}

// ShowBanner reports whether the in-page banner should warn on host: the
// banner toggle is on and host is a blocked domain or one of its subdomains.
func (s *Service) ShowBanner(ctx context.Context, host string) bool {
	settings := s.Settings(ctx)
	if !settings.ShowBannerWarnings || host == "" {
		return false
	}
	return MatchesAny(host, settings.BlockedDomains)
}

// MatchesAny reports whether host equals one of domains or is a subdomain of it.
func MatchesAny(host string, domains []string) bool {
	host = strings.ToLower(host)
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		g, err := glob.Compile("{"+glob.QuoteMeta(d)+",**."+glob.QuoteMeta(d)+"}", '.')
		if err != nil {
			zap.L().Debug("blocked domain pattern rejected", zap.String("domain", d), zap.Error(err))
			continue
		}
		if g.Match(host) {
			return true
		}
	}
	return false
}
