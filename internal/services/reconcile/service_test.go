package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"phishguard/internal/domain"
	"phishguard/internal/ports"
)

type stubProvider struct {
	name    domain.Provider
	finding domain.Finding
	calls   int
}

func (p *stubProvider) Name() domain.Provider { return p.name }

func (p *stubProvider) Scan(context.Context, string, domain.Credentials) domain.Finding {
	p.calls++
	return p.finding
}

var noCreds = ports.CredentialsFunc(func(context.Context) domain.Credentials { return domain.Credentials{} })

var now = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newService(cloud, local *stubProvider) *Service {
	zap.ReplaceGlobals(zap.NewNop())
	return New(cloud, local, noCreds, clockwork.NewFakeClockAt(now))
}

func failing(name domain.Provider) *stubProvider {
	return &stubProvider{name: name, finding: domain.Failed(name, "down")}
}

func TestNormalizeLevel(t *testing.T) {
	tests := map[string]Level{
		"malicious":  LevelMalicious,
		"Phishing":   LevelMalicious,
		"suspicious": LevelSuspicious,
		"unknown":    LevelSuspicious,
		"greyware":   LevelSuspicious,
		"gray":       LevelSuspicious,
		"harmless":   LevelClean,
		"":           LevelClean,
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeLevel(in), in)
	}
}

func TestScan_MissingURL(t *testing.T) {
	s := newService(failing(domain.ProviderCloud), failing(domain.ProviderLocal))

	_, err := s.Scan(context.Background(), Request{URL: "   "})
	assert.ErrorIs(t, err, ErrMissingURL)
	assert.Equal(t, "Missing 'url' in request body", err.Error())
}

func TestScan_PayloadSkipsProviders(t *testing.T) {
	cloud, local := failing(domain.ProviderCloud), failing(domain.ProviderLocal)
	s := newService(cloud, local)

	res, err := s.Scan(context.Background(), Request{
		URL: " https://bad-phish.example/login ",
		VT: &domain.Finding{
			OK:         true,
			Verdict:    domain.VerdictMalicious,
			Stats:      &domain.Stats{Malicious: 5, Suspicious: 1},
			AnalysisID: "an-1",
		},
		Local: &domain.Finding{OK: true, Verdict: domain.VerdictMalicious, Evidence: []string{"lookalike"}},
	})
	require.NoError(t, err)

	assert.Zero(t, cloud.calls)
	assert.Zero(t, local.calls)
	assert.Equal(t, "https://bad-phish.example/login", res.URL)
	assert.Equal(t, LevelMalicious, res.OverallVerdict)
	assert.True(t, res.BlockRecommended)
	assert.Equal(t, now, res.ScannedAt)
	require.Len(t, res.Findings, 2)
	assert.Equal(t, Finding{
		Provider:  ProviderCloud,
		RiskScore: 94,
		Verdict:   LevelMalicious,
		Reasons:   []string{"Malicious: 5", "Suspicious: 1", "Harmless: 0", "Undetected: 0"},
		Meta:      map[string]any{"analysisId": "an-1"},
	}, res.Findings[0])
	assert.Equal(t, Finding{
		Provider:  ProviderLocal,
		RiskScore: 75,
		Verdict:   LevelMalicious,
		Reasons:   []string{"lookalike"},
		Meta:      map[string]any{},
	}, res.Findings[1])
}

func TestScan_PayloadLocalOnly(t *testing.T) {
	s := newService(failing(domain.ProviderCloud), failing(domain.ProviderLocal))

	res, err := s.Scan(context.Background(), Request{
		URL:   "https://example.com/",
		Local: &domain.Finding{OK: true, Verdict: domain.VerdictUnknown},
	})
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, LevelSuspicious, res.OverallVerdict)
	assert.Equal(t, 50, res.Findings[0].RiskScore)
	assert.True(t, res.BlockRecommended)
}

func TestScan_RealProviders(t *testing.T) {
	cloud := &stubProvider{name: domain.ProviderCloud, finding: domain.Finding{
		OK: true, Verdict: domain.VerdictHarmless, Stats: &domain.Stats{Harmless: 70, Undetected: 5},
	}}
	local := &stubProvider{name: domain.ProviderLocal, finding: domain.Finding{
		OK: true, Verdict: domain.VerdictHarmless, Label: "Benign", Evidence: []string{"Known brand"},
	}}
	s := newService(cloud, local)

	res, err := s.Scan(context.Background(), Request{URL: "https://example.com/"})
	require.NoError(t, err)

	assert.Equal(t, 1, cloud.calls)
	assert.Equal(t, 1, local.calls)
	assert.Equal(t, LevelClean, res.OverallVerdict)
	assert.False(t, res.BlockRecommended)
	assert.Equal(t, 0, res.Findings[0].RiskScore)
	assert.Equal(t, 5, res.Findings[1].RiskScore)
	assert.Equal(t, LevelClean, res.Findings[1].Verdict)
}

func TestScan_UnrecognisedLabelIsSuspicious(t *testing.T) {
	cloud := &stubProvider{name: domain.ProviderCloud, finding: domain.Finding{OK: true, Verdict: domain.VerdictHarmless, Stats: &domain.Stats{}}}
	local := &stubProvider{name: domain.ProviderLocal, finding: domain.Finding{OK: true, Verdict: domain.VerdictUnknown, Label: "uncertain"}}
	s := newService(cloud, local)

	res, err := s.Scan(context.Background(), Request{URL: "https://example.com/"})
	require.NoError(t, err)
	assert.Equal(t, LevelSuspicious, res.OverallVerdict)
	assert.Equal(t, ProviderLocal, res.Findings[1].Provider)
}

func TestScan_FallsBackToHeuristics(t *testing.T) {
	s := newService(failing(domain.ProviderCloud), failing(domain.ProviderLocal))

	res, err := s.Scan(context.Background(), Request{URL: "http://192.168.10.5/secure/login.exe?x=1"})
	require.NoError(t, err)
	require.Len(t, res.Findings, 2)

	cloud := res.Findings[0]
	assert.Equal(t, ProviderCloud, cloud.Provider)
	assert.Equal(t, 30, cloud.RiskScore)
	assert.Equal(t, LevelClean, cloud.Verdict)
	assert.Equal(t, []string{"Contains common phishing bait keywords"}, cloud.Reasons)

	local := res.Findings[1]
	assert.Equal(t, ProviderLocal, local.Provider)
	assert.Equal(t, 75, local.RiskScore)
	assert.Equal(t, LevelMalicious, local.Verdict)
	assert.Equal(t, []string{
		"Bare IPv4 address in host",
		"Executable/archive extension in URL",
		"Sensitive action path detected",
	}, local.Reasons)

	assert.Equal(t, LevelMalicious, res.OverallVerdict)
	assert.True(t, res.BlockRecommended)
}

func TestScan_RiskiestFindingWins(t *testing.T) {
	s := newService(failing(domain.ProviderCloud), failing(domain.ProviderLocal))

	res, err := s.Scan(context.Background(), Request{
		URL:   "https://example.com/",
		VT:    &domain.Finding{OK: true, Verdict: domain.VerdictMalicious, Stats: &domain.Stats{Malicious: 1, Harmless: 1, Undetected: 3}},
		Local: &domain.Finding{OK: true, Verdict: domain.VerdictHarmless},
	})
	require.NoError(t, err)
	assert.Equal(t, 20, res.Findings[0].RiskScore)
	assert.Equal(t, LevelMalicious, res.OverallVerdict)
}

func TestScan_TieKeepsFirstFinding(t *testing.T) {
	s := newService(failing(domain.ProviderCloud), failing(domain.ProviderLocal))

	res, err := s.Scan(context.Background(), Request{
		URL:   "https://example.com/",
		VT:    &domain.Finding{OK: true, Verdict: domain.VerdictHarmless, Stats: &domain.Stats{Malicious: 3, Harmless: 1}},
		Local: &domain.Finding{OK: true, Verdict: domain.VerdictMalicious},
	})
	require.NoError(t, err)
	assert.Equal(t, 75, res.Findings[0].RiskScore)
	assert.Equal(t, 75, res.Findings[1].RiskScore)
	assert.Equal(t, LevelClean, res.OverallVerdict)
	assert.False(t, res.BlockRecommended)
}

func TestCloudFallback(t *testing.T) {
	tests := []struct {
		url     string
		risk    int
		verdict Level
		reasons []string
	}{
		{"https://example.com/", 5, LevelClean, []string{}},
		{"https://free-gift.xyz/<script>", 75, LevelMalicious, []string{
			"URL contains potentially dangerous characters",
			"Contains common phishing bait keywords",
			"Suspicious TLD detected",
		}},
		{"https://WIN.example.ru/", 45, LevelSuspicious, []string{
			"Contains common phishing bait keywords",
			"Suspicious TLD detected",
		}},
		{"https://gateway.ipfs.io/x", 20, LevelClean, []string{"Decentralized/hidden hosting marker"}},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			f := cloudFallback(tt.url)
			assert.Equal(t, tt.risk, f.RiskScore)
			assert.Equal(t, tt.verdict, f.Verdict)
			assert.Equal(t, tt.reasons, f.Reasons)
		})
	}
}

func TestLocalFallback(t *testing.T) {
	tests := []struct {
		url     string
		risk    int
		reasons []string
	}{
		{"https://example.com/", 5, []string{}},
		{"example.com/wallet", 20, []string{"Sensitive action path detected"}},
		{"https://a.b.c.d.example.com/", 15, []string{"Excessive subdomain depth"}},
		{"https://user@example.com/", 20, []string{"@ symbol in URL path"}},
		{"https://example.com/file.ZIP", 25, []string{"Executable/archive extension in URL"}},
		{"https://exa mple.com/", 40, []string{"Invalid URL format"}},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			f := localFallback(tt.url)
			assert.Equal(t, tt.risk, f.RiskScore)
			assert.Equal(t, tt.reasons, f.Reasons)
		})
	}
}
