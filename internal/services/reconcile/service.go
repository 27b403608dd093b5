// Package reconcile backs the dashboard's aggregation endpoint. Unlike the
// conservative combiner used for blocking, it reports the single riskiest
// provider finding and recommends a block for anything not clean.
package reconcile

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"phishguard/internal/domain"
	"phishguard/internal/ports"
)

// ErrMissingURL is returned when the request carries no url.
var ErrMissingURL = eris.New("Missing 'url' in request body")

// Level is the dashboard's three-step verdict scale.
type Level string

const (
	LevelClean      Level = "clean"
	LevelSuspicious Level = "suspicious"
	LevelMalicious  Level = "malicious"
)

// Provider names as the dashboard knows them.
const (
	ProviderCloud = "virusTools"
	ProviderLocal = "localRun"
)

var (
	maliciousWords  = regexp.MustCompile(`malic|phish`)
	suspiciousWords = regexp.MustCompile(`suspici|unknown|grey|gray`)
	phishLabel      = regexp.MustCompile(`(?i)phish`)
	benignLabel     = regexp.MustCompile(`(?i)benign|harmless|clean`)
)

// Finding is one provider's contribution to the dashboard view.
type Finding struct {
	Provider  string         `json:"provider"`
	RiskScore int            `json:"riskScore"`
	Verdict   Level          `json:"verdict"`
	Reasons   []string       `json:"reasons"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Request is the aggregation endpoint body. VT and Local carry findings the
// extension already computed; when either is present providers are skipped.
type Request struct {
	URL   string          `json:"url"`
	VT    *domain.Finding `json:"vt,omitempty"`
	Local *domain.Finding `json:"local,omitempty"`
}

type Result struct {
	URL              string    `json:"url"`
	OverallVerdict   Level     `json:"overallVerdict"`
	BlockRecommended bool      `json:"blockRecommended"`
	Findings         []Finding `json:"findings"`
	ScannedAt        time.Time `json:"scannedAt"`
}

type Service struct {
	cloud ports.Provider
	local ports.Provider
	creds ports.CredentialSource
	clock clockwork.Clock
}

func New(cloud, local ports.Provider, creds ports.CredentialSource, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{cloud: cloud, local: local, creds: creds, clock: clock}
}

// NormalizeLevel folds a free-form verdict onto the dashboard scale.
func NormalizeLevel(v string) Level {
	s := strings.ToLower(v)
	switch {
	case maliciousWords.MatchString(s):
		return LevelMalicious
	case suspiciousWords.MatchString(s):
		return LevelSuspicious
	default:
		return LevelClean
	}
}

// Scan builds the dashboard result for req.
func (s *Service) Scan(ctx context.Context, req Request) (Result, error) {
	target := strings.TrimSpace(req.URL)
	if target == "" {
		return Result{}, ErrMissingURL
	}

	findings := fromPayload(req)
	if findings == nil {
		findings = s.query(ctx, target)
	}

	worst := findings[0]
	for _, f := range findings[1:] {
		if f.RiskScore > worst.RiskScore {
			worst = f
		}
	}
	return Result{
		URL:              target,
		OverallVerdict:   worst.Verdict,
		BlockRecommended: worst.Verdict != LevelClean,
		Findings:         findings,
		ScannedAt:        s.clock.Now().UTC(),
	}, nil
}

func fromPayload(req Request) []Finding {
	var out []Finding
	if req.VT != nil {
		out = append(out, cloudFinding(*req.VT))
	}
	if req.Local != nil {
		level := NormalizeLevel(string(req.Local.Verdict))
		out = append(out, localFinding(level, req.Local.Evidence))
	}
	return out
}

// query asks both providers, substituting the heuristic fallback for any
// provider without an answer.
func (s *Service) query(ctx context.Context, target string) []Finding {
	creds := s.creds.Credentials(ctx)

	var cloud, local Finding
	var g errgroup.Group
	g.Go(func() error {
		f := s.cloud.Scan(ctx, target, creds)
		if !f.OK {
			zap.L().Debug("cloud provider unavailable, using heuristics", zap.String("url", target), zap.String("reason", f.Reason))
			cloud = cloudFallback(target)
			return nil
		}
		cloud = cloudFinding(f)
		return nil
	})
	g.Go(func() error {
		f := s.local.Scan(ctx, target, creds)
		if !f.OK {
			zap.L().Debug("local provider unavailable, using heuristics", zap.String("url", target), zap.String("reason", f.Reason))
			local = localFallback(target)
			return nil
		}
		local = localFinding(localLevel(f.Label), f.Evidence)
		return nil
	})
	_ = g.Wait()
	return []Finding{cloud, local}
}

func cloudFinding(f domain.Finding) Finding {
	var st domain.Stats
	if f.Stats != nil {
		st = *f.Stats
	}
	var analysisID any
	if f.AnalysisID != "" {
		analysisID = f.AnalysisID
	}
	return Finding{
		Provider:  ProviderCloud,
		RiskScore: int(st.RiskScore()),
		Verdict:   NormalizeLevel(string(f.Verdict)),
		Reasons: []string{
			"Malicious: " + strconv.Itoa(st.Malicious),
			"Suspicious: " + strconv.Itoa(st.Suspicious),
			"Harmless: " + strconv.Itoa(st.Harmless),
			"Undetected: " + strconv.Itoa(st.Undetected),
		},
		Meta: map[string]any{"analysisId": analysisID},
	}
}

// localLevel maps the classifier's raw label; anything unrecognised counts
// as suspicious on the dashboard.
func localLevel(label string) Level {
	switch {
	case phishLabel.MatchString(label):
		return LevelMalicious
	case benignLabel.MatchString(label):
		return LevelClean
	default:
		return LevelSuspicious
	}
}

func localFinding(level Level, reasons []string) Finding {
	risk := 5
	switch level {
	case LevelMalicious:
		risk = 75
	case LevelSuspicious:
		risk = 50
	}
	if reasons == nil {
		reasons = []string{}
	}
	return Finding{Provider: ProviderLocal, RiskScore: risk, Verdict: level, Reasons: reasons, Meta: map[string]any{}}
}
