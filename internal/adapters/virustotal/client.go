// Package virustotal adapts the VirusTotal v3 URL analysis API to a Provider.
// The API is submit-then-poll: POST /urls returns an analysis id and
// GET /analyses/{id} reports status until it becomes "completed".
package virustotal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"phishguard/internal/domain"
	"phishguard/internal/poll"
)

const (
	defaultBaseURL = "https://www.virustotal.com/api/v3"
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 4 << 20

	statusCompleted = "completed"
)

// Config configures the VirusTotal provider.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Poll    poll.Policy

	// RequestsPerMinute caps outgoing API calls. Zero means unlimited.
	RequestsPerMinute int

	HTTPClient *http.Client
}

// Client is the cloud AV provider.
type Client struct {
	baseURL string
	client  *http.Client
	policy  poll.Policy
	limiter *rate.Limiter
}

// New returns a Client; zero Config fields take defaults.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	policy := cfg.Poll
	if policy.MaxAttempts == 0 && policy.Interval == 0 && policy.Sleep == nil {
		policy = poll.DefaultPolicy()
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		policy:  policy,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (c *Client) Name() domain.Provider {
	return domain.ProviderCloud
}

type submitResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type analysisResponse struct {
	Data struct {
		Attributes struct {
			Status            string          `json:"status"`
			Stats             json.RawMessage `json:"stats"`
			Results           json.RawMessage `json:"results"`
			LastAnalysisStats json.RawMessage `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// Scan submits rawurl and polls for the finished analysis. It never returns
// a partial verdict: if the analysis does not complete within the poll budget
// the finding is OK=false with reason "Analysis not ready".
func (c *Client) Scan(ctx context.Context, rawurl string, creds domain.Credentials) domain.Finding {
	apiKey := creds.VirusTotalAPIKey
	if apiKey == "" {
		return domain.Failed(domain.ProviderCloud, "Missing VirusTotal API key")
	}

	analysisID, err := c.submit(ctx, rawurl, apiKey)
	if err != nil {
		return domain.Failed(domain.ProviderCloud, err.Error())
	}
	if analysisID == "" {
		return domain.Failed(domain.ProviderCloud, "No analysis ID")
	}

	analysis, attempts, err := poll.Until(ctx, c.policy, func(ctx context.Context) (*analysisResponse, bool, error) {
		a, err := c.analysis(ctx, analysisID, apiKey)
		if err != nil {
			return nil, false, err
		}
		return a, a.Data.Attributes.Status == statusCompleted, nil
	})
	if errors.Is(err, poll.ErrNotReady) {
		zap.L().Debug("virustotal analysis not ready",
			zap.String("url", rawurl),
			zap.String("analysis_id", analysisID),
			zap.Int("attempts", attempts),
		)
		return domain.Failed(domain.ProviderCloud, "Analysis not ready")
	}
	if err != nil {
		return domain.Failed(domain.ProviderCloud, err.Error())
	}

	stats := extractStats(analysis)
	verdict := domain.VerdictHarmless
	if stats.Malicious > 0 || stats.Suspicious > 0 {
		verdict = domain.VerdictMalicious
	}
	score := stats.RiskScore()

	return domain.Finding{
		Provider: domain.ProviderCloud,
		OK:       true,
		Verdict:  verdict,
		Evidence: []string{
			fmt.Sprintf("Malicious: %d", stats.Malicious),
			fmt.Sprintf("Suspicious: %d", stats.Suspicious),
			fmt.Sprintf("Harmless: %d", stats.Harmless),
			fmt.Sprintf("Undetected: %d", stats.Undetected),
		},
		RawScore:   &score,
		Stats:      &stats,
		AnalysisID: analysisID,
	}
}

func (c *Client) submit(ctx context.Context, rawurl, apiKey string) (string, error) {
	form := url.Values{}
	form.Set("url", rawurl)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/urls", strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "virustotal: build submit request")
	}
	req.Header.Set("x-apikey", apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out submitResponse
	if err := c.do(req, &out); err != nil {
		return "", eris.Wrap(err, "virustotal: submit")
	}
	return out.Data.ID, nil
}

func (c *Client) analysis(ctx context.Context, id, apiKey string) (*analysisResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/analyses/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, eris.Wrap(err, "virustotal: build analysis request")
	}
	req.Header.Set("x-apikey", apiKey)

	var out analysisResponse
	if err := c.do(req, &out); err != nil {
		return nil, eris.Wrap(err, "virustotal: analysis")
	}
	return &out, nil
}

// do sends req under the rate limit and decodes the JSON body. The status
// code is not checked: error bodies simply lack the fields callers look for.
func (c *Client) do(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return eris.Wrap(err, "rate limit wait")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return eris.Wrap(err, "read body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "decode response (status %d)", resp.StatusCode)
	}
	return nil
}

// extractStats reads the detection counters from whichever of the known
// attribute shapes is present, in order: stats, results, last_analysis_stats.
func extractStats(a *analysisResponse) domain.Stats {
	attrs := a.Data.Attributes
	for _, raw := range []json.RawMessage{attrs.Stats, attrs.Results, attrs.LastAnalysisStats} {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}
		return domain.Stats{
			Malicious:  counter(fields["malicious"]),
			Suspicious: counter(fields["suspicious"]),
			Harmless:   counter(fields["harmless"]),
			Undetected: counter(fields["undetected"]),
		}
	}
	return domain.Stats{}
}

func counter(raw json.RawMessage) int {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	return int(n)
}
