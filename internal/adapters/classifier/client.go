// Package classifier adapts the local ML phishing classifier's /predict
// endpoint to a Provider.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"phishguard/internal/domain"
)

const (
	defaultBaseURL = "http://127.0.0.1:8000"
	defaultUserID  = "chrome-extension"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

var (
	phishLabel  = regexp.MustCompile(`(?i)phish`)
	benignLabel = regexp.MustCompile(`(?i)benign|harmless|clean`)
)

// Config configures the classifier provider.
type Config struct {
	BaseURL    string
	UserID     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is the local classifier provider.
type Client struct {
	baseURL string
	userID  string
	client  *http.Client
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserID == "" {
		cfg.UserID = defaultUserID
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		userID:  cfg.UserID,
		client:  client,
	}
}

func (c *Client) Name() domain.Provider {
	return domain.ProviderLocal
}

type predictRequest struct {
	URL    string `json:"url"`
	UserID string `json:"user_id"`
}

type predictResponse struct {
	Verdict string   `json:"verdict"`
	Reasons []string `json:"reasons"`
}

// Scan asks the classifier for a label. Transport, status and decode errors
// all become OK=false.
func (c *Client) Scan(ctx context.Context, rawurl string, creds domain.Credentials) domain.Finding {
	pred, err := c.predict(ctx, rawurl, creds.LocalAPIKey)
	if err != nil {
		return domain.Failed(domain.ProviderLocal, err.Error())
	}
	return domain.Finding{
		Provider: domain.ProviderLocal,
		OK:       true,
		Verdict:  MapLabel(pred.Verdict),
		Label:    pred.Verdict,
		Evidence: pred.Reasons,
	}
}

func (c *Client) predict(ctx context.Context, rawurl, apiKey string) (*predictResponse, error) {
	body, err := json.Marshal(predictRequest{URL: rawurl, UserID: c.userID})
	if err != nil {
		return nil, eris.Wrap(err, "classifier: encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "classifier: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "classifier: predict")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, eris.Errorf("Local API error: %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "classifier: read body")
	}
	var out predictResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrap(err, "classifier: decode response")
	}
	return &out, nil
}

// MapLabel maps the classifier's free-text label onto the verdict space.
func MapLabel(label string) domain.Verdict {
	switch {
	case phishLabel.MatchString(label):
		return domain.VerdictMalicious
	case benignLabel.MatchString(label):
		return domain.VerdictHarmless
	default:
		return domain.VerdictUnknown
	}
}
