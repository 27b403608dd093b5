package domain

import (
	"math"
	"time"
)

// Core domain models shared by adapters and services. JSON tags follow the
// shapes the browser extension and dashboard already exchange.

type Provider string

const (
	ProviderCloud Provider = "cloud"
	ProviderLocal Provider = "local"
)

type Verdict string

const (
	VerdictMalicious  Verdict = "malicious"
	VerdictSuspicious Verdict = "suspicious"
	VerdictHarmless   Verdict = "harmless"
	VerdictUnknown    Verdict = "unknown"
)

// Stats are the detection counters reported by the cloud AV aggregator.
type Stats struct {
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Harmless   int `json:"harmless"`
	Undetected int `json:"undetected"`
}

// RiskScore weights malicious detections 3 and suspicious 2 over the engine
// count, on a 0-100 scale.
func (s Stats) RiskScore() float64 {
	total := max(1, s.Malicious+s.Suspicious+s.Harmless+s.Undetected)
	score := math.Round(float64(s.Malicious*3+s.Suspicious*2) / float64(total*3) * 100)
	return math.Min(100, score)
}

// Finding is one provider's opinion about a URL. OK=false means "no opinion"
// and Reason carries the failure; it must never be read as clean.
type Finding struct {
	Provider   Provider `json:"provider"`
	OK         bool     `json:"ok"`
	Reason     string   `json:"error,omitempty"`
	Verdict    Verdict  `json:"verdict,omitempty"`
	Evidence   []string `json:"reasons,omitempty"`
	RawScore   *float64 `json:"rawScore,omitempty"`
	Label      string   `json:"label,omitempty"`
	Stats      *Stats   `json:"stats,omitempty"`
	AnalysisID string   `json:"analysisId,omitempty"`
}

// Failed builds the ok:false result for a provider.
func Failed(p Provider, reason string) Finding {
	return Finding{Provider: p, OK: false, Reason: reason}
}

// AggregateVerdict is the cached, combined opinion for one URL.
type AggregateVerdict struct {
	URL        string    `json:"url"`
	Verdict    Verdict   `json:"verdict"`
	ComputedAt time.Time `json:"computedAt"`
}

// ReasonsEntry holds human-readable evidence, most significant first.
type ReasonsEntry struct {
	URL        string    `json:"url"`
	Reasons    []string  `json:"reasons"`
	CapturedAt time.Time `json:"ts"`
}

// ScanResult is the bundle returned by a single-URL scan.
type ScanResult struct {
	URL       string    `json:"url"`
	Cloud     Finding   `json:"virusTotal"`
	Local     Finding   `json:"localAI"`
	Verdict   Verdict   `json:"combinedVerdict"`
	Reasons   []string  `json:"reasons"`
	ScannedAt time.Time `json:"scannedAt"`
}

type ResourceScope string

const (
	ScopeMainFrame ResourceScope = "main_frame"
	ScopeSubFrame  ResourceScope = "sub_frame"
)

// BlockRule is a standing network-level block enforced by the browser.
type BlockRule struct {
	ID        int             `json:"id"`
	Priority  int             `json:"priority"`
	Domain    string          `json:"domain"`
	Action    string          `json:"action"`
	Scope     []ResourceScope `json:"resourceTypes"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Credentials for the reputation providers.
type Credentials struct {
	VirusTotalAPIKey string `json:"virusTotalApiKey,omitempty"`
	LocalAPIKey      string `json:"localApiKey,omitempty"`
}

// Settings is the small synchronized settings record.
type Settings struct {
	BlockedDomains     []string    `json:"blockedDomains"`
	ShowBannerWarnings bool        `json:"showBannerWarnings"`
	Credentials        Credentials `json:"credentials"`
}

// Tab addresses one browser tab behind one connected extension client.
type Tab struct {
	Client string `json:"client,omitempty"`
	ID     int    `json:"tabId"`
}

// NavigationEvent mirrors a tab update: URL is set when the tab URL changed,
// Status carries load-status changes and TabURL the tab's current URL.
type NavigationEvent struct {
	Tab    Tab    `json:"tab"`
	URL    string `json:"url,omitempty"`
	Status string `json:"status,omitempty"`
	TabURL string `json:"tabUrl,omitempty"`
}

// Notification is a user-facing desktop notification.
type Notification struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Context  string `json:"contextMessage,omitempty"`
	Priority int    `json:"priority"`
}
