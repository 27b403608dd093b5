package dispatch

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	"phishguard/internal/domain"
)

const defaultDashboardURL = "http://localhost:3000/scan"

// DashboardURL links the dashboard to url, optionally carrying precomputed
// provider findings as base64 JSON so the dashboard can skip re-querying.
func DashboardURL(base, target string, vt, local *domain.Finding) string {
	if base == "" {
		base = defaultDashboardURL
	}
	var params []string
	if target != "" {
		params = append(params, "url="+url.QueryEscape(target))
	}
	if p, ok := encodeFinding(vt); ok {
		params = append(params, "vt="+url.QueryEscape(p))
	}
	if p, ok := encodeFinding(local); ok {
		params = append(params, "local="+url.QueryEscape(p))
	}
	if len(params) == 0 {
		return base
	}
	return base + "?" + strings.Join(params, "&")
}

func encodeFinding(f *domain.Finding) (string, bool) {
	if f == nil {
		return "", false
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(raw), true
}
