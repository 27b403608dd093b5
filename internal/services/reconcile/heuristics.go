package reconcile

import (
	"net/url"
	"regexp"
	"strings"
)

type heuristic struct {
	pattern *regexp.Regexp
	weight  int
	reason  string
}

// Stand-ins for the cloud provider when it has no key or no answer.
var cloudHeuristics = []heuristic{
	{regexp.MustCompile(`["'<>]`), 30, "URL contains potentially dangerous characters"},
	{regexp.MustCompile(`(free|win|gift|login|verify|bank)`), 25, "Contains common phishing bait keywords"},
	{regexp.MustCompile(`\.ru|\.cn|\.tk|\.top|\.xyz`), 15, "Suspicious TLD detected"},
	{regexp.MustCompile(`ipfs|onion`), 15, "Decentralized/hidden hosting marker"},
}

var (
	schemePrefix   = regexp.MustCompile(`(?i)^https?://`)
	ipv4Host       = regexp.MustCompile(`\d{1,3}(?:\.\d{1,3}){3}`)
	executableExt  = regexp.MustCompile(`\.(zip|exe|scr)(?:$|[?&#])`)
	sensitivePaths = regexp.MustCompile(`/(login|verify|update|secure|wallet)`)
)

func levelForRisk(risk int) Level {
	switch {
	case risk >= 70:
		return LevelMalicious
	case risk >= 35:
		return LevelSuspicious
	default:
		return LevelClean
	}
}

// cloudFallback scores the raw URL text.
func cloudFallback(rawurl string) Finding {
	lowered := strings.ToLower(rawurl)
	risk := 5
	reasons := []string{}
	for _, h := range cloudHeuristics {
		if h.pattern.MatchString(lowered) {
			risk += h.weight
			reasons = append(reasons, h.reason)
		}
	}
	risk = min(100, risk)
	return Finding{Provider: ProviderCloud, RiskScore: risk, Verdict: levelForRisk(risk), Reasons: reasons}
}

// localFallback scores the URL's structure.
func localFallback(rawurl string) Finding {
	lowered := strings.ToLower(rawurl)
	risk := 0
	reasons := []string{}

	withScheme := rawurl
	if !schemePrefix.MatchString(rawurl) {
		withScheme = "https://" + rawurl
	}
	u, err := url.Parse(withScheme)
	if err != nil || u.Host == "" {
		risk += 40
		reasons = append(reasons, "Invalid URL format")
	} else {
		host := u.Hostname()
		if ipv4Host.MatchString(host) {
			risk += 30
			reasons = append(reasons, "Bare IPv4 address in host")
		}
		if len(strings.Split(host, ".")) > 4 {
			risk += 15
			reasons = append(reasons, "Excessive subdomain depth")
		}
		if strings.Contains(rawurl, "@") {
			risk += 20
			reasons = append(reasons, "@ symbol in URL path")
		}
		if executableExt.MatchString(lowered) {
			risk += 25
			reasons = append(reasons, "Executable/archive extension in URL")
		}
		path := u.EscapedPath()
		if path == "" {
			path = "/"
		}
		if sensitivePaths.MatchString(path) {
			risk += 20
			reasons = append(reasons, "Sensitive action path detected")
		}
	}

	risk = min(100, max(5, risk))
	return Finding{Provider: ProviderLocal, RiskScore: risk, Verdict: levelForRisk(risk), Reasons: reasons}
}
