// Package verdict reduces provider findings to one overall verdict.
package verdict

import "phishguard/internal/domain"

// Combine applies the conservative-agreement policy: malicious only when both
// providers answered and both said malicious, harmless only when both said
// harmless, unknown otherwise. A nil or failed finding counts as absent, so a
// single provider can never block on its own.
func Combine(cloud, local *domain.Finding) domain.Verdict {
	c, l := opinion(cloud), opinion(local)
	switch {
	case c == domain.VerdictMalicious && l == domain.VerdictMalicious:
		return domain.VerdictMalicious
	case c == domain.VerdictHarmless && l == domain.VerdictHarmless:
		return domain.VerdictHarmless
	default:
		return domain.VerdictUnknown
	}
}

func opinion(f *domain.Finding) domain.Verdict {
	if f == nil || !f.OK {
		return ""
	}
	return f.Verdict
}
