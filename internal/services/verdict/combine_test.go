package verdict

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"phishguard/internal/domain"
)

func ok(p domain.Provider, v domain.Verdict) *domain.Finding {
	return &domain.Finding{Provider: p, OK: true, Verdict: v}
}

func TestCombine_AgreementTable(t *testing.T) {
	verdicts := []domain.Verdict{domain.VerdictMalicious, domain.VerdictHarmless, domain.VerdictUnknown}

	for _, c := range verdicts {
		for _, l := range verdicts {
			t.Run(fmt.Sprintf("%s_%s", c, l), func(t *testing.T) {
				want := domain.VerdictUnknown
				if c == l && c != domain.VerdictUnknown {
					want = c
				}
				got := Combine(ok(domain.ProviderCloud, c), ok(domain.ProviderLocal, l))
				assert.Equal(t, want, got)
			})
		}
	}
}

func TestCombine_AbsentProviders(t *testing.T) {
	mal := ok(domain.ProviderCloud, domain.VerdictMalicious)
	harmless := ok(domain.ProviderLocal, domain.VerdictHarmless)

	assert.Equal(t, domain.VerdictUnknown, Combine(nil, nil))
	assert.Equal(t, domain.VerdictUnknown, Combine(mal, nil))
	assert.Equal(t, domain.VerdictUnknown, Combine(nil, ok(domain.ProviderLocal, domain.VerdictMalicious)))
	assert.Equal(t, domain.VerdictUnknown, Combine(nil, harmless))
	assert.Equal(t, domain.VerdictUnknown, Combine(ok(domain.ProviderCloud, domain.VerdictHarmless), nil))
}

func TestCombine_FailedFindingIsNoOpinion(t *testing.T) {
	failed := domain.Failed(domain.ProviderCloud, "Missing VirusTotal API key")
	failed.Verdict = domain.VerdictMalicious // stale field must be ignored

	got := Combine(&failed, ok(domain.ProviderLocal, domain.VerdictMalicious))
	assert.Equal(t, domain.VerdictUnknown, got)
}

func TestCombine_SuspiciousNeverBlocks(t *testing.T) {
	got := Combine(ok(domain.ProviderCloud, domain.VerdictSuspicious), ok(domain.ProviderLocal, domain.VerdictSuspicious))
	assert.Equal(t, domain.VerdictUnknown, got)
}

func TestCombine_EmptyFinding(t *testing.T) {
	assert.Equal(t, domain.VerdictUnknown, Combine(&domain.Finding{}, &domain.Finding{}))
}
