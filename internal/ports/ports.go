package ports

import (
	"context"

	"phishguard/internal/domain"
)

// Provider queries one reputation source. Scan never returns an error: every
// failure comes back as a Finding with OK=false and a reason.
type Provider interface {
	Name() domain.Provider
	Scan(ctx context.Context, rawurl string, creds domain.Credentials) domain.Finding
}

// Scanner runs single and batch scans and keeps the caches current.
type Scanner interface {
	Scan(ctx context.Context, rawurl string) (domain.ScanResult, error)
	ScanBatch(ctx context.Context, urls []string) []string
}

// Verdicts is the read side of the verdict/reasons caches.
type Verdicts interface {
	Get(ctx context.Context, url string) domain.AggregateVerdict
	GetReasons(ctx context.Context, url string) (domain.ReasonsEntry, bool)
}

// CredentialSource resolves provider credentials at scan time.
type CredentialSource interface {
	Credentials(ctx context.Context) domain.Credentials
}

// CredentialsFunc adapts a function to CredentialSource.
type CredentialsFunc func(ctx context.Context) domain.Credentials

func (f CredentialsFunc) Credentials(ctx context.Context) domain.Credentials { return f(ctx) }
