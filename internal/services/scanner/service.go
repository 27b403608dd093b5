// Package scanner orchestrates provider lookups for single URLs and batches,
// combines the findings and writes the result through to the caches.
package scanner

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"phishguard/internal/domain"
	"phishguard/internal/metrics"
	"phishguard/internal/poll"
	"phishguard/internal/ports"
	"phishguard/internal/services/verdict"
	"phishguard/internal/workers/scanrunner"
)

// ErrInvalidURL is returned for input that is not an absolute URL.
var ErrInvalidURL = eris.New("invalid URL")

// Cache is the write side of the verdict and reasons caches.
type Cache interface {
	Set(ctx context.Context, url string, v domain.Verdict)
	CacheReasons(ctx context.Context, url string, reasons []string)
}

type Options struct {
	BatchLimit int
	Workers    int

	// Throttle is the pause a batch worker takes after each URL. Zero
	// disables it; a negative value selects the 150ms default.
	Throttle time.Duration

	ReasonsLimit int

	// Sleep waits out the batch throttle. Default: real-clock sleep.
	Sleep poll.Sleeper
}

func (o Options) withDefaults() Options {
	if o.BatchLimit <= 0 {
		o.BatchLimit = 50
	}
	if o.Workers <= 0 {
		o.Workers = 5
	}
	if o.Throttle < 0 {
		o.Throttle = 150 * time.Millisecond
	}
	if o.ReasonsLimit <= 0 {
		o.ReasonsLimit = 3
	}
	return o
}

type Service struct {
	cloud ports.Provider
	local ports.Provider
	creds ports.CredentialSource
	cache Cache
	clock clockwork.Clock
	opts  Options
}

func New(cloud, local ports.Provider, creds ports.CredentialSource, cache Cache, clock clockwork.Clock, opts Options) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		cloud: cloud,
		local: local,
		creds: creds,
		cache: cache,
		clock: clock,
		opts:  opts.withDefaults(),
	}
}

// ParseURL accepts only absolute URLs and returns the form used as cache key.
// No canonicalization happens beyond what parsing itself does.
func ParseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.Wrap(ErrInvalidURL, "empty URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(ErrInvalidURL, "%q: %v", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", eris.Wrapf(ErrInvalidURL, "%q is not absolute", raw)
	}
	return u.String(), nil
}

// Scan queries both providers concurrently, waits for both to settle, then
// combines and caches. The only error is ErrInvalidURL.
func (s *Service) Scan(ctx context.Context, rawurl string) (domain.ScanResult, error) {
	target, err := ParseURL(rawurl)
	if err != nil {
		return domain.ScanResult{}, err
	}
	creds := s.creds.Credentials(ctx)

	var cloud, local domain.Finding
	var g errgroup.Group
	g.Go(func() error {
		cloud = safeScan(ctx, s.cloud, target, creds)
		return nil
	})
	g.Go(func() error {
		local = safeScan(ctx, s.local, target, creds)
		return nil
	})
	_ = g.Wait()

	reasons := s.reasons(cloud, local)
	combined := verdict.Combine(&cloud, &local)

	s.cache.Set(ctx, target, combined)
	s.cache.CacheReasons(ctx, target, reasons)

	metrics.Scans.WithLabelValues(string(combined)).Inc()
	zap.L().Info("url scanned",
		zap.String("url", target),
		zap.String("verdict", string(combined)),
		zap.Bool("cloud_ok", cloud.OK),
		zap.Bool("local_ok", local.OK),
	)

	return domain.ScanResult{
		URL:       target,
		Cloud:     cloud,
		Local:     local,
		Verdict:   combined,
		Reasons:   reasons,
		ScannedAt: s.clock.Now().UTC(),
	}, nil
}

func (s *Service) reasons(cloud, local domain.Finding) []string {
	out := []string{}
	if cloud.OK {
		var st domain.Stats
		if cloud.Stats != nil {
			st = *cloud.Stats
		}
		out = append(out, fmt.Sprintf("VT: malicious=%d, suspicious=%d", st.Malicious, st.Suspicious))
	}
	if local.OK && len(local.Evidence) > 0 {
		top := local.Evidence[:min(s.opts.ReasonsLimit, len(local.Evidence))]
		out = append(out, "AI: "+strings.Join(top, "; "))
	}
	return out
}

// safeScan turns a panicking provider into an OK=false finding.
func safeScan(ctx context.Context, p ports.Provider, target string, creds domain.Credentials) (f domain.Finding) {
	name := p.Name()
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("provider panicked", zap.String("provider", string(name)), zap.String("url", target), zap.Any("panic", r))
			f = domain.Failed(name, fmt.Sprintf("provider panic: %v", r))
		}
		if !f.OK {
			metrics.ProviderFailures.WithLabelValues(string(name)).Inc()
		}
	}()
	f = p.Scan(ctx, target, creds)
	f.Provider = name
	return f
}

// ScanBatch scans at most BatchLimit URLs through the worker pool and returns
// those whose combined verdict is malicious, in input order and exactly as
// given. Invalid URLs are skipped.
func (s *Service) ScanBatch(ctx context.Context, urls []string) []string {
	if len(urls) > s.opts.BatchLimit {
		urls = urls[:s.opts.BatchLimit]
	}
	jobs := make([]ports.ScanJob, len(urls))
	for i, u := range urls {
		jobs[i] = ports.ScanJob{Index: i, URL: u}
	}

	var mu sync.Mutex
	unsafe := make([]bool, len(urls))

	scanrunner.Run(ctx, jobs, scanrunner.ProcessorFunc(func(ctx context.Context, job ports.ScanJob) {
		res, err := s.Scan(ctx, job.URL)
		if err != nil {
			zap.L().Warn("batch scan skipped url", zap.String("url", job.URL), zap.Error(err))
			return
		}
		if res.Verdict == domain.VerdictMalicious {
			mu.Lock()
			unsafe[job.Index] = true
			mu.Unlock()
		}
	}), scanrunner.Options{Workers: s.opts.Workers, Throttle: s.opts.Throttle, Sleep: s.opts.Sleep})

	out := []string{}
	for i, bad := range unsafe {
		if bad {
			out = append(out, urls[i])
		}
	}
	metrics.BatchUnsafe.Add(float64(len(out)))
	return out
}
