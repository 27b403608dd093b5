// Package verdicts caches the last combined verdict and its reasons per URL.
// Keys are the URL exactly as scanned. Nothing expires.
//
// Reads never fail: a miss or a store error returns the unknown sentinel.
// Writes are best-effort and only logged on failure. The verdict and its
// reasons are two independent keys, so a reader can observe a new verdict
// next to the previous scan's reasons until the second write lands.
package verdicts

import (
	"context"
	"encoding/json"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"phishguard/internal/domain"
	"phishguard/internal/metrics"
	"phishguard/internal/ports"
)

type Service struct {
	store ports.Store
	clock clockwork.Clock
}

func New(store ports.Store, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{store: store, clock: clock}
}

// Get returns the cached verdict for url, or VerdictUnknown with a zero
// ComputedAt when nothing usable is cached.
func (s *Service) Get(ctx context.Context, url string) domain.AggregateVerdict {
	unknown := domain.AggregateVerdict{URL: url, Verdict: domain.VerdictUnknown}

	raw, found, err := s.store.Get(ctx, ports.BucketVerdicts, url)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		zap.L().Warn("verdict cache read failed", zap.String("url", url), zap.Error(err))
		return unknown
	}
	if !found {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return unknown
	}

	var v domain.AggregateVerdict
	if err := json.Unmarshal(raw, &v); err != nil || v.Verdict == "" {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		zap.L().Warn("verdict cache entry unreadable", zap.String("url", url), zap.Error(err))
		return unknown
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return v
}

// Set overwrites the cached verdict for url.
func (s *Service) Set(ctx context.Context, url string, verdict domain.Verdict) {
	v := domain.AggregateVerdict{URL: url, Verdict: verdict, ComputedAt: s.clock.Now().UTC()}
	s.put(ctx, ports.BucketVerdicts, url, v)
}

// GetReasons returns the cached reasons for url; false when none are cached
// or the store could not be read.
func (s *Service) GetReasons(ctx context.Context, url string) (domain.ReasonsEntry, bool) {
	raw, found, err := s.store.Get(ctx, ports.BucketReasons, url)
	if err != nil {
		zap.L().Warn("reasons cache read failed", zap.String("url", url), zap.Error(err))
		return domain.ReasonsEntry{}, false
	}
	if !found {
		return domain.ReasonsEntry{}, false
	}
	var e domain.ReasonsEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		zap.L().Warn("reasons cache entry unreadable", zap.String("url", url), zap.Error(err))
		return domain.ReasonsEntry{}, false
	}
	return e, true
}

// CacheReasons overwrites the cached reasons for url.
func (s *Service) CacheReasons(ctx context.Context, url string, reasons []string) {
	if reasons == nil {
		reasons = []string{}
	}
	e := domain.ReasonsEntry{URL: url, Reasons: reasons, CapturedAt: s.clock.Now().UTC()}
	s.put(ctx, ports.BucketReasons, url, e)
}

func (s *Service) put(ctx context.Context, bucket, url string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		zap.L().Warn("cache entry encode failed", zap.String("bucket", bucket), zap.String("url", url), zap.Error(err))
		return
	}
	if err := s.store.Put(ctx, bucket, url, raw); err != nil {
		zap.L().Warn("cache write failed", zap.String("bucket", bucket), zap.String("url", url), zap.Error(err))
	}
}
