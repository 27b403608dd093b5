package verdicts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"phishguard/internal/adapters/memory"
	"phishguard/internal/domain"
	"phishguard/internal/ports"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type failingStore struct{}

func (failingStore) Get(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func (failingStore) Put(context.Context, string, string, []byte) error {
	return errors.New("disk on fire")
}

func (failingStore) List(context.Context, string) (map[string][]byte, error) {
	return nil, errors.New("disk on fire")
}

func (failingStore) Close() error { return nil }

func newService(t *testing.T) (*Service, *memory.Store, *clockwork.FakeClock) {
	t.Helper()
	zap.ReplaceGlobals(zap.NewNop())
	store := memory.New()
	clock := clockwork.NewFakeClockAt(epoch)
	return New(store, clock), store, clock
}

func TestService_GetUnseenIsUnknown(t *testing.T) {
	s, _, _ := newService(t)

	v := s.Get(context.Background(), "https://never-seen.example/")
	assert.Equal(t, domain.VerdictUnknown, v.Verdict)
	assert.Equal(t, "https://never-seen.example/", v.URL)
	assert.True(t, v.ComputedAt.IsZero())
}

func TestService_SetThenGet(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newService(t)

	for _, verdict := range []domain.Verdict{domain.VerdictMalicious, domain.VerdictHarmless, domain.VerdictUnknown} {
		url := "https://" + string(verdict) + ".example/"
		s.Set(ctx, url, verdict)
		got := s.Get(ctx, url)
		assert.Equal(t, verdict, got.Verdict)
		assert.Equal(t, epoch, got.ComputedAt)
	}

	clock.Advance(time.Minute)
	s.Set(ctx, "https://malicious.example/", domain.VerdictHarmless)
	got := s.Get(ctx, "https://malicious.example/")
	assert.Equal(t, domain.VerdictHarmless, got.Verdict, "last write wins")
	assert.Equal(t, epoch.Add(time.Minute), got.ComputedAt)
}

func TestService_KeysAreNotCanonicalized(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newService(t)

	s.Set(ctx, "https://example.com/a", domain.VerdictMalicious)
	assert.Equal(t, domain.VerdictUnknown, s.Get(ctx, "https://example.com/a/").Verdict)
	assert.Equal(t, domain.VerdictUnknown, s.Get(ctx, "https://EXAMPLE.com/a").Verdict)
}

func TestService_UnreadableEntryIsUnknown(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newService(t)

	require.NoError(t, store.Put(ctx, ports.BucketVerdicts, "https://x.example/", []byte("not json")))
	assert.Equal(t, domain.VerdictUnknown, s.Get(ctx, "https://x.example/").Verdict)
}

func TestService_StoreErrorsAreSwallowed(t *testing.T) {
	ctx := context.Background()
	zap.ReplaceGlobals(zap.NewNop())
	s := New(failingStore{}, clockwork.NewFakeClock())

	assert.NotPanics(t, func() {
		s.Set(ctx, "https://x.example/", domain.VerdictMalicious)
		s.CacheReasons(ctx, "https://x.example/", []string{"r"})
	})
	assert.Equal(t, domain.VerdictUnknown, s.Get(ctx, "https://x.example/").Verdict)
	_, ok := s.GetReasons(ctx, "https://x.example/")
	assert.False(t, ok)
}

func TestService_Reasons(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newService(t)

	_, ok := s.GetReasons(ctx, "https://x.example/")
	assert.False(t, ok)

	s.CacheReasons(ctx, "https://x.example/", []string{"VT: malicious=5, suspicious=1", "AI: a; b"})
	e, ok := s.GetReasons(ctx, "https://x.example/")
	require.True(t, ok)
	assert.Equal(t, []string{"VT: malicious=5, suspicious=1", "AI: a; b"}, e.Reasons)
	assert.Equal(t, epoch, e.CapturedAt)

	s.CacheReasons(ctx, "https://y.example/", nil)
	e, ok = s.GetReasons(ctx, "https://y.example/")
	require.True(t, ok)
	assert.Equal(t, []string{}, e.Reasons)
}

func TestService_VerdictAndReasonsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newService(t)

	s.CacheReasons(ctx, "https://x.example/", []string{"old"})
	s.Set(ctx, "https://x.example/", domain.VerdictMalicious)

	assert.Equal(t, domain.VerdictMalicious, s.Get(ctx, "https://x.example/").Verdict)
	e, _ := s.GetReasons(ctx, "https://x.example/")
	assert.Equal(t, []string{"old"}, e.Reasons)
}
