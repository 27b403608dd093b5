package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestUntil_TerminalOnFirstAttempt(t *testing.T) {
	rec := &recordingSleeper{}
	p := Policy{MaxAttempts: 6, Interval: time.Second, Sleep: rec.sleep}

	val, attempts, err := Until(context.Background(), p, func(context.Context) (string, bool, error) {
		return "completed", true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "completed", val)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, rec.waits)
}

func TestUntil_TerminalAfterRetries(t *testing.T) {
	rec := &recordingSleeper{}
	p := Policy{MaxAttempts: 6, Interval: time.Second, Sleep: rec.sleep}

	calls := 0
	val, attempts, err := Until(context.Background(), p, func(context.Context) (int, bool, error) {
		calls++
		return calls, calls == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, val)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, rec.waits)
}

func TestUntil_BudgetExhausted(t *testing.T) {
	rec := &recordingSleeper{}
	p := Policy{MaxAttempts: 6, Interval: time.Second, Sleep: rec.sleep}

	calls := 0
	_, attempts, err := Until(context.Background(), p, func(context.Context) (struct{}, bool, error) {
		calls++
		return struct{}{}, false, nil
	})
	require.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, 6, calls)
	assert.Equal(t, 6, attempts)

	var total time.Duration
	for _, w := range rec.waits {
		total += w
	}
	assert.LessOrEqual(t, total, 6*time.Second)
}

func TestUntil_CheckErrorStopsPolling(t *testing.T) {
	rec := &recordingSleeper{}
	p := Policy{MaxAttempts: 6, Interval: time.Second, Sleep: rec.sleep}

	boom := errors.New("boom")
	calls := 0
	_, attempts, err := Until(context.Background(), p, func(context.Context) (int, bool, error) {
		calls++
		if calls == 2 {
			return 0, false, boom
		}
		return 0, false, nil
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, attempts)
	assert.Len(t, rec.waits, 1)
}

func TestUntil_Defaults(t *testing.T) {
	p := applyDefaults(Policy{})
	assert.Equal(t, 6, p.MaxAttempts)
	assert.NotNil(t, p.Sleep)
}

func TestClockSleeper_ContextCancelled(t *testing.T) {
	sleep := ClockSleeper(clockwork.NewFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClockSleeper_ZeroDuration(t *testing.T) {
	sleep := ClockSleeper(clockwork.NewFakeClock())
	assert.NoError(t, sleep(context.Background(), 0))
}
