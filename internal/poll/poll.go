// Package poll runs a bounded poll loop against an asynchronous status endpoint.
package poll

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
)

// ErrNotReady is returned when the terminal status was not observed within
// the attempt budget.
var ErrNotReady = eris.New("poll: terminal status not reached")

// Sleeper waits for d, returning early with ctx.Err() if ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ClockSleeper waits on the given clock.
func ClockSleeper(clock clockwork.Clock) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(d):
			return nil
		}
	}
}

// Policy bounds a poll loop.
type Policy struct {
	// MaxAttempts is the total number of status checks. Default: 6.
	MaxAttempts int

	// Interval is the fixed delay between checks. Default: 1s.
	Interval time.Duration

	// Sleep waits between checks. Default: real-clock sleep.
	Sleep Sleeper
}

// DefaultPolicy returns the 6 x 1s budget used for analysis polling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 6,
		Interval:    time.Second,
		Sleep:       ClockSleeper(clockwork.NewRealClock()),
	}
}

func applyDefaults(p Policy) Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 6
	}
	if p.Interval < 0 {
		p.Interval = 0
	}
	if p.Sleep == nil {
		p.Sleep = ClockSleeper(clockwork.NewRealClock())
	}
	return p
}

// Until calls check until it reports a terminal result, an error, or the
// attempt budget runs out. It never sleeps after the final attempt, so the
// total wait is bounded by (MaxAttempts-1) x Interval plus check latency.
// The returned int is the number of checks made.
func Until[T any](ctx context.Context, p Policy, check func(ctx context.Context) (T, bool, error)) (T, int, error) {
	p = applyDefaults(p)

	var zero T
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, done, err := check(ctx)
		if err != nil {
			return zero, attempt, err
		}
		if done {
			return val, attempt, nil
		}
		if attempt == p.MaxAttempts {
			break
		}
		if err := p.Sleep(ctx, p.Interval); err != nil {
			return zero, attempt, eris.Wrap(err, "poll: interrupted")
		}
	}
	return zero, p.MaxAttempts, ErrNotReady
}
