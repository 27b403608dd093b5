// Package scanrunner drains a fixed queue of scan jobs with a bounded pool
// of self-throttling workers.
package scanrunner

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"phishguard/internal/poll"
	"phishguard/internal/ports"
)

// ScanProcessor performs the work for one job.
type ScanProcessor interface {
	Process(ctx context.Context, job ports.ScanJob)
}

// ProcessorFunc adapts a function to ScanProcessor.
type ProcessorFunc func(ctx context.Context, job ports.ScanJob)

func (f ProcessorFunc) Process(ctx context.Context, job ports.ScanJob) { f(ctx, job) }

// Options sizes the pool.
type Options struct {
	// Workers is the number of concurrent consumers. Default: 5.
	Workers int

	// Throttle is the pause a worker takes after each job. Zero means none.
	Throttle time.Duration

	// Sleep waits out the throttle. Default: real-clock sleep.
	Sleep poll.Sleeper
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 5
	}
	if o.Throttle < 0 {
		o.Throttle = 0
	}
	if o.Sleep == nil {
		o.Sleep = poll.ClockSleeper(clockwork.NewRealClock())
	}
	return o
}

// Run processes every job and returns once the queue is drained. Each job is
// received by exactly one worker. A panicking job is logged and the worker
// moves on. Cancelling ctx stops workers at their next throttle pause.
func Run(ctx context.Context, jobs []ports.ScanJob, processor ScanProcessor, opts Options) {
	if len(jobs) == 0 {
		return
	}
	opts = opts.withDefaults()

	queue := make(chan ports.ScanJob, len(jobs))
	for _, j := range jobs {
		queue <- j
	}
	close(queue)

	workers := min(opts.Workers, len(jobs))
	done := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer func() { done <- struct{}{} }()
			for job := range queue {
				runOne(ctx, idx, processor, job)
				if err := opts.Sleep(ctx, opts.Throttle); err != nil {
					zap.L().Debug("scan worker stopping", zap.Int("worker", idx), zap.Error(err))
					return
				}
			}
		}(i)
	}
	for i := 0; i < workers; i++ {
		<-done
	}
}

func runOne(ctx context.Context, idx int, processor ScanProcessor, job ports.ScanJob) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("scan job panicked",
				zap.Int("worker", idx),
				zap.String("url", job.URL),
				zap.Any("panic", r),
			)
		}
	}()
	processor.Process(ctx, job)
}
