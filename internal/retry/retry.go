// Package retry provides a fixed-schedule backoff executor for operations
// whose failures are expected to be transient (pushes, remote metadata
// edits). It must not be used around operations whose failure indicates a
// local logic error.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSchedule is the wait applied after each failed attempt. The
// final zero means "last attempt, no further wait". The total attempt
// count equals the schedule length.
var DefaultSchedule = []time.Duration{
	10 * time.Second,
	10 * time.Second,
	60 * time.Second,
	300 * time.Second,
	0,
}

// Policy executes operations with a fixed backoff schedule. No jitter,
// no dynamic growth.
type Policy struct {
	Schedule []time.Duration

	// sleep hook for tests, defaults to interruptible context sleep
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a policy with the default backoff schedule.
func New() *Policy {
	return &Policy{Schedule: DefaultSchedule}
}

// Do runs fn until it succeeds or the schedule is exhausted. Every failure
// is logged; the final failure is returned to the caller unmodified.
func (p *Policy) Do(ctx context.Context, log *slog.Logger, name string, fn func(ctx context.Context) error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for i, wait := range p.Schedule {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		if i == len(p.Schedule)-1 {
			break
		}

		log.Error("operation failed, retrying after backoff", "op", name, "wait", wait, "err", err)
		if serr := sleep(ctx, wait); serr != nil {
			return serr
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
