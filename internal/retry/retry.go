// Package retry implements a small parameterized retry policy: a bounded
// number of attempts with exponential backoff doubling from a fixed base.
package retry

import (
	"context"
	"time"
)

// Policy controls how an operation is retried. Sleep is injectable so
// tests can run with a fake clock; a nil Sleep waits on a real timer.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Default matches the gateway's bounded retry discipline.
var Default = Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}

// Do runs fn up to MaxAttempts times. A failure is retried only when
// retryable reports it transient; other errors, and the last attempt's
// error, are returned as-is.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = realSleep
	}

	delay := p.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= attempts || !retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
		delay *= 2
	}
}

func realSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
