package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zonebot/internal/retry"
)

func instantSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestDo_SucceedsOnThirdAttempt(t *testing.T) {
	var delays []time.Duration
	p := retry.Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, Sleep: instantSleep(&delays)}

	calls := 0
	err := p.Do(context.Background(), func(error) bool { return true }, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls, "exactly three attempts expected")
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays,
		"backoff should double from the base delay")
}

func TestDo_FirstAttemptSuccessSkipsSleep(t *testing.T) {
	var delays []time.Duration
	p := retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, Sleep: instantSleep(&delays)}

	calls := 0
	err := p.Do(context.Background(), func(error) bool { return true }, func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDo_NonRetryableSurfacesImmediately(t *testing.T) {
	var delays []time.Duration
	p := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: instantSleep(&delays)}

	rejected := errors.New("bad request")
	calls := 0
	err := p.Do(context.Background(), func(error) bool { return false }, func(context.Context) error {
		calls++
		return rejected
	})

	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDo_ExhaustedReturnsLastError(t *testing.T) {
	var delays []time.Duration
	p := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: instantSleep(&delays)}

	calls := 0
	err := p.Do(context.Background(), func(error) bool { return true }, func(context.Context) error {
		calls++
		return errors.New("server error")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "retry must be bounded, not infinite")
	assert.Len(t, delays, 2)
}

func TestDo_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := retry.Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Sleep: func(context.Context, time.Duration) error {
		t.Fatal("should not sleep after cancellation")
		return nil
	}}

	calls := 0
	err := p.Do(ctx, func(error) bool { return true }, func(context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroAttemptsStillRunsOnce(t *testing.T) {
	p := retry.Policy{}
	calls := 0
	err := p.Do(context.Background(), func(error) bool { return true }, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
