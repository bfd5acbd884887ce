package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldpay/recordsync/pkg/syncerr"
)

func unavailable(msg string) error {
	return syncerr.New(syncerr.KindRemoteUnavailable, "test", errors.New(msg))
}

func TestBasicRetry(t *testing.T) {
	ctx := context.Background()
	retryer := NewRetryer(ctx, RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     1 * time.Second,
	})

	shouldRetry := retryer.ShouldWaitAndRetry(ctx, errors.New("generic unrecoverable error"))
	require.False(t, shouldRetry, "generic unrecoverable error should not be retried")

	shouldRetry = retryer.ShouldWaitAndRetry(ctx, syncerr.New(syncerr.KindNotFound, "test", nil))
	require.False(t, shouldRetry, "not found should not be retried")

	shouldRetry = retryer.ShouldWaitAndRetry(ctx, syncerr.ErrUnauthenticated)
	require.False(t, shouldRetry, "unauthenticated should not be retried")

	startTime := time.Now()
	shouldRetry = retryer.ShouldWaitAndRetry(ctx, unavailable("first attempt"))
	require.True(t, shouldRetry, "first failure should be retried")
	require.GreaterOrEqual(t, time.Since(startTime), 50*time.Millisecond)

	startTime = time.Now()
	shouldRetry = retryer.ShouldWaitAndRetry(ctx, unavailable("second attempt"))
	require.True(t, shouldRetry, "second failure should be retried")
	elapsed := time.Since(startTime)
	require.GreaterOrEqual(t, elapsed, 100*time.Millisecond, "second retry should wait twice the initial delay")
	require.Less(t, elapsed, 500*time.Millisecond)

	shouldRetry = retryer.ShouldWaitAndRetry(ctx, unavailable("third attempt"))
	require.False(t, shouldRetry, "retries are exhausted")

	// Success resets the counter.
	require.True(t, retryer.ShouldWaitAndRetry(ctx, nil))
	require.Equal(t, uint(0), retryer.Attempts())
}

func TestDelayDoubles(t *testing.T) {
	r := NewRetryer(context.Background(), RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second})

	require.Equal(t, time.Duration(0), r.Delay(0))
	require.Equal(t, 1*time.Second, r.Delay(1))
	require.Equal(t, 2*time.Second, r.Delay(2))
	require.Equal(t, 4*time.Second, r.Delay(3))
	require.Equal(t, 5*time.Second, r.Delay(4))
	require.Equal(t, 5*time.Second, r.Delay(64))
}

func TestHonorRetryAfter(t *testing.T) {
	ctx := context.Background()
	r := NewRetryer(ctx, RetryConfig{
		MaxAttempts:     1,
		InitialDelay:    time.Hour,
		MaxDelay:        2 * time.Hour,
		HonorRetryAfter: true,
	})

	err := &syncerr.Error{Kind: syncerr.KindRemoteUnavailable, RetryAfter: 10 * time.Millisecond}
	start := time.Now()
	require.True(t, r.ShouldWaitAndRetry(ctx, err))
	require.Less(t, time.Since(start), time.Second)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetryer(ctx, RetryConfig{InitialDelay: time.Hour})
	cancel()
	require.False(t, r.ShouldWaitAndRetry(ctx, unavailable("cancelled")))
}
