package retry

import (
	"context"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fieldpay/recordsync/pkg/syncerr"
)

var tracer = otel.Tracer("recordsync/retry")

// Retryer tracks attempts for one logical operation. It is not safe for
// concurrent use; create one per operation.
type Retryer struct {
	attempts        uint
	maxAttempts     uint
	initialDelay    time.Duration
	maxDelay        time.Duration
	honorRetryAfter bool
}

type RetryConfig struct {
	MaxAttempts     uint          // Retries after the first try. 0 means no limit.
	InitialDelay    time.Duration // Default is 1 second. Doubles on every retry.
	MaxDelay        time.Duration // Default is 60 seconds.
	HonorRetryAfter bool          // Use the server's suggested wait when present.
}

func NewRetryer(ctx context.Context, config RetryConfig) *Retryer {
	r := &Retryer{
		attempts:        0,
		maxAttempts:     config.MaxAttempts,
		initialDelay:    config.InitialDelay,
		maxDelay:        config.MaxDelay,
		honorRetryAfter: config.HonorRetryAfter,
	}
	if r.initialDelay == 0 {
		r.initialDelay = time.Second
	}
	if r.maxDelay == 0 {
		r.maxDelay = 60 * time.Second
	}
	return r
}

// Attempts returns the number of retries granted so far.
func (r *Retryer) Attempts() uint {
	return r.attempts
}

// Delay returns the wait before retry number n (1-based).
func (r *Retryer) Delay(n uint) time.Duration {
	if n == 0 {
		return 0
	}
	wait := r.initialDelay
	for i := uint(1); i < n; i++ {
		wait *= 2
		if wait >= r.maxDelay || wait <= 0 {
			return r.maxDelay
		}
	}
	if wait > r.maxDelay {
		wait = r.maxDelay
	}
	return wait
}

// ShouldWaitAndRetry sleeps for the backoff owed after err and reports whether
// the caller should try again. A nil error resets the attempt counter.
func (r *Retryer) ShouldWaitAndRetry(ctx context.Context, err error) bool {
	ctx, span := tracer.Start(ctx, "retry.ShouldWaitAndRetry")
	defer span.End()

	if err == nil {
		r.attempts = 0
		return true
	}
	if !syncerr.Retryable(err) {
		return false
	}

	r.attempts++
	l := ctxzap.Extract(ctx)

	if r.maxAttempts > 0 && r.attempts > r.maxAttempts {
		l.Debug("max attempts reached", zap.Error(err), zap.Uint("max_attempts", r.maxAttempts))
		return false
	}

	wait := r.Delay(r.attempts)

	if r.honorRetryAfter {
		if ra, ok := syncerr.RetryAfter(err); ok {
			wait = ra
			if wait > r.maxDelay {
				wait = r.maxDelay
			}
		}
	}

	span.SetAttributes(
		attribute.Int64("retry.attempt", int64(r.attempts)),
		attribute.Int64("retry.wait_ms", wait.Milliseconds()),
	)
	l.Debug("retrying operation", zap.Error(err), zap.Duration("wait", wait), zap.Uint("attempt", r.attempts))

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
