package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

type Status int

const (
	StatusUnknown Status = iota
	StatusOK
	StatusOverLimit
)

// Description is what the remote told us about its rate limit on one response.
type Description struct {
	Status    Status
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

var limitHeaders = []string{
	"X-Ratelimit-Limit",
	"X-Rate-Limit-Limit",
	"Ratelimit-Limit",
}

var remainingHeaders = []string{
	"X-Ratelimit-Remaining",
	"X-Rate-Limit-Remaining",
	"Ratelimit-Remaining",
}

var resetHeaders = []string{
	"X-Ratelimit-Reset",
	"X-Rate-Limit-Reset",
	"Ratelimit-Reset",
	"Retry-After",
}

const defaultOverLimitWait = 60 * time.Second

// ExtractRateLimitData reads rate limit headers off a response. A 429 without
// usable headers is reported as over limit with a one minute reset.
func ExtractRateLimitData(statusCode int, header *http.Header) (*Description, error) {
	if header == nil {
		return nil, nil
	}
	now := time.Now()

	var limit, remaining int64 = -1, -1
	var resetAt time.Time

	for _, h := range limitHeaders {
		if v := header.Get(h); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, err
			}
			limit = n
			break
		}
	}

	for _, h := range remainingHeaders {
		if v := header.Get(h); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, err
			}
			remaining = n
			break
		}
	}

	for _, h := range resetHeaders {
		if v := header.Get(h); v != "" {
			resetAt = parseReset(now, v)
			if !resetAt.IsZero() {
				break
			}
		}
	}

	if statusCode == http.StatusTooManyRequests {
		if limit <= 0 {
			limit = 1
		}
		remaining = 0
		if resetAt.IsZero() {
			resetAt = now.Add(defaultOverLimitWait)
		}
		return &Description{
			Status:    StatusOverLimit,
			Limit:     limit,
			Remaining: remaining,
			ResetAt:   resetAt,
		}, nil
	}

	if limit < 0 && remaining < 0 && resetAt.IsZero() {
		return nil, nil
	}

	st := StatusOK
	if remaining == 0 {
		st = StatusOverLimit
	}
	return &Description{
		Status:    st,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// parseReset accepts delta seconds, a unix timestamp, or an HTTP date.
func parseReset(now time.Time, v string) time.Time {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n < 0 {
			return time.Time{}
		}
		// Anything that looks like an epoch is treated as one.
		if n > 1_000_000_000 {
			return time.Unix(n, 0)
		}
		return now.Add(time.Duration(n) * time.Second)
	}
	if t, err := http.ParseTime(v); err == nil {
		return t
	}
	return time.Time{}
}

// Wait is how long to hold off before the next request, zero if the limit is
// not exhausted.
func (d *Description) Wait() time.Duration {
	if d == nil || d.Status != StatusOverLimit || d.ResetAt.IsZero() {
		return 0
	}
	w := time.Until(d.ResetAt)
	if w < 0 {
		return 0
	}
	return w
}
