package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHelpers_ExtractRateLimitData(t *testing.T) {
	n := time.Now()

	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header: map[string][]string{
			"X-Ratelimit-Limit":     {"100"},
			"X-Ratelimit-Remaining": {"50"},
			"X-Ratelimit-Reset":     {"30"},
		},
	}

	rl, err := ExtractRateLimitData(resp.StatusCode, &resp.Header)
	require.NoError(t, err)
	require.Equal(t, StatusOK, rl.Status)
	require.Equal(t, int64(100), rl.Limit)
	require.Equal(t, int64(50), rl.Remaining)
	require.Equal(t, n.Add(time.Second*30).Unix(), rl.ResetAt.Unix())
	require.Zero(t, rl.Wait())

	resp = &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     map[string][]string{},
	}

	rl, err = ExtractRateLimitData(resp.StatusCode, &resp.Header)
	require.NoError(t, err)
	require.Equal(t, StatusOverLimit, rl.Status)
	require.Equal(t, int64(1), rl.Limit)
	require.Equal(t, int64(0), rl.Remaining)
	require.Equal(t, n.Add(time.Second*60).Unix(), rl.ResetAt.Unix())
}

func TestHelpers_ExtractRateLimitData_RetryAfter(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "5")

	rl, err := ExtractRateLimitData(http.StatusTooManyRequests, &header)
	require.NoError(t, err)
	require.Equal(t, StatusOverLimit, rl.Status)
	require.InDelta(t, (5 * time.Second).Seconds(), rl.Wait().Seconds(), 1)
}

func TestHelpers_ExtractRateLimitData_NoHeaders(t *testing.T) {
	header := http.Header{}
	rl, err := ExtractRateLimitData(http.StatusOK, &header)
	require.NoError(t, err)
	require.Nil(t, rl)
}

func TestHelpers_ExtractRateLimitData_BadLimit(t *testing.T) {
	header := http.Header{}
	header.Set("X-Ratelimit-Limit", "lots")
	_, err := ExtractRateLimitData(http.StatusOK, &header)
	require.Error(t, err)
}
