package syncerr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("hydrate 42: %w", New(KindNotFound, "fetch-detail", errors.New("404")))

	require.ErrorIs(t, err, ErrNotFound)
	require.NotErrorIs(t, err, ErrRemoteUnavailable)
	require.Equal(t, KindNotFound, KindOf(err))
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := New(KindRemoteUnavailable, "list", cause)

	require.ErrorIs(t, err, cause)
	require.True(t, Retryable(err))
	require.False(t, Retryable(ErrUnauthenticated))
	require.False(t, Retryable(cause))
}

func TestKindOfUnknown(t *testing.T) {
	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	require.Equal(t, KindUnknown, KindOf(nil))
}

func TestRetryAfter(t *testing.T) {
	inner := &Error{Kind: KindRemoteUnavailable, Op: "detail", RetryAfter: 3 * time.Second}
	outer := New(KindLoadFailed, "page", inner)

	d, ok := RetryAfter(outer)
	require.True(t, ok)
	require.Equal(t, 3*time.Second, d)

	_, ok = RetryAfter(New(KindRemoteUnavailable, "detail", nil))
	require.False(t, ok)
}

func TestErrorMessage(t *testing.T) {
	require.Equal(t, "unauthenticated", ErrUnauthenticated.Error())
	require.Equal(t, "list: load_failed: boom", New(KindLoadFailed, "list", errors.New("boom")).Error())
	require.Equal(t, "detail: not_found", New(KindNotFound, "detail", nil).Error())
}
