// Package syncerr defines the error kinds surfaced by the synchronization
// layer. Callers branch on kinds with errors.Is against the Err* sentinels or
// with KindOf.
package syncerr

import (
	"errors"
	"fmt"
	"time"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindLoadFailed is a page-level fetch or decode failure.
	KindLoadFailed
	// KindNotFound means a detail or fallback query matched no record.
	KindNotFound
	// KindRemoteUnavailable is a transport or server-side failure. It is the
	// only kind the hydration retry policy acts on.
	KindRemoteUnavailable
	// KindUnauthenticated means no valid bearer token was available, or the
	// remote rejected it.
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindLoadFailed:
		return "load_failed"
	case KindNotFound:
		return "not_found"
	case KindRemoteUnavailable:
		return "remote_unavailable"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

var (
	ErrLoadFailed        = &Error{Kind: KindLoadFailed}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrRemoteUnavailable = &Error{Kind: KindRemoteUnavailable}
	ErrUnauthenticated   = &Error{Kind: KindUnauthenticated}
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
	// RetryAfter is set when the remote told us how long to back off.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *Error of the same kind. This lets the
// package sentinels match any error of their kind regardless of Op or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// RetryAfter returns the server-suggested backoff carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var e *Error
	for errors.As(err, &e) {
		if e.RetryAfter > 0 {
			return e.RetryAfter, true
		}
		err = e.Err
		if err == nil {
			break
		}
	}
	return 0, false
}

// Retryable reports whether err is worth another attempt against the same
// endpoint.
func Retryable(err error) bool {
	return KindOf(err) == KindRemoteUnavailable
}
