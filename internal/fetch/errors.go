package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Kind classifies a page fetch failure so callers can branch on the cause
// instead of matching error strings.
type Kind int

const (
	// KindHTTP is an ordinary HTTP error status (5xx and unclassified 4xx).
	KindHTTP Kind = iota
	// KindTimeout is a navigation or network timeout.
	KindTimeout
	// KindBlocked is an aborted or actively refused request, the signal the
	// target site emits when it has flagged the client as a bot. Retry logic
	// treats it with an extended cool-down.
	KindBlocked
	// KindNotFound marks a permanently invalid item; never retried.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindBlocked:
		return "blocked"
	case KindNotFound:
		return "not found"
	default:
		return "http error"
	}
}

// PageError is a classified fetch failure.
type PageError struct {
	Kind   Kind
	Status int
	URL    string
	Err    error
}

func (e *PageError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *PageError) Unwrap() error { return e.Err }

// KindOf extracts the classification from err, defaulting to KindHTTP.
func KindOf(err error) Kind {
	var pe *PageError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindHTTP
}

// IsBlocked reports whether err carries the blocked/detection signal.
func IsBlocked(err error) bool { return isKind(err, KindBlocked) }

// IsNotFound reports whether err marks a permanently invalid item.
func IsNotFound(err error) bool { return isKind(err, KindNotFound) }

func isKind(err error, k Kind) bool {
	var pe *PageError
	return errors.As(err, &pe) && pe.Kind == k
}

// classifyStatus maps an HTTP status to a failure kind. 403 and 429 are
// treated as active blocking; 404/410 as permanently gone.
func classifyStatus(status int) Kind {
	switch status {
	case 403, 429:
		return KindBlocked
	case 404, 410:
		return KindNotFound
	default:
		return KindHTTP
	}
}

// classifyTransportError maps a transport-level error to a failure kind.
// Connection resets and refused/aborted connections look like the remote side
// dropping a flagged client, so they classify as blocked.
func classifyTransportError(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return KindBlocked
	}
	msg := err.Error()
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "request aborted") {
		return KindBlocked
	}
	return KindHTTP
}
