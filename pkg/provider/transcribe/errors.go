package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrTransient marks errors that are worth retrying: the request never
// reached the backend or timed out on the way.
var ErrTransient = errors.New("transcribe: transient provider error")

// Transient wraps err so that [IsTransient] reports true for it. A nil err
// stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err is a connectivity failure that a caller may
// retry: errors wrapped with [Transient], network timeouts, and failed dials.
// Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
