package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Run-level errors. Any of these aborts a migration run.
	ErrRemoteFetch = fmt.Errorf("remote catalog unavailable")
	ErrAuth        = fmt.Errorf("authentication failed")
	ErrStorage     = fmt.Errorf("journal storage failure")

	// Item-level errors, recorded on the item and never fatal to a run.
	ErrRemoteTransfer = fmt.Errorf("remote transfer failed")
	ErrRejected       = fmt.Errorf("rejected by destination")

	// Journal errors
	ErrItemNotFound      = fmt.Errorf("item not found")
	ErrChannelNotFound   = fmt.Errorf("channel not found")
	ErrRunNotFound       = fmt.Errorf("run not found")
	ErrInvalidTransition = fmt.Errorf("invalid status transition")
	ErrItemBusy          = fmt.Errorf("item transfer already in flight")
	ErrRunInProgress     = fmt.Errorf("a migration run is already in progress")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// StatusError is returned by provider clients when a request completes with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// NewStatusError builds a [StatusError], truncating long bodies.
func NewStatusError(code int, body []byte) *StatusError {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &StatusError{StatusCode: code, Body: string(body)}
}

// IsUnauthorized reports whether err carries an HTTP 401.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

// IsTransient reports whether err is worth retrying: network failures, timeouts, 408, 429 and 5xx.
//
// Client errors and context cancellation are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusRequestTimeout, se.StatusCode == http.StatusTooManyRequests:
			return true
		case se.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	if errors.Is(err, ErrRejected) || errors.Is(err, ErrStorage) || errors.Is(err, ErrAuth) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, ErrRemoteTransfer)
}

// IsFatal reports whether err must abort a whole migration run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStorage) || errors.Is(err, ErrAuth) || errors.Is(err, ErrRemoteFetch)
}
