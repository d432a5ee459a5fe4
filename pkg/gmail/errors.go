package gmail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/landovsky/gmail-assistant-sub002/pkg/retry"

	"google.golang.org/api/googleapi"
)

// ErrCursorExpired is returned by ListHistory when Gmail no longer knows the
// start history id. Callers fall back to a bootstrap sync.
var ErrCursorExpired = errors.New("gmail: history cursor expired")

// TransientError wraps a timeout, rate-limit or 5xx failure that survived retries.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("gmail %s: transient: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a 4xx failure other than rate limiting.
type PermanentError struct {
	Op   string
	Code int
	Err  error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("gmail %s: status %d: %v", e.Op, e.Code, e.Err)
}
func (e *PermanentError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	var perr *PermanentError
	return errors.As(err, &perr) && perr.Code == http.StatusNotFound
}

// IsTransient reports whether err is a transient provider failure.
func IsTransient(err error) bool {
	var terr *TransientError
	return errors.As(err, &terr)
}

// classify turns a raw API error into a typed error with its retry flag.
func classify(op string, err error) retry.Outcome {
	if err == nil {
		return retry.OK()
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return retry.Transient(&TransientError{Op: op, Err: err})
		}
		return retry.Permanent(&PermanentError{Op: op, Code: apiErr.Code, Err: err})
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retry.Transient(&TransientError{Op: op, Err: err})
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return retry.Transient(&TransientError{Op: op, Err: err})
	}
	return retry.Permanent(&PermanentError{Op: op, Err: err})
}
