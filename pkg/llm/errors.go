package llm

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// StatusError is returned when the backend answers with a non-200 status.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.Code, e.Body)
}

// OutputParseError reports model output that does not match the requested
// structure. Raw holds the unparsed response for diagnosis.
type OutputParseError struct {
	Raw string
	Err error
}

func (e *OutputParseError) Error() string {
	return fmt.Sprintf("unparseable LLM output: %v", e.Err)
}

func (e *OutputParseError) Unwrap() error { return e.Err }

// IsConnectionError checks if the error is a network/connection error.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}
	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// IsQuotaError checks if the error indicates rate limiting or quota exhaustion.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusTooManyRequests {
		return true
	}

	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"quota",
		"rate limit",
		"too many requests",
		"resource_exhausted",
		"resource exhausted",
	}
	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// IsServerError reports a 5xx answer from the backend.
func IsServerError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code >= 500
}
