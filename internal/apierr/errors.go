// Package apierr classifies failures of remote speech APIs into a small set
// of sentinels and retries the transient ones.
//
// Adapters wrap a sentinel with fmt.Errorf("%s: %w", msg, sentinel) so
// callers can branch with errors.Is.
package apierr

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrRateLimit indicates too many requests; retried.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrQuotaExceeded indicates the account ran out of credit; never retried.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTimeout covers request timeouts and 5xx responses; retried.
	ErrTimeout = errors.New("request timeout")

	// ErrAuthFailed indicates a rejected API key.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBadRequest is any other client error.
	ErrBadRequest = errors.New("bad request")
)

// FromStatus maps an HTTP status and its error message to a sentinel.
// A 429 whose message mentions quota or billing is a quota error, not a
// rate limit. Statuses with no mapping return nil.
func FromStatus(status int, msg string) error {
	switch status {
	case http.StatusTooManyRequests:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") {
			return ErrQuotaExceeded
		}
		return ErrRateLimit
	case http.StatusUnauthorized:
		return ErrAuthFailed
	case http.StatusRequestTimeout, http.StatusGatewayTimeout,
		http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return ErrTimeout
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound,
		http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return ErrBadRequest
	}
	return nil
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout)
}
