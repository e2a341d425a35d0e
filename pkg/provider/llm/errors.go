package llm

import (
	"errors"
	"fmt"
	"net/http"
	"syscall"
)

// Failure classes shared by all providers. Provider errors wrap at most one
// of them next to the backend's own error.
var (
	ErrUnauthorized  = errors.New("llm: unauthorized")
	ErrRateLimited   = errors.New("llm: rate limited")
	ErrModelNotFound = errors.New("llm: model not found")
	ErrUnreachable   = errors.New("llm: backend unreachable")
)

// Classify wraps err with the failure class matching the HTTP status of the
// backend's answer, or [ErrUnreachable] when the connection was refused.
// status is 0 when no response was received. Unclassified errors are
// returned unchanged.
func Classify(err error, status int) error {
	if err == nil {
		return nil
	}
	var class error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		class = ErrUnauthorized
	case status == http.StatusTooManyRequests:
		class = ErrRateLimited
	case status == http.StatusNotFound:
		class = ErrModelNotFound
	case errors.Is(err, syscall.ECONNREFUSED):
		class = ErrUnreachable
	default:
		return err
	}
	return fmt.Errorf("%w: %w", class, err)
}
