package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusError is an HTTP-equivalent failure reported by a remote dependency.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Op == "" {
		return fmt.Sprintf("status %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, msg)
}

// Terminal reports whether retrying the same request cannot succeed.
func (e *StatusError) Terminal() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestEntityTooLarge:
		return true
	}
	return false
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as terminal so Execute propagates it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsTerminal classifies err. Terminal errors skip the remaining attempts.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) {
		return true
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return true
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Terminal()
	}
	return false
}
