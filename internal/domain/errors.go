package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateInFlight  = errors.New("duplicate in-flight request")
	ErrStateConflict      = errors.New("job state changed concurrently")
	ErrProviderTerminal   = errors.New("provider rejected request")
	ErrProviderTransient  = errors.New("provider temporarily unavailable")
	ErrProviderTimeout    = errors.New("provider timed out")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrStorageMigration   = errors.New("storage migration failed")
)

// Retryable reports whether a caller seeing err should be told to try again
// later rather than that the request was rejected.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation), errors.Is(err, ErrProviderTerminal), errors.Is(err, ErrForbidden):
		return false
	}
	return true
}
