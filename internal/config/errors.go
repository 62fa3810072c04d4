package config

import (
	"errors"
	"time"
)

// Failure taxonomy surfaced to callers.
var (
	ErrProviderUnavailable     = errors.New("provider unavailable")
	ErrDecodeFailure           = errors.New("log or return data does not match expected layout")
	ErrPreconditionUnmet       = errors.New("precondition unmet")
	ErrSubmissionRejected      = errors.New("submission rejected")
	ErrUpstreamDataUnavailable = errors.New("upstream data unavailable")
)

// Sentinel errors for internal use.
var (
	ErrInvalidConfig      = errors.New("invalid config")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrInvalidBlockRange  = errors.New("invalid block range")
	ErrUnsupportedAction  = errors.New("unsupported action")
	ErrProviderRateLimit  = errors.New("provider rate limit exceeded")
	ErrCircuitOpen        = errors.New("circuit breaker is open")
	ErrAllProvidersFailed = errors.New("all providers failed")
	ErrKeyLoad            = errors.New("private key load failed")
	ErrSubmissionBusy     = errors.New("submission already in progress")
)

// TransientError wraps an error that another endpoint may not reproduce.
type TransientError struct {
	Err        error
	RetryAfter time.Duration // 0 = use default backoff
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient.
func NewTransientError(err error) error {
	return &TransientError{Err: err}
}

// NewTransientErrorWithRetry wraps with explicit retry delay.
func NewTransientErrorWithRetry(err error, retryAfter time.Duration) error {
	return &TransientError{Err: err, RetryAfter: retryAfter}
}

// IsTransient returns true if the error is transient.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// GetRetryAfter returns the retry delay if set, or 0.
func GetRetryAfter(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}

// Error codes, shared with API clients.
const (
	ErrorProviderUnavailable     = "ERROR_PROVIDER_UNAVAILABLE"
	ErrorProviderRateLimit       = "ERROR_PROVIDER_RATE_LIMIT"
	ErrorDecodeFailure           = "ERROR_DECODE_FAILURE"
	ErrorPreconditionUnmet       = "ERROR_PRECONDITION_UNMET"
	ErrorSubmissionRejected      = "ERROR_SUBMISSION_REJECTED"
	ErrorSubmissionBusy          = "ERROR_SUBMISSION_BUSY"
	ErrorUpstreamDataUnavailable = "ERROR_UPSTREAM_DATA_UNAVAILABLE"
	ErrorInvalidAddress          = "ERROR_INVALID_ADDRESS"
	ErrorInvalidRequest          = "ERROR_INVALID_REQUEST"
	ErrorInvalidBlockRange       = "ERROR_INVALID_BLOCK_RANGE"
	ErrorUnsupportedAction       = "ERROR_UNSUPPORTED_ACTION"
	ErrorDatabase                = "ERROR_DATABASE"
	ErrorNotFound                = "ERROR_NOT_FOUND"
	ErrorForbidden               = "ERROR_FORBIDDEN"
	ErrorInternal                = "ERROR_INTERNAL"
)

// ErrorCode maps an error onto its API error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrSubmissionBusy):
		return ErrorSubmissionBusy
	case errors.Is(err, ErrPreconditionUnmet):
		return ErrorPreconditionUnmet
	case errors.Is(err, ErrSubmissionRejected):
		return ErrorSubmissionRejected
	case errors.Is(err, ErrUpstreamDataUnavailable):
		return ErrorUpstreamDataUnavailable
	case errors.Is(err, ErrProviderRateLimit):
		return ErrorProviderRateLimit
	case errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrAllProvidersFailed), errors.Is(err, ErrCircuitOpen):
		return ErrorProviderUnavailable
	case errors.Is(err, ErrDecodeFailure):
		return ErrorDecodeFailure
	case errors.Is(err, ErrInvalidAddress):
		return ErrorInvalidAddress
	case errors.Is(err, ErrInvalidBlockRange):
		return ErrorInvalidBlockRange
	case errors.Is(err, ErrUnsupportedAction):
		return ErrorUnsupportedAction
	default:
		return ErrorInternal
	}
}
