package helpers

import (
	"errors"
	"fmt"
	"time"

	"market-data-server/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type DataServerError struct {
	Message string
	Cause   error
}

func (e *DataServerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *DataServerError) Unwrap() error {
	return e.Cause
}

// UpstreamUnavailableError covers transport failures, timeouts and non-2xx replies.
type UpstreamUnavailableError struct {
	DataServerError
	Endpoint   string
	StatusCode int
}

// UpstreamRateLimitedError is returned for HTTP 429.
type UpstreamRateLimitedError struct {
	DataServerError
	Endpoint string
}

type PersistenceError struct{ DataServerError }
type DeliveryError struct{ DataServerError }
type ConfigurationError struct{ DataServerError }
type ValidationError struct{ DataServerError }

// ItemError is one failed element of a batch.
type ItemError struct {
	DataServerError
	Item string
}

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

func NewUpstreamUnavailable(endpoint string, status int, cause error) error {
	msg := fmt.Sprintf("upstream %s unavailable", endpoint)
	if status != 0 {
		msg = fmt.Sprintf("upstream %s returned status %d", endpoint, status)
	}
	return &UpstreamUnavailableError{
		DataServerError: DataServerError{Message: msg, Cause: cause},
		Endpoint:        endpoint,
		StatusCode:      status,
	}
}

func NewUpstreamRateLimited(endpoint string) error {
	return &UpstreamRateLimitedError{
		DataServerError: DataServerError{Message: fmt.Sprintf("upstream %s rate limited", endpoint)},
		Endpoint:        endpoint,
	}
}

func NewPersistenceError(op string, cause error) error {
	return &PersistenceError{DataServerError{Message: op + " failed", Cause: cause}}
}

func NewDeliveryError(clientID string, cause error) error {
	return &DeliveryError{DataServerError{Message: "send to " + clientID + " failed", Cause: cause}}
}

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{DataServerError{Message: fmt.Sprintf(format, args...)}}
}

func NewItemError(item, reason string) error {
	return &ItemError{DataServerError: DataServerError{Message: reason}, Item: item}
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsUpstreamError reports whether err came from a failed upstream call
func IsUpstreamError(err error) bool {
	var unavailable *UpstreamUnavailableError
	var limited *UpstreamRateLimitedError
	return errors.As(err, &unavailable) || errors.As(err, &limited)
}

func IsPersistenceError(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}

func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times with exponential backoff.
// Only used at startup; upstream calls are single attempt.
func RetryWithBackoff(log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		log.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, maxRetries, operation, err, delay)
		time.Sleep(delay)
	}

	return lastErr
}

// -----------------------------------------------------------------------------
// Error Handler
// -----------------------------------------------------------------------------

// ErrorHandler logs failures that must not stop the caller
type ErrorHandler struct {
	Logger *logger.Logger
}

func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	return &ErrorHandler{Logger: log}
}

// -----------------------------------------------------------------------------

// Handle logs err with its category and swallows it
func (e *ErrorHandler) Handle(err error, context string) {
	if err == nil {
		return
	}
	switch {
	case IsUpstreamError(err):
		e.Logger.Warning("Upstream error in %s: %v", context, err)
	case IsPersistenceError(err):
		e.Logger.Error("Persistence error in %s: %v", context, err)
	default:
		e.Logger.Error("Error in %s: %v", context, err)
	}
}

// -----------------------------------------------------------------------------

// Recover turns a panic in a job into a logged error
func (e *ErrorHandler) Recover(context string) {
	if r := recover(); r != nil {
		e.Logger.Error("Recovered panic in %s: %v", context, r)
	}
}
