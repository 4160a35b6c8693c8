package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Repositories and gateways MUST use these constants
// instead of hardcoded strings.
const (
	// Validation
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationSchedule     ErrorCode = "validation_invalid_schedule"
	ErrCodeValidationUnknownTask  ErrorCode = "validation_unknown_task"

	// Not Found
	ErrCodeNotFoundOrder   ErrorCode = "not_found_order"
	ErrCodeNotFoundSale    ErrorCode = "not_found_sale"
	ErrCodeNotFoundUser    ErrorCode = "not_found_user"
	ErrCodeNotFoundProduct ErrorCode = "not_found_product"

	// Conflict
	ErrCodeConflictTaskRunning ErrorCode = "conflict_task_running"

	// Internal/Upstream
	ErrCodeInternalDB                 ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected         ErrorCode = "internal_unexpected_error"
	ErrCodeInternalCooldownStore      ErrorCode = "internal_cooldown_store_error"
	ErrCodeUpstreamNotification       ErrorCode = "upstream_notification_unavailable"
	ErrCodeUpstreamNotificationOpen   ErrorCode = "upstream_notification_circuit_open"
	ErrCodeUpstreamMetricsUnavailable ErrorCode = "upstream_metrics_unavailable"
)

// IsNotFound reports whether the code belongs to the not_found family.
func (c ErrorCode) IsNotFound() bool {
	return strings.HasPrefix(string(c), "not_found_")
}

// IsTransient reports whether a retry on a later cycle may succeed.
// Database and upstream failures are transient; validation and not-found
// failures need a data fix first.
func (c ErrorCode) IsTransient() bool {
	s := string(c)
	return strings.HasPrefix(s, "internal_") || strings.HasPrefix(s, "upstream_")
}

// AppError is the standard application error type used throughout the engine.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf extracts the ErrorCode from err's chain, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
