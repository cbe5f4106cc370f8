package core

import (
	"errors"
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: shadow_host_not_found, column_not_found, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an ExecutionError with the same code, so
// errors.Is(err, ErrColumnNotFound) holds for copies made by the With* helpers.
func (e *ExecutionError) Is(target error) bool {
	var t *ExecutionError
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithMessagef is WithMessage with formatting.
func (e *ExecutionError) WithMessagef(format string, args ...interface{}) *ExecutionError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// CategoryOf returns the category of the first ExecutionError in err's chain.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryNone
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ErrCategoryNone
}

// CodeOf returns the machine code of the first ExecutionError in err's chain.
func CodeOf(err error) string {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// Predefined errors
var (
	// Assertion errors
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "element_not_found",
		Message:  "element not found",
	}
	ErrElementNotVisible = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "element_not_visible",
		Message:  "element not visible",
	}
	ErrTextMismatch = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "text_mismatch",
		Message:  "text does not match expected value",
	}
	ErrConditionNotMet = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "condition_not_met",
		Message:  "condition was not met",
	}

	// Shadow DOM errors
	ErrShadowHostNotFound = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "shadow_host_not_found",
		Message:  "shadow host not found",
	}
	ErrElementNotFoundInShadow = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "element_not_found_in_shadow",
		Message:  "element not found in shadow DOM",
	}
	ErrNoShadowRoot = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "no_shadow_root",
		Message:  "element has no open shadow root",
	}

	// Calendar errors
	ErrInvalidMonthName = &ExecutionError{
		Category: ErrCategoryInput,
		Code:     "invalid_month_name",
		Message:  "invalid month name",
	}
	ErrInvalidDate = &ExecutionError{
		Category: ErrCategoryInput,
		Code:     "invalid_date",
		Message:  "invalid date",
	}
	ErrDateRangeViolation = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "date_range_violation",
		Message:  "start date is after end date",
	}
	ErrDateNotReachable = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "date_not_reachable",
		Message:  "target date not reached within navigation budget",
	}

	// Table errors
	ErrColumnNotFound = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "column_not_found",
		Message:  "column not found",
	}
	ErrHeaderNotFound = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "header_not_found",
		Message:  "header not found",
	}
	ErrRowNotFound = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "row_not_found",
		Message:  "row not found",
	}
	ErrCellNotFound = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "cell_not_found",
		Message:  "cell not found",
	}

	// Dialog errors
	ErrNoDialog = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "no_dialog",
		Message:  "no dialog was opened",
	}

	// Frame and tab errors
	ErrNotAFrame = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "not_a_frame",
		Message:  "element is not an iframe or frame",
	}
	ErrTabNotFound = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "tab_not_found",
		Message:  "no open tab matches",
	}

	// Timeout errors
	ErrTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "timeout",
		Message:  "operation timed out",
	}
	ErrWaitTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "wait_timeout",
		Message:  "wait condition timed out",
	}

	// Page errors
	ErrStaleElement = &ExecutionError{
		Category: ErrCategoryPage,
		Code:     "stale_element",
		Message:  "element belongs to a document that is no longer loaded",
	}

	// Connection errors
	ErrBrowserDisconnected = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "browser_disconnected",
		Message:  "browser connection lost",
	}
	ErrBrowserUnreachable = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "browser_unreachable",
		Message:  "could not connect to browser",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrMissingRequired = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "missing_required",
		Message:  "missing required field",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}
