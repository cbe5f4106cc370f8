// Package core provides the browser boundary and error model for domkit.
package core

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone       ErrorCategory = iota // No error
	ErrCategoryAssertion                       // Element not found, text mismatch, row missing
	ErrCategoryTimeout                         // Operation timed out
	ErrCategoryConnection                      // Browser connection lost
	ErrCategoryPage                            // Stale element, navigation raced an operation
	ErrCategoryInput                           // Bad test data: unparsable date, unknown month
	ErrCategoryConfig                          // Invalid configuration, missing required field
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryAssertion:
		return "assertion"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategoryPage:
		return "page"
	case ErrCategoryInput:
		return "input"
	case ErrCategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}
