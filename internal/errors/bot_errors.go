package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCategory groups failures by how a caller should react to them
type ErrorCategory string

const (
	// Stop-the-process categories
	ErrorCategoryFatal         ErrorCategory = "FATAL"
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"

	// Categories a caller can log and move past
	ErrorCategoryValidation  ErrorCategory = "VALIDATION"
	ErrorCategoryCalibration ErrorCategory = "CALIBRATION"
	ErrorCategoryOrder       ErrorCategory = "ORDER"
	ErrorCategoryExchange    ErrorCategory = "EXCHANGE"

	// Transient categories
	ErrorCategoryNetwork   ErrorCategory = "NETWORK"
	ErrorCategoryTimeout   ErrorCategory = "TIMEOUT"
	ErrorCategoryRateLimit ErrorCategory = "RATE_LIMIT"
)

// RiskError is a categorized error carrying the component and operation that produced it
type RiskError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]interface{}
	Retryable  bool
}

// Error implements the error interface
func (e *RiskError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error
func (e *RiskError) Unwrap() error {
	return e.Underlying
}

// IsRetryable reports whether repeating the operation may succeed
func (e *RiskError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal reports whether the process should stop
func (e *RiskError) IsFatal() bool {
	return e.Category == ErrorCategoryFatal || e.Category == ErrorCategoryConfiguration
}

// New creates a categorized error without an underlying cause
func New(category ErrorCategory, component, operation, message string) *RiskError {
	return &RiskError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Retryable: isRetryableCategory(category),
	}
}

// Wrap attaches category and origin to an existing error. Wrap(nil, ...) returns nil.
func Wrap(err error, category ErrorCategory, component, operation string) *RiskError {
	if err == nil {
		return nil
	}
	return &RiskError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Context:    make(map[string]interface{}),
		Retryable:  isRetryableCategory(category),
	}
}

// WithContext adds a key/value pair to the error context
func (e *RiskError) WithContext(key string, value interface{}) *RiskError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRetryable overrides the category default
func (e *RiskError) WithRetryable(retryable bool) *RiskError {
	e.Retryable = retryable
	return e
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryRateLimit:
		return true
	default:
		return false
	}
}

// Categorize classifies a plain error by its message. Errors that already carry
// a category are returned as-is.
func Categorize(err error, component, operation string) *RiskError {
	if err == nil {
		return nil
	}

	var riskErr *RiskError
	if stderrors.As(err, &riskErr) {
		return riskErr
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "context deadline exceeded"):
		return Wrap(err, ErrorCategoryTimeout, component, operation)
	case strings.Contains(msg, "connection") || strings.Contains(msg, "dial") || strings.Contains(msg, "network"):
		return Wrap(err, ErrorCategoryNetwork, component, operation)
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return Wrap(err, ErrorCategoryRateLimit, component, operation)
	case strings.Contains(msg, "api error"):
		return Wrap(err, ErrorCategoryExchange, component, operation)
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "must be"):
		return Wrap(err, ErrorCategoryValidation, component, operation)
	}
	return Wrap(err, ErrorCategoryOrder, component, operation)
}

// CategoryOf returns the category of err, or "" when err carries none
func CategoryOf(err error) ErrorCategory {
	var riskErr *RiskError
	if stderrors.As(err, &riskErr) {
		return riskErr.Category
	}
	return ""
}

func NewValidationError(component, operation, message string) *RiskError {
	return New(ErrorCategoryValidation, component, operation, message)
}

func NewConfigurationError(component, operation, message string) *RiskError {
	return New(ErrorCategoryConfiguration, component, operation, message)
}

func NewCalibrationError(component, operation string, err error) *RiskError {
	return Wrap(err, ErrorCategoryCalibration, component, operation)
}

func NewExchangeError(component, operation string, err error) *RiskError {
	return Wrap(err, ErrorCategoryExchange, component, operation)
}
