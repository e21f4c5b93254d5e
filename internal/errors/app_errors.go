package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	// Fatal at construction time; the component must not be used afterwards
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"

	// Runtime lookup and balance failures reported to the caller
	ErrorCategoryNotFound          ErrorCategory = "NOT_FOUND"
	ErrorCategoryInsufficientFunds ErrorCategory = "INSUFFICIENT_FUNDS"
	ErrorCategoryValidation        ErrorCategory = "VALIDATION"
	ErrorCategoryData              ErrorCategory = "DATA"

	// Sink side, never surfaced into the core
	ErrorCategoryStorage ErrorCategory = "STORAGE"
)

// Sentinels matched by errors.Is against any AppError of the same category.
var (
	ErrInvalidConfig     = stderrors.New("invalid configuration")
	ErrNotFound          = stderrors.New("not found")
	ErrInsufficientFunds = stderrors.New("insufficient funds")
	ErrValidation        = stderrors.New("validation failed")
	ErrStorage           = stderrors.New("storage failure")
)

// AppError represents a categorized error with context
type AppError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]interface{}
	Retryable  bool
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error for error unwrapping
func (e *AppError) Unwrap() error {
	return e.Underlying
}

// Is lets errors.Is match the category sentinels
func (e *AppError) Is(target error) bool {
	switch target {
	case ErrInvalidConfig:
		return e.Category == ErrorCategoryConfiguration
	case ErrNotFound:
		return e.Category == ErrorCategoryNotFound
	case ErrInsufficientFunds:
		return e.Category == ErrorCategoryInsufficientFunds
	case ErrValidation:
		return e.Category == ErrorCategoryValidation
	case ErrStorage:
		return e.Category == ErrorCategoryStorage
	}
	return false
}

// IsRetryable returns whether this error can be retried
func (e *AppError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal returns whether this error should stop the process
func (e *AppError) IsFatal() bool {
	return e.Category == ErrorCategoryConfiguration
}

// NewAppError creates a new categorized error
func NewAppError(category ErrorCategory, component, operation, message string) *AppError {
	return &AppError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Retryable: isRetryableCategory(category),
	}
}

// WrapError wraps an existing error with component context
func WrapError(err error, category ErrorCategory, component, operation string) *AppError {
	if err == nil {
		return nil
	}

	return &AppError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Context:    make(map[string]interface{}),
		Retryable:  isRetryableCategory(category),
	}
}

// WithContext adds context information to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRetryable sets the retryable flag
func (e *AppError) WithRetryable(retryable bool) *AppError {
	e.Retryable = retryable
	return e
}

func isRetryableCategory(category ErrorCategory) bool {
	return category == ErrorCategoryStorage
}

// Common error constructors
func NewConfigurationError(component, operation, message string) *AppError {
	return NewAppError(ErrorCategoryConfiguration, component, operation, message)
}

func NewValidationError(component, operation, message string) *AppError {
	return NewAppError(ErrorCategoryValidation, component, operation, message)
}

func NewNotFoundError(component, operation, message string) *AppError {
	return NewAppError(ErrorCategoryNotFound, component, operation, message)
}

func NewInsufficientFundsError(component, operation, message string) *AppError {
	return NewAppError(ErrorCategoryInsufficientFunds, component, operation, message)
}

func NewDataError(component, operation string, err error) *AppError {
	return WrapError(err, ErrorCategoryData, component, operation)
}

func NewStorageError(component, operation string, err error) *AppError {
	return WrapError(err, ErrorCategoryStorage, component, operation)
}

// ErrorStats tracks error statistics
type ErrorStats struct {
	TotalErrors      int
	ErrorsByCategory map[ErrorCategory]int
	RecentErrors     []*AppError
	MaxRecentErrors  int
}

// NewErrorStats creates a new error statistics tracker
func NewErrorStats(maxRecentErrors int) *ErrorStats {
	if maxRecentErrors <= 0 {
		maxRecentErrors = 1
	}
	return &ErrorStats{
		ErrorsByCategory: make(map[ErrorCategory]int),
		RecentErrors:     make([]*AppError, 0, maxRecentErrors),
		MaxRecentErrors:  maxRecentErrors,
	}
}

// RecordError records an error in the statistics
func (es *ErrorStats) RecordError(err *AppError) {
	if err == nil {
		return
	}
	es.TotalErrors++
	es.ErrorsByCategory[err.Category]++

	es.RecentErrors = append(es.RecentErrors, err)

	// Keep only the most recent errors
	if len(es.RecentErrors) > es.MaxRecentErrors {
		es.RecentErrors = es.RecentErrors[1:]
	}
}

// GetErrorRate returns the error rate for a specific category
func (es *ErrorStats) GetErrorRate(category ErrorCategory) float64 {
	if es.TotalErrors == 0 {
		return 0.0
	}
	return float64(es.ErrorsByCategory[category]) / float64(es.TotalErrors)
}
