package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates that a record changed since it was read.
	ErrConflict = errors.New("conflict")

	// ErrTypeMismatch indicates that a publication variant is not compatible
	// with the declared or expected type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrBusinessRule indicates that an operation was rejected as a whole by a
	// registry rule.
	ErrBusinessRule = errors.New("business rule violation")

	// ErrRateLimited indicates that the request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that an external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrInternalError indicates an internal server error.
	ErrInternalError = errors.New("internal error")

	// ErrCancelled indicates that an operation was cancelled.
	ErrCancelled = errors.New("cancelled")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AlreadyExistsError provides details about a duplicate entity.
type AlreadyExistsError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// ConflictError reports a failed optimistic concurrency check.
type ConflictError struct {
	Entity          string
	ID              string
	ExpectedVersion int
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently (expected version %d)", e.Entity, e.ID, e.ExpectedVersion)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// TypeMismatchError reports a publication whose variant is not compatible
// with the type it was declared or expected to be.
type TypeMismatchError struct {
	Expected PublicationType
	Actual   PublicationType
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("publication type mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// BusinessRuleError rejects a whole operation.
type BusinessRuleError struct {
	Rule    string
	Message string
}

// Error implements the error interface.
func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *BusinessRuleError) Unwrap() error {
	return ErrBusinessRule
}

// RateLimitError provides details about a rate limit error.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// ExternalAPIError provides details about an external API error.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// EntryError is the failure of a single item of a batch, labelled with the
// title a user can recognise it by.
type EntryError struct {
	Index int
	Key   string
	Title string
	Err   error
}

// Error implements the error interface.
func (e *EntryError) Error() string {
	label := e.Title
	if label == "" {
		label = e.Key
	}
	return fmt.Sprintf("%q: %v", label, e.Err)
}

// Unwrap returns the underlying cause error.
func (e *EntryError) Unwrap() error {
	return e.Err
}

// BatchError bundles the per-entry failures of a batch operation. It is only
// returned once every entry has been attempted.
type BatchError struct {
	Operation string
	Failures  []*EntryError
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d entries failed", e.Operation, len(e.Failures))
	for _, f := range e.Failures {
		b.WriteString("\n - ")
		b.WriteString(f.Error())
	}
	return b.String()
}

// Unwrap exposes every entry failure to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Titles returns the titles of the failed entries, in batch order.
func (e *BatchError) Titles() []string {
	titles := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		titles[i] = f.Title
	}
	return titles
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(entity, id string) *AlreadyExistsError {
	return &AlreadyExistsError{
		Entity: entity,
		ID:     id,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewConflictError creates a new ConflictError.
func NewConflictError(entity, id string, expectedVersion int) *ConflictError {
	return &ConflictError{
		Entity:          entity,
		ID:              id,
		ExpectedVersion: expectedVersion,
	}
}

// NewTypeMismatchError creates a new TypeMismatchError.
func NewTypeMismatchError(expected, actual PublicationType) *TypeMismatchError {
	return &TypeMismatchError{
		Expected: expected,
		Actual:   actual,
	}
}

// NewBusinessRuleError creates a new BusinessRuleError.
func NewBusinessRuleError(rule, message string) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
	}
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{
		Source:     source,
		RetryAfter: retryAfter,
	}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// ErrorKind names the category of err for API responses and job reports.
func ErrorKind(err error) string {
	var batch *BatchError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &batch):
		return "batch"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "validation"
	case errors.Is(err, ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, ErrBusinessRule):
		return "business_rule"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrServiceUnavailable):
		return "unavailable"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "internal"
	}
}
