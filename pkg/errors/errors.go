// Package errors defines the structured error taxonomy of the reconciliation
// core. Every error carries a category, a machine-readable code and enough
// context (statement/line/match/issue IDs, current status) for a caller to
// decide between retrying and surfacing the failure.
package errors

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	// CategoryValidation covers malformed input; the caller's fault, never retried
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound covers references to absent entities
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryPrecondition covers state-precondition violations; the caller
	// must re-fetch current state before retrying
	CategoryPrecondition ErrorCategory = "precondition"
	// CategoryConflict covers optimistic-lock conflicts; safe to retry whole
	CategoryConflict ErrorCategory = "conflict"
	// CategoryGate covers sign-off business-rule failures; not retryable
	// without a data change
	CategoryGate ErrorCategory = "gate"
	// CategoryStorage covers failures of the underlying store
	CategoryStorage ErrorCategory = "storage"
	// CategoryInternal covers unexpected internal failures
	CategoryInternal ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeNotFound         ErrorCode = "not_found"

	CodeAlreadyMatched ErrorCode = "already_matched"
	CodeIssueNotOpen   ErrorCode = "issue_not_open"
	CodeBadTransition  ErrorCode = "bad_transition"

	CodeConcurrentModification ErrorCode = "concurrent_modification"

	CodeVarianceNotZero  ErrorCode = "variance_not_zero"
	CodeOpenIssuesRemain ErrorCode = "open_issues_remain"

	CodeStorageFailure  ErrorCode = "storage_failure"
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// Context provides additional information about the error
type Context map[string]interface{}

// ReconcilerError is the base error type for all core errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// IsRetryable reports whether the whole operation may be retried as-is.
// Only optimistic-lock conflicts qualify; every other category needs either
// a data change or a corrected request first.
func (e *ReconcilerError) IsRetryable() bool {
	return e.Code == CodeConcurrentModification
}

// GetExitCode returns an appropriate process exit code for the error
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryValidation:
		return 2
	case CategoryNotFound:
		return 3
	case CategoryPrecondition, CategoryGate:
		return 4
	case CategoryConflict:
		return 5
	case CategoryStorage, CategoryInternal:
		return 6
	default:
		return 1
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// Taxonomy constructors

// ValidationError creates an error for malformed input
func ValidationError(field string, value interface{}, reason string) *ReconcilerError {
	return New(CategoryValidation, CodeValidationFailed,
		fmt.Sprintf("invalid %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value)
}

// NotFoundError creates an error for a referenced entity that does not exist
func NotFoundError(entity string, id uuid.UUID) *ReconcilerError {
	return New(CategoryNotFound, CodeNotFound,
		fmt.Sprintf("%s %s not found", entity, id)).
		WithContext("entity", entity).
		WithContext("id", id.String())
}

// AlreadyMatchedError creates an error for a line that already carries a
// confirmed match; the prior match must be rejected first
func AlreadyMatchedError(lineID, matchID uuid.UUID) *ReconcilerError {
	return New(CategoryPrecondition, CodeAlreadyMatched,
		fmt.Sprintf("statement line %s already has confirmed match %s", lineID, matchID)).
		WithContext("line_id", lineID.String()).
		WithContext("match_id", matchID.String())
}

// RecordAlreadyMatchedError creates an error for a ledger record that a
// confirmed match already books; the record cannot back a second one
func RecordAlreadyMatchedError(recordID, matchID uuid.UUID) *ReconcilerError {
	return New(CategoryPrecondition, CodeAlreadyMatched,
		fmt.Sprintf("ledger record %s is already booked by confirmed match %s", recordID, matchID)).
		WithContext("ledger_record_id", recordID.String()).
		WithContext("match_id", matchID.String())
}

// IssueNotOpenError creates an error for resolving an issue that is not open
func IssueNotOpenError(issueID uuid.UUID, status string) *ReconcilerError {
	return New(CategoryPrecondition, CodeIssueNotOpen,
		fmt.Sprintf("issue %s is %s, not open", issueID, status)).
		WithContext("issue_id", issueID.String()).
		WithContext("status", status)
}

// TransitionError creates an error for an illegal status transition
func TransitionError(entity string, id uuid.UUID, from, to string) *ReconcilerError {
	return New(CategoryPrecondition, CodeBadTransition,
		fmt.Sprintf("%s %s cannot transition from %s to %s", entity, id, from, to)).
		WithContext("entity", entity).
		WithContext("id", id.String()).
		WithContext("from", from).
		WithContext("to", to)
}

// ConcurrentModificationError creates an error for a failed conditional
// update; the caller saw stale state and may retry the whole operation
func ConcurrentModificationError(entity string, id uuid.UUID) *ReconcilerError {
	return New(CategoryConflict, CodeConcurrentModification,
		fmt.Sprintf("%s %s was modified concurrently", entity, id)).
		WithContext("entity", entity).
		WithContext("id", id.String())
}

// VarianceNotZeroError creates a sign-off gate error for non-zero variance
func VarianceNotZeroError(statementID uuid.UUID, variance string) *ReconcilerError {
	return New(CategoryGate, CodeVarianceNotZero,
		fmt.Sprintf("statement %s has non-zero variance %s", statementID, variance)).
		WithContext("statement_id", statementID.String()).
		WithContext("net_variance", variance)
}

// OpenIssuesRemainError creates a sign-off gate error for unresolved issues
func OpenIssuesRemainError(statementID uuid.UUID, openCount int) *ReconcilerError {
	return New(CategoryGate, CodeOpenIssuesRemain,
		fmt.Sprintf("statement %s has %d open issues", statementID, openCount)).
		WithContext("statement_id", statementID.String()).
		WithContext("open_issues", openCount)
}

// StorageError wraps a failure of the underlying store
func StorageError(operation string, err error) *ReconcilerError {
	return Wrap(err, CategoryStorage, CodeStorageFailure,
		fmt.Sprintf("storage failure during %s", operation)).
		WithContext("operation", operation)
}

// InternalError wraps an unexpected internal failure
func InternalError(operation string, err error) *ReconcilerError {
	return Wrap(err, CategoryInternal, CodeUnexpectedError,
		fmt.Sprintf("unexpected error during %s", operation)).
		WithContext("operation", operation)
}

// Utility functions

// IsReconcilerError checks if an error is a ReconcilerError
func IsReconcilerError(err error) bool {
	_, ok := err.(*ReconcilerError)
	return ok
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// HasCode reports whether the error chain contains a ReconcilerError with the
// given code
func HasCode(err error, code ErrorCode) bool {
	if re, ok := AsReconcilerError(err); ok {
		return re.Code == code
	}
	return false
}

// IsRetryable reports whether an arbitrary error is a retryable conflict
func IsRetryable(err error) bool {
	if re, ok := AsReconcilerError(err); ok {
		return re.IsRetryable()
	}
	return false
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}
	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return Wrap(err, category, code, message)
}
