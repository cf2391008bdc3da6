// Package errors defines the error kinds returned by the orders service.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrNotFound is matched by every NotFoundError through errors.Is.
var ErrNotFound = stderrors.New("not found")

// ErrorKind classifies an error for callers that render user-facing messages.
type ErrorKind string

const (
	KindInvalidInput      ErrorKind = "invalid_input"
	KindValidation        ErrorKind = "validation"
	KindIllegalTransition ErrorKind = "illegal_transition"
	KindMissingReason     ErrorKind = "missing_reason"
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindInternal          ErrorKind = "internal"
)

// InvalidInputError reports bad numeric input or a malformed stored value.
type InvalidInputError struct {
	Field  string
	Reason string
}

func NewInvalidInputError(field, reason string) *InvalidInputError {
	return &InvalidInputError{Field: field, Reason: reason}
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidationError reports a malformed request.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// IllegalTransitionError reports a status change the lifecycle does not allow.
type IllegalTransitionError struct {
	From string
	To   string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition from %q to %q", e.From, e.To)
}

// MissingReasonError is returned when a cancellation has no reason attached.
type MissingReasonError struct {
	Status string
}

func (e *MissingReasonError) Error() string {
	return fmt.Sprintf("a reason is required to move an order to %q", e.Status)
}

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConflictError reports a lost update: the row changed between read and write.
// Callers re-fetch and retry; nothing here retries on their behalf.
type ConflictError struct {
	OrderID        string
	ExpectedStatus string
	Message        string
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("order %s is no longer in status %q", e.OrderID, e.ExpectedStatus)
}

// Kind returns the classification of err, unwrapping as needed.
func Kind(err error) ErrorKind {
	var (
		invalid    *InvalidInputError
		validation *ValidationError
		illegal    *IllegalTransitionError
		reason     *MissingReasonError
		conflict   *ConflictError
	)

	switch {
	case err == nil:
		return ""
	case stderrors.As(err, &invalid):
		return KindInvalidInput
	case stderrors.As(err, &validation):
		return KindValidation
	case stderrors.As(err, &illegal):
		return KindIllegalTransition
	case stderrors.As(err, &reason):
		return KindMissingReason
	case stderrors.Is(err, ErrNotFound):
		return KindNotFound
	case stderrors.As(err, &conflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// Field returns the offending field of err when one is known.
func Field(err error) string {
	var (
		invalid    *InvalidInputError
		validation *ValidationError
	)
	switch {
	case stderrors.As(err, &invalid):
		return invalid.Field
	case stderrors.As(err, &validation):
		return validation.Field
	case Kind(err) == KindIllegalTransition, Kind(err) == KindConflict:
		return "status"
	case Kind(err) == KindMissingReason:
		return "reason"
	}
	return ""
}

// HTTPStatus maps err to the response code handlers should send.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case KindInvalidInput, KindValidation, KindIllegalTransition, KindMissingReason:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
