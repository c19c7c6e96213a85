package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business logic error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeChargeNotFound    = "CHARGE_NOT_FOUND"
	ErrCodeAlreadyInProgress = "OPERATION_ALREADY_IN_PROGRESS"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeIllegalState      = "ILLEGAL_STATE"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
)

func NewChargeNotFoundError(externalID string) *DomainError {
	return &DomainError{
		Code:    ErrCodeChargeNotFound,
		Message: fmt.Sprintf("charge with external id %s not found", externalID),
	}
}

// NewOperationAlreadyInProgressError signals a re-entered flow: the charge
// already carries the flow's lock or submitted status. Callers should
// report a conflict upward, not retry immediately.
func NewOperationAlreadyInProgressError(flowName, externalID string) *DomainError {
	return &DomainError{
		Code:    ErrCodeAlreadyInProgress,
		Message: fmt.Sprintf("%s already in progress for charge %s", flowName, externalID),
	}
}

// NewConflictError signals an ambiguous mid-authorisation state: a
// concurrent authorisation is plausibly still resolving, so the caller may
// retry later.
func NewConflictError(externalID string, status ChargeStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeConflict,
		Message: fmt.Sprintf("charge %s is mid-authorisation in status %s", externalID, status),
	}
}

// NewIllegalStateError signals a charge in a status this flow can never
// proceed from. Fatal, not retryable.
func NewIllegalStateError(flowName, externalID string, status ChargeStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeIllegalState,
		Message: fmt.Sprintf("charge %s in status %s cannot be terminated by %s", externalID, status, flowName),
	}
}

func NewInvalidTransitionError(from, to ChargeStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

// IsErrorCode reports whether err is a DomainError carrying the given code.
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
