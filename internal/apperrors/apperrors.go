package apperrors

import "fmt"

// ValidationError covers malformed or out-of-range input: non-positive
// point amounts, admin reasons that are too short, bad identifiers.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func Validation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError covers a missing user, reward, achievement or redemption.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

func NotFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

// InsufficientBalanceError is returned when a deduct or redeem exceeds
// the user's current spendable points.
type InsufficientBalanceError struct {
	Balance  int
	Required int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d points, need %d", e.Balance, e.Required)
}

func InsufficientBalance(balance, required int) error {
	return &InsufficientBalanceError{Balance: balance, Required: required}
}

// IneligibleError covers unmet tier/role restrictions and exhausted
// inventory.
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return e.Reason
}

func Ineligible(format string, args ...any) error {
	return &IneligibleError{Reason: fmt.Sprintf(format, args...)}
}

// ConflictError is returned when an operation targets a redemption that
// is not in the expected status.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func Conflict(format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// InternalError marks a ledger invariant violation detected inside a
// transaction. The transaction must abort; this is the only error class
// treated as unexpected by callers.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return e.Message
}

func Internal(format string, args ...any) error {
	return &InternalError{Message: fmt.Sprintf(format, args...)}
}
