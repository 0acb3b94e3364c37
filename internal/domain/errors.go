package domain

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

// Error is a ledger error kind. Kinds are compared by Code, so a copy carrying a
// cause still matches the sentinel with errors.Is.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	// Retryable marks concurrency errors that a fresh read may resolve.
	Retryable bool

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.cause = cause
	return &c
}

var (
	ErrInvalidAmount          = &Error{Code: "INVALID_AMOUNT", Status: http.StatusBadRequest, Message: "amount must be greater than zero"}
	ErrInvalidHolderName      = &Error{Code: "INVALID_HOLDER_NAME", Status: http.StatusBadRequest, Message: "holder name must not be blank"}
	ErrInsufficientBalance    = &Error{Code: "INSUFFICIENT_BALANCE", Status: http.StatusBadRequest, Message: "insufficient balance"}
	ErrAccountNotFound        = &Error{Code: "ACCOUNT_NOT_FOUND", Status: http.StatusNotFound, Message: "account not found"}
	ErrAccountDeleted         = &Error{Code: "ACCOUNT_DELETED", Status: http.StatusNotFound, Message: "account is deleted"}
	ErrSameAccountTransfer    = &Error{Code: "SAME_ACCOUNT_TRANSFER", Status: http.StatusBadRequest, Message: "cannot transfer to the same account"}
	ErrInvalidTransferAmount  = &Error{Code: "INVALID_TRANSFER_AMOUNT", Status: http.StatusBadRequest, Message: "transfer amount must be greater than zero"}
	ErrTransferNotFound       = &Error{Code: "TRANSFER_NOT_FOUND", Status: http.StatusNotFound, Message: "transfer not found"}
	ErrInvalidStateTransition = &Error{Code: "INVALID_STATE_TRANSITION", Status: http.StatusConflict, Message: "transfer is not pending"}

	ErrVersionConflict        = &Error{Code: "VERSION_CONFLICT", Status: http.StatusConflict, Message: "record was modified concurrently", Retryable: true}
	ErrDuplicateAccountNumber = &Error{Code: "DUPLICATE_ACCOUNT_NUMBER", Status: http.StatusConflict, Message: "account number already exists", Retryable: true}

	ErrAccountCreationFailed = &Error{Code: "ACCOUNT_CREATION_FAILED", Status: http.StatusInternalServerError, Message: "failed to create account, please retry later"}
	ErrDepositFailed         = &Error{Code: "DEPOSIT_FAILED", Status: http.StatusConflict, Message: "deposit conflicted with concurrent updates, please retry later"}
	ErrWithdrawFailed        = &Error{Code: "WITHDRAW_FAILED", Status: http.StatusConflict, Message: "withdrawal conflicted with concurrent updates, please retry later"}
	ErrTransferFailed        = &Error{Code: "TRANSFER_FAILED", Status: http.StatusConflict, Message: "transfer could not be completed, please retry later"}

	ErrInternal = &Error{Code: "INTERNAL_ERROR", Status: http.StatusInternalServerError, Message: "unexpected error, please retry later"}
)

// IsRetryable reports whether the outermost ledger error in err's chain is a
// concurrency error. Terminal wrappers such as ErrDepositFailed are not retryable
// even though they wrap one.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Retryable
}

// AsError extracts the outermost ledger error, or ErrInternal for anything else.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}
