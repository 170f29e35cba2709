package fleet

import (
	"errors"
	"fmt"
)

// Domain-level error values shared by the API client, view models and servers.
var (
	ErrNetwork                  = errors.New("network failure")
	ErrNotFound                 = errors.New("not found")
	ErrValidation               = errors.New("validation failure")
	ErrConflict                 = errors.New("conflict")
	ErrActionPending            = errors.New("action already in flight")
	ErrInvalidStats             = errors.New("invalid payment stats")
	ErrInvalidPayment           = errors.New("invalid payment")
	ErrBalanceMismatch          = errors.New("balance does not match ledger")
	ErrInvalidIdentifier        = errors.New("invalid identifier")
	ErrInvalidApplicationStatus = errors.New("invalid application status")
	ErrInvalidEntryType         = errors.New("invalid entry type")
	ErrInvalidPaymentSource     = errors.New("invalid payment source")
	ErrInvalidBillingType       = errors.New("invalid billing type")
	ErrInvalidAmount            = errors.New("invalid amount")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// ErrorCode returns the stable code of the outermost OperationError in err's
// chain, or an empty string.
func ErrorCode(err error) string {
	var operationError OperationError
	if errors.As(err, &operationError) {
		return operationError.code
	}
	return ""
}
