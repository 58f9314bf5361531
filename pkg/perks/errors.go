package perks

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the perks engine.
var (
	ErrInvalidUserID         = errors.New("invalid user id")
	ErrInvalidCardID         = errors.New("invalid card id")
	ErrInvalidBenefitID      = errors.New("invalid benefit id")
	ErrInvalidEventID        = errors.New("invalid event id")
	ErrInvalidStatus         = errors.New("invalid redemption status")
	ErrInvalidResetType      = errors.New("invalid reset type")
	ErrInvalidMoney          = errors.New("invalid money amount")
	ErrInvalidRemainingValue = errors.New("invalid remaining value")
	ErrInvalidPeriod         = errors.New("invalid period months")
	ErrUnrecognizedPeriod    = errors.New("unrecognized period months")
	ErrMissingPeriod         = errors.New("benefit has no period")
	ErrUnknownBenefit        = errors.New("unknown benefit")
	ErrCardMismatch          = errors.New("benefit does not belong to card")
	ErrUnknownCard           = errors.New("unknown card")
	ErrCatalogFetch          = errors.New("catalog fetch failed")
	ErrLedgerFetch           = errors.New("ledger fetch failed")
	ErrLedgerWrite           = errors.New("ledger write failed")
	ErrConflictingRedemption = errors.New("conflicting redemption at the same instant")
	ErrInvalidServiceConfig  = errors.New("invalid service config")
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
