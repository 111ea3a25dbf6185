package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ledger operations. Handlers map these onto HTTP
// statuses in pkg/response.
var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientHolding = errors.New("insufficient holding quantity")
	ErrNotFound            = errors.New("resource not found")
	ErrContractInUse       = errors.New("contract has open positions")
	ErrStockInUse          = errors.New("stock has open holdings")
)

// ValidationError reports a rejected request input (non-positive quantity or
// price, missing selection).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
