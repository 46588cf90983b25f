package types

import (
	"errors"
	"fmt"
)

// Common engine errors
var (
	// Parameter validation errors
	ErrNilRPC            = errors.New("rpc client is nil")
	ErrNilSigner         = errors.New("signer is nil")
	ErrNoWallets         = errors.New("no wallets provided")
	ErrZeroAmount        = errors.New("amount must be greater than 0")
	ErrInvalidSlippage   = errors.New("slippage bps must be <= 10000")
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrNoInstructions    = errors.New("requires at least one instruction")
	ErrPercentOutOfRange = errors.New("percentage must be between 0 and 100")

	// Account errors
	ErrAccountNotFound      = errors.New("account not found")
	ErrMintNotFound         = errors.New("mint account not found")
	ErrPoolNotFound         = errors.New("pool account not found")
	ErrBondingCurveNotFound = errors.New("bonding curve not found")

	// Curve math errors
	ErrEmptyReserves    = errors.New("reserve is zero")
	ErrFeeExceedsAmount = errors.New("fee exceeds gross amount")
	ErrDrainsReserve    = errors.New("amount would drain the reserve")

	// Transaction / submission errors
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrBundleRejected      = errors.New("bundle rejected by all endpoints")
)

// ValidationError represents input validation failures. These are raised
// before any network call and are never retryable.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// AccountLayoutError reports a fetched account whose raw data is shorter
// than the fixed binary schema requires. The decoder fails loudly instead
// of zero-filling missing fields.
type AccountLayoutError struct {
	Account string
	Want    int
	Got     int
}

func (e AccountLayoutError) Error() string {
	return fmt.Sprintf("account %s: data too short, want %d bytes, got %d", e.Account, e.Want, e.Got)
}

// SubmitError records a single relay endpoint's rejection during broadcast.
type SubmitError struct {
	Endpoint string
	Err      error
}

func (e SubmitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
}

func (e SubmitError) Unwrap() error {
	return e.Err
}

// RPCError wraps RPC failures with operation context.
type RPCError struct {
	Op  string
	Err error
}

func (e RPCError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e RPCError) Unwrap() error {
	return e.Err
}
