package types

import (
	"github.com/gagliardetto/solana-go"
)

// ValidateAmount validates a non-zero amount.
func ValidateAmount(name string, amount uint64) error {
	if amount == 0 {
		return NewValidationError(name, "must be greater than 0")
	}
	return nil
}

// ValidateSlippage validates slippage basis points.
func ValidateSlippage(slippageBps uint64) error {
	if slippageBps > 10000 {
		return NewValidationError("slippageBps", "must be <= 10000 (100%)")
	}
	return nil
}

// ValidatePercent validates a 0-100 percentage.
func ValidatePercent(name string, pct uint8) error {
	if pct > 100 {
		return NewValidationError(name, "must be between 0 and 100")
	}
	return nil
}

// ValidatePublicKey validates a public key is not zero.
func ValidatePublicKey(name string, key solana.PublicKey) error {
	if key.IsZero() {
		return NewValidationError(name, "cannot be zero")
	}
	return nil
}
