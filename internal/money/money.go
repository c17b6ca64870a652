// Package money converts between the display unit (ether) and the ledger
// base unit (wei).
package money

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/example/chainride/internal/models"
)

const Decimals = 18

// ToWei converts a display amount to base units. Fractions below one wei
// are rejected rather than truncated.
func ToWei(amount decimal.Decimal) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, models.Validationf("amount must not be negative")
	}
	shifted := amount.Shift(Decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, models.Validationf("amount %s has more than %d decimal places", amount, Decimals)
	}
	return shifted.BigInt(), nil
}

// FromWei converts base units to the display unit.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -Decimals)
}

// Parse reads a display amount from user input.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, models.Validationf("invalid amount %q", s)
	}
	return d, nil
}

// Positive ensures a price is usable for a ride or payment.
func Positive(d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: price must be greater than zero", models.ErrValidation)
	}
	return nil
}
