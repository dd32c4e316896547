package entity

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ConvertTokenToDecimal scales a raw on-chain integer amount down by the
// token's decimal exponent.
func ConvertTokenToDecimal(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	d := decimal.NewFromBigInt(amount, 0)
	if decimals == 0 {
		return d
	}
	return d.Div(ExponentToDecimal(decimals))
}

// ExponentToDecimal returns 10^decimals as a decimal.
func ExponentToDecimal(decimals int32) decimal.Decimal {
	return decimal.New(1, decimals)
}

// SafeDiv divides two decimals, returning zero on a zero denominator.
func SafeDiv(amount0, amount1 decimal.Decimal) decimal.Decimal {
	if amount1.IsZero() {
		return decimal.Zero
	}
	return amount0.Div(amount1)
}
