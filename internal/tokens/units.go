package tokens

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatUnits renders a raw integer amount scaled by 10^decimals as an exact
// decimal string without trailing zeros: (1, 18) -> "0.000000000000000001".
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// ParseUnits converts a human decimal string into a raw integer amount.
// More fractional digits than decimals, negatives, and exponents are rejected.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	if strings.ContainsAny(s, "eE") {
		return nil, fmt.Errorf("amount %q: exponent notation not accepted", s)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", s)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}
	return scaled.BigInt(), nil
}
