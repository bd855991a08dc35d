package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
)

// ParseRawBalance parses an upstream integer balance. Hex strings ("0x0", zero-padded
// 32-byte words) and base-10 strings are both accepted. An empty string is zero.
func ParseRawBalance(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		// ParseBig256 rejects "0x" with no digits.
		if len(s) == 2 {
			return new(big.Int), nil
		}
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, fmt.Errorf("invalid integer balance %q", s)
	}
	return v, nil
}

// ToFloat scales raw by 10^-decimals.
func ToFloat(raw *big.Int, decimals int32) float64 {
	if raw == nil || raw.Sign() == 0 {
		return 0
	}
	return decimal.NewFromBigInt(raw, -decimals).InexactFloat64()
}

// FormatBigInt renders amount scaled by 10^-decimals without trailing zeros.
// Example: amount=1234500000000000000, decimals=18 => "1.2345"
func FormatBigInt(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// ParseDecimalFloat parses a decimal string such as a USD price. Empty input is zero.
func ParseDecimalFloat(s string) (float64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}
