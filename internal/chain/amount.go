package chain

import (
	"math/big"
	"strings"
)

// FormatUnits renders a base-unit amount with the given decimal places.
// Trailing fractional zeros are removed, along with the point itself when
// nothing remains: 10500000 with 6 decimals is "10.5", 10000000 is "10".
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	if amount.Sign() < 0 {
		return "-" + FormatUnits(new(big.Int).Abs(amount), decimals)
	}
	if decimals <= 0 {
		return amount.String()
	}

	str := amount.String()

	// Pad with leading zeros so there is at least one integer digit
	if len(str) <= decimals {
		str = strings.Repeat("0", decimals-len(str)+1) + str
	}

	point := len(str) - decimals
	whole, frac := str[:point], strings.TrimRight(str[point:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// FormatTokenAmount renders amount followed by the token symbol.
func FormatTokenAmount(amount *big.Int, decimals int, symbol string) string {
	s := FormatUnits(amount, decimals)
	if symbol == "" {
		return s
	}
	return s + " " + symbol
}

// ParseUnits parses a decimal string into base units.
// Input with more fractional digits than decimals is rejected rather than truncated.
func ParseUnits(amount string, decimals int, invalidAmountErr error) (*big.Int, error) {
	if amount == "" || strings.HasPrefix(amount, "-") || strings.HasPrefix(amount, "+") {
		return nil, invalidAmountErr
	}

	whole, frac, hasPoint := strings.Cut(amount, ".")
	if hasPoint && strings.Contains(frac, ".") {
		return nil, invalidAmountErr
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals || !allDigits(whole) || !allDigits(frac) {
		return nil, invalidAmountErr
	}

	frac += strings.Repeat("0", decimals-len(frac))
	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, invalidAmountErr
	}
	return v, nil
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
