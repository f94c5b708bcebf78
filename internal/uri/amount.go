package uri

import (
	"math/big"
	"strings"
)

// Decimal places of the amount unit used in BIP21 URIs.
const (
	bitcoinDecimals = 8
	etherDecimals   = 18
)

// ParseDecimalAmount parses a decimal amount string to big.Int with the given decimal places.
// For example, "1.5" with 8 decimals returns 150000000. Extra precision is rejected.
//
//nolint:gocognit,gocyclo // Decimal parsing requires sequential validation steps
func ParseDecimalAmount(amount string, decimalPlaces int, invalidAmountErr error) (*big.Int, error) {
	if amount == "" || strings.HasPrefix(amount, "-") || strings.HasPrefix(amount, "+") {
		return nil, invalidAmountErr
	}

	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		return nil, invalidAmountErr
	}

	intPart := parts[0]
	decPart := ""
	if len(parts) == 2 {
		decPart = parts[1]
	}

	if intPart == "" {
		intPart = "0"
	}
	intVal, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, invalidAmountErr
	}

	multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimalPlaces)), nil)
	result := new(big.Int).Mul(intVal, multiplier)

	if decPart != "" {
		for _, c := range decPart {
			if c < '0' || c > '9' {
				return nil, invalidAmountErr
			}
		}
		if len(decPart) > decimalPlaces {
			return nil, invalidAmountErr
		}
		decPart += strings.Repeat("0", decimalPlaces-len(decPart))

		decVal, ok := new(big.Int).SetString(decPart, 10)
		if !ok {
			return nil, invalidAmountErr
		}
		result.Add(result, decVal)
	}

	return result, nil
}

// FormatDecimalAmount converts a big.Int to a human-readable string with the given decimal places.
// Trailing zeros after the decimal point are removed.
func FormatDecimalAmount(amount *big.Int, decimalPlaces int) string {
	if amount == nil {
		return "0"
	}

	str := amount.String()
	for len(str) <= decimalPlaces {
		str = "0" + str
	}

	decimalPos := len(str) - decimalPlaces
	result := str[:decimalPos] + "." + str[decimalPos:]

	for len(result) > 1 && result[len(result)-1] == '0' && result[len(result)-2] != '.' {
		result = result[:len(result)-1]
	}

	return result
}

// parseScientific parses EIP-681 numbers such as "2.014e18" into an integer.
func parseScientific(s string, invalidAmountErr error) (*big.Int, error) {
	mantissa, exp, found := strings.Cut(strings.ToLower(s), "e")
	if !found {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok || v.Sign() < 0 {
			return nil, invalidAmountErr
		}
		return v, nil
	}

	e, ok := new(big.Int).SetString(exp, 10)
	if !ok || e.Sign() < 0 || !e.IsInt64() || e.Int64() > 77 {
		return nil, invalidAmountErr
	}
	return ParseDecimalAmount(mantissa, int(e.Int64()), invalidAmountErr)
}
