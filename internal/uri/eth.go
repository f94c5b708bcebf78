package uri

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

// IsValidETHAddress checks for 0x followed by 40 hex characters. The checksum
// is not verified.
func IsValidETHAddress(address string) bool {
	return len(address) == 42 && strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}

// ToChecksumAddress converts an Ethereum address to EIP-55 checksum format.
// If the input is invalid, it returns the original input unchanged.
func ToChecksumAddress(address string) string {
	if !IsValidETHAddress(address) {
		return address
	}

	addr := strings.ToLower(address[2:])

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(addr))
	hash := hex.EncodeToString(hasher.Sum(nil))

	result := make([]byte, 42)
	result[0] = '0'
	result[1] = 'x'

	for i := 0; i < 40; i++ {
		c := addr[i]
		// Uppercase letters whose hash nibble is >= 8
		if hash[i] >= '8' && c >= 'a' && c <= 'f' {
			//nolint:gosec // Safe: i bounded by loop [0,40), result size is 42
			result[i+2] = c - 32
		} else {
			//nolint:gosec // Safe: i bounded by loop [0,40), result size is 42
			result[i+2] = c
		}
	}

	return string(result)
}

// ValidateETHAddress checks format and, for mixed-case input, the EIP-55
// checksum. All lowercase and all uppercase addresses are accepted.
func ValidateETHAddress(address string) error {
	if !IsValidETHAddress(address) {
		return bridgeerr.WithDetails(bridgeerr.ErrInvalidAddress, map[string]string{
			"address": address,
		})
	}

	addrPart := address[2:]
	if addrPart == strings.ToLower(addrPart) || addrPart == strings.ToUpper(addrPart) {
		return nil
	}

	if expected := ToChecksumAddress(address); address != expected {
		return bridgeerr.WithDetails(bridgeerr.ErrInvalidChecksum, map[string]string{
			"expected": expected,
			"actual":   address,
		})
	}

	return nil
}
