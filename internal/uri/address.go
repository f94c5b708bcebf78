package uri

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"

	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

// payloadLen is the length of a Base58Check address hash (RIPEMD-160).
const payloadLen = 20

var (
	// ErrInvalidBase58 indicates invalid base58 encoding.
	ErrInvalidBase58 = errors.New("invalid base58 encoding")

	// ErrInvalidAddressLength indicates a payload that is not an address hash.
	ErrInvalidAddressLength = errors.New("invalid address length")

	//nolint:gochecknoglobals // Compiled once
	base58Shape = regexp.MustCompile("^[1-9A-HJ-NP-Za-km-z]{25,35}$")
)

// base58Versions lists the accepted Base58Check version bytes per scheme.
//
//nolint:gochecknoglobals // Static lookup table
var base58Versions = map[string][]byte{
	SchemeBitcoin:     {0x00, 0x05},
	SchemeBitcoinSV:   {0x00, 0x05},
	SchemeBitcoinCash: {0x00, 0x05},
	SchemeLitecoin:    {0x30, 0x32, 0x05},
	SchemeDogecoin:    {0x1e, 0x16},
	SchemeDash:        {0x4c, 0x10},
}

// segwitShapes and cashAddrShape only check the character set and length.
//
//nolint:gochecknoglobals // Compiled once
var (
	segwitShapes = map[string]*regexp.Regexp{
		SchemeBitcoin:  regexp.MustCompile(`^(bc1|BC1)[02-9ac-hj-np-zAC-HJ-NP-Z]{11,87}$`),
		SchemeLitecoin: regexp.MustCompile(`^(ltc1|LTC1)[02-9ac-hj-np-zAC-HJ-NP-Z]{11,86}$`),
	}
	cashAddrShape = regexp.MustCompile(`^[qp][02-9ac-hj-np-z]{41}$`)
)

// ValidateAddress checks address against the rules of scheme. Schemes without
// a known address format only require a non-empty address.
func ValidateAddress(scheme, address string) error {
	scheme = canonical(scheme)
	if address == "" {
		return bridgeerr.WithDetails(bridgeerr.ErrInvalidAddress, map[string]string{
			"scheme": scheme,
		})
	}

	if scheme == SchemeEthereum {
		return ValidateETHAddress(address)
	}

	if re, ok := segwitShapes[scheme]; ok && re.MatchString(address) {
		return nil
	}
	if scheme == SchemeBitcoinCash && cashAddrShape.MatchString(strings.ToLower(address)) {
		return nil
	}

	versions, ok := base58Versions[scheme]
	if !ok {
		return nil
	}
	return validateBase58(address, versions)
}

// decodeAddress decodes a Base58Check address into its version byte and
// 20-byte hash.
func decodeAddress(address string) (byte, []byte, error) {
	if !base58Shape.MatchString(address) {
		return 0, nil, ErrInvalidBase58
	}
	payload, version, err := base58.CheckDecode(address)
	switch {
	case errors.Is(err, base58.ErrChecksum):
		return 0, nil, err
	case err != nil:
		return 0, nil, fmt.Errorf("%w: %w", ErrInvalidBase58, err)
	case len(payload) != payloadLen:
		return 0, nil, ErrInvalidAddressLength
	}
	return version, payload, nil
}

func validateBase58(address string, versions []byte) error {
	version, _, err := decodeAddress(address)
	switch {
	case errors.Is(err, base58.ErrChecksum):
		return bridgeerr.WithDetails(bridgeerr.ErrInvalidChecksum, map[string]string{
			"address": address,
		})
	case err != nil:
		return bridgeerr.WithDetails(bridgeerr.ErrInvalidAddress, map[string]string{
			"address": address,
			"reason":  err.Error(),
		})
	}

	for _, v := range versions {
		if version == v {
			return nil
		}
	}
	return bridgeerr.WithDetails(bridgeerr.ErrUnsupportedVersion, map[string]string{
		"version": fmt.Sprintf("0x%02x", version),
	})
}
