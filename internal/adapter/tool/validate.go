package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArgument marks argument problems the model can fix by itself.
var ErrInvalidArgument = errors.New("invalid argument")

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

const base58Charset = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var addressPrefixes = []string{"addr", "addr_test", "stake", "stake_test"}

func decodeArgs(arguments string, dst any) error {
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	if err := json.Unmarshal([]byte(arguments), dst); err != nil {
		return fmt.Errorf("%w: arguments are not valid JSON: %v", ErrInvalidArgument, err)
	}
	return nil
}

// ValidateAddress accepts Shelley bech32 addresses (payment and stake, mainnet
// and testnets) with a valid checksum, and legacy Byron base58 addresses of any
// network. Byron addresses are only checked for charset and length.
func ValidateAddress(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidArgument)
	}
	byron := strings.HasPrefix(address, "Ae2") || strings.HasPrefix(address, "DdzFF")
	if byron || (!hasBech32Prefix(address) && isBase58(address)) {
		return validateByron(address)
	}
	return validateBech32(address)
}

func hasBech32Prefix(address string) bool {
	for _, p := range addressPrefixes {
		if strings.HasPrefix(address, p+"1") {
			return true
		}
	}
	return false
}

func isBase58(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(base58Charset, r) {
			return false
		}
	}
	return true
}

func validateByron(address string) error {
	if len(address) < 50 || len(address) > 130 {
		return fmt.Errorf("%w: %q has the wrong length for a Byron address", ErrInvalidArgument, address)
	}
	for _, r := range address {
		if !strings.ContainsRune(base58Charset, r) {
			return fmt.Errorf("%w: %q contains %q which is not valid base58", ErrInvalidArgument, address, r)
		}
	}
	return nil
}

func validateBech32(address string) error {
	if strings.ToLower(address) != address {
		return fmt.Errorf("%w: %q must be lower case", ErrInvalidArgument, address)
	}

	sep := strings.LastIndexByte(address, '1')
	if sep < 1 {
		return fmt.Errorf("%w: %q is not a Cardano address (expected addr1..., addr_test1..., stake1... or stake_test1...)", ErrInvalidArgument, address)
	}
	hrp, data := address[:sep], address[sep+1:]

	known := false
	for _, p := range addressPrefixes {
		if hrp == p {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: %q has unknown prefix %q (expected addr, addr_test, stake or stake_test)", ErrInvalidArgument, address, hrp)
	}
	if len(address) < 50 || len(address) > 130 || len(data) < 6 {
		return fmt.Errorf("%w: %q has the wrong length for a Cardano address", ErrInvalidArgument, address)
	}

	values := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		v := strings.IndexByte(bech32Charset, data[i])
		if v < 0 {
			return fmt.Errorf("%w: %q contains %q which is not valid bech32", ErrInvalidArgument, address, data[i])
		}
		values = append(values, byte(v))
	}
	if bech32Polymod(append(hrpExpand(hrp), values...)) != 1 {
		return fmt.Errorf("%w: %q has an invalid checksum, check for typos", ErrInvalidArgument, address)
	}
	return nil
}

func hrpExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]>>5)
	}
	out = append(out, 0)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]&31)
	}
	return out
}

func bech32Polymod(values []byte) uint32 {
	gen := [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

// ValidateTxHash requires a 64 character hex transaction id.
func ValidateTxHash(hash string) error {
	hash = strings.TrimSpace(hash)
	if len(hash) != 64 {
		return fmt.Errorf("%w: transaction hash must be 64 hex characters, got %d", ErrInvalidArgument, len(hash))
	}
	for _, r := range hash {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return fmt.Errorf("%w: transaction hash contains non-hex character %q", ErrInvalidArgument, r)
		}
	}
	return nil
}
