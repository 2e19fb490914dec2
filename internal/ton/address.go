// Package ton implements the SplitPayment settlement contract and a simulated
// chain that reproduces the serialized, message-at-a-time execution model of
// the host network.
package ton

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"spliton/pkg/errors"
)

// Address is a raw-form account address, "workchain:hash" with a 64 hex digit
// hash. Raw form compares with == and sorts lexicographically, which the batch
// protocol relies on for stable recipient iteration.
type Address string

var rawAddress = regexp.MustCompile(`^-?\d+:[0-9a-f]{64}$`)

// ParseAddress validates and normalizes a raw-form address.
func ParseAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !rawAddress.MatchString(s) {
		return "", errors.Wrap(errors.ErrInvalidAddress, fmt.Sprintf("parse %q", s))
	}
	return Address(s), nil
}

// MustParseAddress is for tests and constants.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// AddressFromSeed derives a deterministic basechain address from a seed string.
// The simulator uses it to allocate accounts without key management.
func AddressFromSeed(seed string) Address {
	sum := sha256.Sum256([]byte(seed))
	return Address("0:" + hex.EncodeToString(sum[:]))
}

func (a Address) String() string {
	return string(a)
}
