// Package chainiface defines the ChainClient boundary (spec §4.2) and the
// on-chain-shaped types the daemon reads. The concrete chain node and its
// signature scheme are an external collaborator per spec §1 — this package
// owns the interface, address normalization, the signature helpers the
// request router needs, a thin JSON/REST binding (HTTPClient) and an
// in-memory test double (Fake).
package chainiface

import (
	"encoding/hex"
	"strings"
)

// Address is a 20-byte on-chain address, always compared case-insensitively
// through AddressEqual per spec §9 ("Case-insensitive addresses. ... compare
// in only one place").
type Address [20]byte

// String renders the address as a 0x-prefixed lowercase hex string.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether the address is the zero value.
func (a Address) IsZero() bool {
	return a == Address{}
}

// ParseAddress parses a 0x-prefixed or bare hex string into an Address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.TrimPrefix(s, "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, err
	}
	if len(b) != 20 {
		return Address{}, hex.ErrLength
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// AddressEqual is the single comparison point for addresses, per spec §9.
func AddressEqual(a, b Address) bool {
	return a == b
}

// AddressEqualString compares a normalized Address against a raw string,
// case-insensitively, without allocating a second Address when parsing
// fails (callers treat a parse failure as "not equal").
func AddressEqualString(a Address, raw string) bool {
	parsed, err := ParseAddress(raw)
	if err != nil {
		return false
	}
	return AddressEqual(a, parsed)
}
