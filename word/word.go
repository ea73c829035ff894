// Package word defines the 256-bit value type shared by every layer of the
// interpreter, executor and backend, plus the conversions between it and the
// 160-bit address / 256-bit hash types go-ethereum already provides.
package word

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Word is an unsigned 256-bit integer with modular arithmetic, matching the
// EVM word size used by the stack and by SSTORE/SLOAD values.
type Word = uint256.Int

// Address is a 160-bit account identifier.
type Address = common.Address

// Hash is an opaque 256-bit byte string.
type Hash = common.Hash

// Zero is the additive identity.
func Zero() Word { return *uint256.NewInt(0) }

// FromAddress left-pads an address into a word.
func FromAddress(a Address) Word {
	var w uint256.Int
	w.SetBytes(a.Bytes())
	return w
}

// ToAddress truncates a word to its low 160 bits.
func ToAddress(w Word) Address {
	return Address(w.Bytes20())
}

// FromHash interprets a hash as a big-endian word.
func FromHash(h Hash) Word {
	var w uint256.Int
	w.SetBytes(h.Bytes())
	return w
}

// ToHash renders a word as a big-endian 32-byte hash.
func ToHash(w Word) Hash {
	return Hash(w.Bytes32())
}

// IsZero reports whether w is the zero word.
func IsZero(w Word) bool {
	return w.IsZero()
}
