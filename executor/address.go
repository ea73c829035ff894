package executor

import (
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/forkvm/evmcore/word"
)

// LegacyCreateAddress derives the address for a legacy CREATE:
// keccak256(rlp([caller, nonce])) truncated to the low 20 bytes, reusing
// go-ethereum's own crypto.CreateAddress rather than re-deriving the RLP
// encoding.
func LegacyCreateAddress(caller word.Address, nonce uint64) word.Address {
	return crypto.CreateAddress(caller, nonce)
}

// Create2Address derives the address for a CREATE2:
// keccak256(0xff ++ caller ++ salt ++ keccak256(initCode)) truncated to the
// low 20 bytes, via go-ethereum's crypto.CreateAddress2.
func Create2Address(caller word.Address, salt word.Word, initCode []byte) word.Address {
	codeHash := crypto.Keccak256Hash(initCode)
	return crypto.CreateAddress2(caller, salt.Bytes32(), codeHash.Bytes())
}
