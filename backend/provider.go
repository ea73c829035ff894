// Package backend implements the forking, journaling state backend of
// spec.md §4.5: a local in-memory image consulted first, falling back to an
// external JSON-RPC Provider on miss and caching the result.
package backend

import (
	"encoding/json"
	"math/big"

	"github.com/forkvm/evmcore/word"
)

// Provider is the ten-method JSON-RPC contract spec.md §6 requires of a
// forking data source. Implemented by rpc.Client (extended from the
// teacher's rpc/rpc.go) and trivially fakeable in tests.
type Provider interface {
	GetCode(address, blk string) ([]byte, error)
	GetStorageAt(address, position, blk string) (word.Hash, error)
	GetBalance(address, blk string) (*big.Int, error)
	GetTransactionCount(address, blk string) (uint64, error)
	BlockNumber() (uint64, error)
	GetBlockByNumber(blk string, fullTx bool) (json.RawMessage, error)
	GetBlockByHash(hash string, fullTx bool) (json.RawMessage, error)
	GetTransactionByHash(hash string) (json.RawMessage, error)
	GetTransactionReceipt(hash string) (json.RawMessage, error)
	GetLogs(filter map[string]interface{}) (json.RawMessage, error)
}
