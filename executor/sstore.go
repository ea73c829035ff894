package executor

import (
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/forkvm/evmcore/config"
	"github.com/forkvm/evmcore/gas"
	"github.com/forkvm/evmcore/word"
)

func hashOf(code []byte) word.Hash {
	return word.Hash(crypto.Keccak256Hash(code))
}

func toTypesTopics(topics []word.Hash) []word.Hash {
	return topics
}

func sstoreCostBytes(cfg *config.Config, original, current, new word.Hash) uint64 {
	return gas.SstoreCost(cfg, original, current, new)
}

func sstoreRefundBytes(cfg *config.Config, original, current, new word.Hash) int64 {
	return gas.SstoreRefund(cfg, original, current, new)
}
