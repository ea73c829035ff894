package backend

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/forkvm/evmcore/word"
)

// Log reuses go-ethereum's log shape, matching executor.Log.
type Log = types.Log

// Receipt is the spec's own receipt shape (spec.md §3's tx_history field):
// it omits go-ethereum's consensus-only fields since this core never
// produces a block.
type Receipt struct {
	TxHash            word.Hash
	Caller            word.Address
	To                *word.Address
	BlockNumber       uint64
	CumulativeGasUsed uint64
	GasUsed           uint64
	CreatedAddress    *word.Address
	Logs              []Log
	Status            uint64
}

type providerReceipt struct {
	TransactionHash   word.Hash      `json:"transactionHash"`
	From              word.Address   `json:"from"`
	To                *word.Address  `json:"to"`
	BlockNumber       string         `json:"blockNumber"`
	CumulativeGasUsed string         `json:"cumulativeGasUsed"`
	GasUsed           string         `json:"gasUsed"`
	ContractAddress   *word.Address  `json:"contractAddress"`
	Logs              []Log          `json:"logs"`
	Status            string         `json:"status"`
}

func decodeProviderReceipt(raw json.RawMessage) (*Receipt, error) {
	var pr providerReceipt
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, err
	}
	return &Receipt{
		TxHash:            pr.TransactionHash,
		Caller:            pr.From,
		To:                pr.To,
		BlockNumber:       hexToUint64(pr.BlockNumber),
		CumulativeGasUsed: hexToUint64(pr.CumulativeGasUsed),
		GasUsed:           hexToUint64(pr.GasUsed),
		CreatedAddress:    pr.ContractAddress,
		Logs:              pr.Logs,
		Status:            hexToUint64(pr.Status),
	}, nil
}

func hexToUint64(s string) uint64 {
	if len(s) < 2 || s[:2] != "0x" {
		return 0
	}
	var n uint64
	for _, c := range s[2:] {
		n <<= 4
		switch {
		case c >= '0' && c <= '9':
			n |= uint64(c - '0')
		case c >= 'a' && c <= 'f':
			n |= uint64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			n |= uint64(c-'A') + 10
		}
	}
	return n
}
