package backend

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/forkvm/evmcore/word"
)

// CheatAddress is the reserved address Foundry-style cheat codes are
// intercepted on. The backend reports it as existing with exactly 100 bytes
// of code so EXTCODESIZE/EXTCODECOPY never reveal its special nature
// (spec.md §4.5 "Cheat-code account").
var CheatAddress = common.HexToAddress("0x7109709ECfa91a80626fF3989D68f67F5b1DD12D")

var cheatCode = make([]byte, 100)

// Account is the backend's own image of one address: its balance, nonce and
// code, and the storage slots it has fetched from the provider or had
// applied to it.
type Account struct {
	Balance *big.Int
	Nonce   uint64
	Code    []byte
	Storage map[word.Hash]word.Hash
	// Created marks an address whose storage is authoritative in the local
	// image: its unset slots read as zero and never go through to the
	// provider. Apply does not set it, including for addresses a CREATE or
	// CREATE2 produced; only code that fills State directly sets it.
	Created bool
}

// Vicinity is the fixed per-fork environment data a Backend answers
// environment opcodes from: origin, gas price, coinbase, timestamp,
// difficulty, gas limit, chain id, and the block-hash window.
type Vicinity struct {
	GasPrice       word.Word
	Origin         word.Address
	BlockNumber    uint64
	BlockCoinbase  word.Address
	BlockTimestamp uint64
	BlockDifficulty word.Word
	BlockGasLimit  uint64
	ChainID        word.Word
	BlockHashes    []word.Hash
}

// ForkBackend is the read-through, journaling state backend of spec.md
// §4.5: a local image, consulted first; on miss, the Provider answers and
// the result is cached.
type ForkBackend struct {
	mu sync.Mutex

	Vicinity Vicinity
	State    map[word.Address]*Account
	archive  map[uint64]map[word.Address]*Account
	logs     map[uint64][]Log
	txs      map[word.Hash]*Receipt

	Provider     Provider
	LocalBlockNum uint64
}

// New constructs a ForkBackend over provider, forked at vicinity's block
// number.
func New(vicinity Vicinity, provider Provider) *ForkBackend {
	return &ForkBackend{
		Vicinity:      vicinity,
		State:         make(map[word.Address]*Account),
		archive:       make(map[uint64]map[word.Address]*Account),
		logs:          make(map[uint64][]Log),
		txs:           make(map[word.Hash]*Receipt),
		Provider:      provider,
		LocalBlockNum: vicinity.BlockNumber,
	}
}

func (b *ForkBackend) blockStr() string {
	return fmt.Sprintf("0x%x", b.Vicinity.BlockNumber)
}

// account returns the local image for address, fetching and caching it from
// the Provider on first touch. The cheat address is synthesized locally and
// never hits the Provider.
func (b *ForkBackend) account(address word.Address) *Account {
	if acct, ok := b.State[address]; ok {
		return acct
	}
	if address == CheatAddress {
		acct := &Account{Balance: big.NewInt(0), Storage: make(map[word.Hash]word.Hash), Code: cheatCode}
		b.State[address] = acct
		return acct
	}

	// The external provider is the one place a Backend may block on I/O;
	// serialize calls so at most one is outstanding (spec.md §5).
	b.mu.Lock()
	defer b.mu.Unlock()
	if acct, ok := b.State[address]; ok {
		return acct
	}

	addrHex := address.Hex()
	code, err := b.Provider.GetCode(addrHex, b.blockStr())
	if err != nil {
		log.Warn("backend: get_code failed", "address", addrHex, "err", err)
	}
	bal, err := b.Provider.GetBalance(addrHex, b.blockStr())
	if err != nil {
		log.Warn("backend: get_balance failed", "address", addrHex, "err", err)
		bal = big.NewInt(0)
	}
	nonce, err := b.Provider.GetTransactionCount(addrHex, b.blockStr())
	if err != nil {
		log.Warn("backend: get_transaction_count failed", "address", addrHex, "err", err)
	}

	acct := &Account{
		Balance: bal,
		Nonce:   nonce,
		Code:    code,
		Storage: make(map[word.Hash]word.Hash),
	}
	b.State[address] = acct
	return acct
}

// Exists reports whether address is known locally, or the Provider answers
// with nonzero balance, nonzero nonce or non-empty code at the fork block.
func (b *ForkBackend) Exists(address word.Address) bool {
	if _, ok := b.State[address]; ok {
		return true
	}
	acct := b.account(address)
	return acct.Balance.Sign() != 0 || acct.Nonce != 0 || len(acct.Code) != 0
}

// Basic returns balance/nonce for address.
func (b *ForkBackend) Basic(address word.Address) (word.Word, uint64) {
	acct := b.account(address)
	var w word.Word
	w.SetFromBig(acct.Balance)
	return w, acct.Nonce
}

// SetBasic overwrites address's balance/nonce in the local image, fetching
// the account from the Provider first if it is not cached yet.
func (b *ForkBackend) SetBasic(address word.Address, balance word.Word, nonce uint64) {
	acct := b.account(address)
	acct.Balance = balance.ToBig()
	acct.Nonce = nonce
}

// Code returns the code for address.
func (b *ForkBackend) Code(address word.Address) []byte {
	return b.account(address).Code
}

// CodeHash returns keccak256 of address's code.
func (b *ForkBackend) CodeHash(address word.Address) word.Hash {
	return word.Hash(crypto.Keccak256Hash(b.account(address).Code))
}

// CodeSize returns the byte length of address's code.
func (b *ForkBackend) CodeSize(address word.Address) int {
	return len(b.account(address).Code)
}

// Storage reads one slot, read-through only when the address is not a
// locally created account (a created account's unset slots are zero, never
// fetched).
func (b *ForkBackend) Storage(address word.Address, key word.Hash) word.Hash {
	acct := b.account(address)
	if v, ok := acct.Storage[key]; ok {
		return v
	}
	if acct.Created {
		return word.Hash{}
	}
	b.mu.Lock()
	v, err := b.Provider.GetStorageAt(address.Hex(), key.Hex(), b.blockStr())
	b.mu.Unlock()
	if err != nil {
		log.Warn("backend: get_storage_at failed", "address", address.Hex(), "err", err)
		return word.Hash{}
	}
	acct.Storage[key] = v
	return v
}

// BlockHash returns zero unless n is within Vicinity.BlockHashes' window
// relative to the current block number.
func (b *ForkBackend) BlockHash(n uint64) word.Hash {
	if n >= b.Vicinity.BlockNumber {
		return word.Hash{}
	}
	idx := b.Vicinity.BlockNumber - n - 1
	if idx >= uint64(len(b.Vicinity.BlockHashes)) {
		return word.Hash{}
	}
	return b.Vicinity.BlockHashes[idx]
}

// TxReceipt looks up a committed receipt by hash, falling back to the
// Provider on miss (spec.md §6.2 "receipt lookup").
func (b *ForkBackend) TxReceipt(hash word.Hash) (*Receipt, error) {
	if r, ok := b.txs[hash]; ok {
		return r, nil
	}
	b.mu.Lock()
	raw, err := b.Provider.GetTransactionReceipt(hash.Hex())
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return decodeProviderReceipt(raw)
}

// Logs returns logs emitted in [fromBlock, toBlock] matching addrs/topics
// from the local log ledger only. The Provider is not consulted, so blocks
// that were never committed locally yield no logs.
func (b *ForkBackend) Logs(fromBlock, toBlock uint64, addrs []word.Address, topics []word.Hash) []Log {
	var out []Log
	for bn := fromBlock; bn <= toBlock; bn++ {
		for _, l := range b.logs[bn] {
			if matchesFilter(l, addrs, topics) {
				out = append(out, l)
			}
		}
	}
	return out
}

func matchesFilter(l Log, addrs []word.Address, topics []word.Hash) bool {
	if len(addrs) > 0 {
		found := false
		for _, a := range addrs {
			if a == l.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(topics) > 0 {
		found := false
		for _, t := range topics {
			for _, lt := range l.Topics {
				if t == lt {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}
