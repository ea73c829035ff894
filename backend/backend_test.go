package backend

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/forkvm/evmcore/word"
)

// fakeProvider is an in-memory stand-in for an eth_* JSON-RPC endpoint, used
// to test the read-through/caching behavior without a network dependency.
type fakeProvider struct {
	codeCalls int
	code      map[string][]byte
	balance   map[string]*big.Int
	nonce     map[string]uint64
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		code:    make(map[string][]byte),
		balance: make(map[string]*big.Int),
		nonce:   make(map[string]uint64),
	}
}

func (f *fakeProvider) GetCode(address, blk string) ([]byte, error) {
	f.codeCalls++
	return f.code[address], nil
}
func (f *fakeProvider) GetStorageAt(address, position, blk string) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeProvider) GetBalance(address, blk string) (*big.Int, error) {
	if b, ok := f.balance[address]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}
func (f *fakeProvider) GetTransactionCount(address, blk string) (uint64, error) {
	return f.nonce[address], nil
}
func (f *fakeProvider) BlockNumber() (uint64, error)                                       { return 1, nil }
func (f *fakeProvider) GetBlockByNumber(blk string, fullTx bool) (json.RawMessage, error)   { return nil, nil }
func (f *fakeProvider) GetBlockByHash(hash string, fullTx bool) (json.RawMessage, error)    { return nil, nil }
func (f *fakeProvider) GetTransactionByHash(hash string) (json.RawMessage, error)           { return nil, nil }
func (f *fakeProvider) GetTransactionReceipt(hash string) (json.RawMessage, error)          { return nil, nil }
func (f *fakeProvider) GetLogs(filter map[string]interface{}) (json.RawMessage, error)      { return nil, nil }

func TestAccountCachesAfterFirstFetch(t *testing.T) {
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	p := newFakeProvider()
	p.code[addr.Hex()] = []byte{0xaa}
	b := New(Vicinity{BlockNumber: 1}, p)

	if got := b.CodeSize(addr); got != 1 {
		t.Fatalf("CodeSize = %d, want 1", got)
	}
	b.CodeSize(addr)
	b.Code(addr)
	if p.codeCalls != 1 {
		t.Fatalf("provider GetCode called %d times, want 1 (cached)", p.codeCalls)
	}
}

func TestCheatAddressNeverHitsProvider(t *testing.T) {
	p := newFakeProvider()
	b := New(Vicinity{BlockNumber: 1}, p)

	if got := b.CodeSize(CheatAddress); got != 100 {
		t.Fatalf("CheatAddress code size = %d, want 100", got)
	}
	if p.codeCalls != 0 {
		t.Fatal("cheat address must never reach the provider")
	}
}

func TestApplyPurgesZeroValueSlots(t *testing.T) {
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	b := New(Vicinity{BlockNumber: 1}, newFakeProvider())

	slot := common.Hash{1}
	nonzero := common.Hash{2}
	b.Apply(1, []Apply{{Address: addr, Storage: map[word.Hash]word.Hash{slot: nonzero}}}, nil, nil, false)
	if got := b.Storage(addr, slot); got != nonzero {
		t.Fatalf("storage = %x, want %x", got, nonzero)
	}

	// Writing the zero value to an existing slot purges it rather than
	// storing an explicit zero (spec.md §4.5's "zero-value slot" rule).
	b.Apply(1, []Apply{{Address: addr, Storage: map[word.Hash]word.Hash{slot: {}}}}, nil, nil, false)
	if _, ok := b.State[addr].Storage[slot]; ok {
		t.Fatal("expected slot to be purged, not stored as zero")
	}
}

func TestApplyDeleteEmptyRemovesAccount(t *testing.T) {
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	b := New(Vicinity{BlockNumber: 1}, newFakeProvider())

	b.Apply(1, []Apply{{Address: addr, Balance: word.Zero(), Nonce: 0}}, nil, nil, true)
	if _, ok := b.State[addr]; ok {
		t.Fatal("expected empty account to be deleted when deleteEmpty is set")
	}
}

func TestApplyDeleteWins(t *testing.T) {
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	b := New(Vicinity{BlockNumber: 1}, newFakeProvider())
	b.State[addr] = &Account{Balance: big.NewInt(5), Storage: map[word.Hash]word.Hash{}}

	// A Modify and a Delete for the same address in one batch, in the order
	// Deconstruct emits them: the Delete wins.
	b.Apply(1, []Apply{{Address: addr, Balance: word.Zero(), Nonce: 7}, {Delete: true, Address: addr}}, nil, nil, false)
	if _, ok := b.State[addr]; ok {
		t.Fatal("expected address to be removed by a Delete apply")
	}
}

func TestBlockHashWindow(t *testing.T) {
	hashes := []word.Hash{{1}, {2}, {3}}
	b := New(Vicinity{BlockNumber: 10, BlockHashes: hashes}, newFakeProvider())

	if got := b.BlockHash(9); got != hashes[0] {
		t.Fatalf("BlockHash(9) = %x, want %x", got, hashes[0])
	}
	if got := b.BlockHash(10); got != (word.Hash{}) {
		t.Fatal("BlockHash of the current or a future block must be zero")
	}
}
