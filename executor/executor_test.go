package executor

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/forkvm/evmcore/backend"
	"github.com/forkvm/evmcore/config"
	"github.com/forkvm/evmcore/machine"
	"github.com/forkvm/evmcore/runtime"
	"github.com/forkvm/evmcore/word"
)

// deadProvider fails the test if the executor ever falls through to the
// network; every test here pre-seeds the backend's local image.
type deadProvider struct{ t *testing.T }

func (d deadProvider) GetCode(address, blk string) ([]byte, error) {
	d.t.Fatalf("unexpected GetCode(%s, %s)", address, blk)
	return nil, nil
}
func (d deadProvider) GetStorageAt(address, position, blk string) (common.Hash, error) {
	d.t.Fatalf("unexpected GetStorageAt(%s, %s, %s)", address, position, blk)
	return common.Hash{}, nil
}
func (d deadProvider) GetBalance(address, blk string) (*big.Int, error) {
	d.t.Fatalf("unexpected GetBalance(%s, %s)", address, blk)
	return nil, nil
}
func (d deadProvider) GetTransactionCount(address, blk string) (uint64, error) {
	d.t.Fatalf("unexpected GetTransactionCount(%s, %s)", address, blk)
	return 0, nil
}
func (d deadProvider) BlockNumber() (uint64, error) {
	d.t.Fatalf("unexpected BlockNumber()")
	return 0, nil
}
func (d deadProvider) GetBlockByNumber(blk string, fullTx bool) (json.RawMessage, error) {
	d.t.Fatalf("unexpected GetBlockByNumber")
	return nil, nil
}
func (d deadProvider) GetBlockByHash(hash string, fullTx bool) (json.RawMessage, error) {
	d.t.Fatalf("unexpected GetBlockByHash")
	return nil, nil
}
func (d deadProvider) GetTransactionByHash(hash string) (json.RawMessage, error) {
	d.t.Fatalf("unexpected GetTransactionByHash")
	return nil, nil
}
func (d deadProvider) GetTransactionReceipt(hash string) (json.RawMessage, error) {
	d.t.Fatalf("unexpected GetTransactionReceipt")
	return nil, nil
}
func (d deadProvider) GetLogs(filter map[string]interface{}) (json.RawMessage, error) {
	d.t.Fatalf("unexpected GetLogs")
	return nil, nil
}

func freshBackend(t *testing.T, from word.Address, balance int64) *backend.ForkBackend {
	t.Helper()
	b := backend.New(backend.Vicinity{Origin: from, BlockNumber: 1}, deadProvider{t})
	b.State[from] = &backend.Account{Balance: big.NewInt(balance), Storage: map[word.Hash]word.Hash{}}
	return b
}

func wordFromUint64(n uint64) word.Word {
	var w word.Word
	w.SetUint64(n)
	return w
}

// TestTransactCallStoreThenLoad deploys no code but runs an SSTORE against
// a pre-installed contract, then loads the slot back from the backend,
// verifying Deconstruct commits the write.
func TestTransactCallStoreThenLoad(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	b := freshBackend(t, from, 1_000_000)
	b.State[to] = &backend.Account{
		Balance: big.NewInt(0),
		Storage: map[word.Hash]word.Hash{},
		Created: true,
		Code: []byte{
			byte(machine.PUSH1), 0x2a, // 42
			byte(machine.PUSH1), 0x00,
			byte(machine.SSTORE),
			byte(machine.STOP),
		},
	}

	e := New(b, 1_000_000, config.Istanbul())
	exit, _, _ := e.TransactCall(from, to, word.Zero(), nil, 1_000_000)
	if !exit.IsSucceed() {
		t.Fatalf("call failed: %v", exit)
	}

	applies, _, _ := e.Deconstruct()
	b.Apply(1, applies, nil, nil, false)

	got := b.Storage(to, word.Hash{})
	want := word.Hash(common.BigToHash(big.NewInt(42)))
	if got != want {
		t.Fatalf("storage = %x, want %x", got, want)
	}
}

// TestTransactCallRevertDiscardsState ensures a REVERT-ing call's storage
// write never reaches the backend once Deconstruct/Apply runs, per the
// merge-on-revert rule.
func TestTransactCallRevertDiscardsState(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	b := freshBackend(t, from, 1_000_000)
	b.State[to] = &backend.Account{
		Balance: big.NewInt(0),
		Storage: map[word.Hash]word.Hash{},
		Created: true,
		Code: []byte{
			byte(machine.PUSH1), 0x2a,
			byte(machine.PUSH1), 0x00,
			byte(machine.SSTORE),
			byte(machine.PUSH1), 0x00,
			byte(machine.PUSH1), 0x00,
			byte(machine.REVERT),
		},
	}

	e := New(b, 1_000_000, config.Istanbul())
	exit, _, _ := e.TransactCall(from, to, word.Zero(), nil, 1_000_000)
	if !exit.IsRevert() {
		t.Fatalf("expected revert, got %v", exit)
	}

	applies, _, _ := e.Deconstruct()
	b.Apply(1, applies, nil, nil, false)

	got := b.Storage(to, word.Hash{})
	if got != (word.Hash{}) {
		t.Fatalf("storage = %x, want zero (reverted write must not persist)", got)
	}
}

// TestTransactCreateCollisionFails exercises create_inner's collision check:
// a target address that already carries code must fail CreateCollision.
func TestTransactCreateCollisionFails(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	b := freshBackend(t, from, 1_000_000)

	addr := LegacyCreateAddress(from, 0)
	// Pre-occupy the address the first CREATE from `from` at nonce 0 would
	// derive, simulating an account that was already deployed there.
	b.State[addr] = &backend.Account{Balance: big.NewInt(0), Storage: map[word.Hash]word.Hash{}, Code: []byte{0x01}}

	e := New(b, 1_000_000, config.Istanbul())
	exit, _, _, _ := e.Create(runtime.CreateSchemeLegacy, from, word.Zero(), []byte{byte(machine.STOP)}, word.Zero(), 1_000_000)
	if exit.IsSucceed() {
		t.Fatalf("expected CreateCollision, got success")
	}
}

// TestTransactCreateDeploysCode runs a minimal init code that returns a
// one-byte runtime body and checks the deployed code is what Deconstruct
// commits to the backend.
func TestTransactCreateDeploysCode(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	b := freshBackend(t, from, 1_000_000)
	// Seed the address the CREATE derives as an empty account so its
	// collision check resolves locally instead of reaching deadProvider.
	target := LegacyCreateAddress(from, 0)
	b.State[target] = &backend.Account{Balance: big.NewInt(0), Storage: map[word.Hash]word.Hash{}}
	e := New(b, 1_000_000, config.Istanbul())

	initCode := []byte{
		byte(machine.PUSH1), 0x00, // runtime body: STOP (0x00)
		byte(machine.PUSH1), 0x00,
		byte(machine.MSTORE8),
		byte(machine.PUSH1), 0x01,
		byte(machine.PUSH1), 0x00,
		byte(machine.RETURN),
	}

	exit, addr, _ := e.TransactCreate(from, word.Zero(), initCode, 1_000_000)
	if !exit.IsSucceed() {
		t.Fatalf("create failed: %v", exit)
	}
	if addr == nil {
		t.Fatal("expected a created address")
	}

	applies, _, created := e.Deconstruct()
	if !created[*addr] {
		t.Fatalf("created-address set missing %s", addr.Hex())
	}
	var deployed []byte
	for _, a := range applies {
		if a.Address == *addr && a.HasCode {
			deployed = a.Code
		}
	}
	if len(deployed) != 1 || deployed[0] != 0x00 {
		t.Fatalf("deployed code = %x, want [00]", deployed)
	}

	b.Apply(1, applies, nil, nil, false)
	if got := b.CodeSize(*addr); got != 1 {
		t.Fatalf("backend code size = %d, want 1", got)
	}
}
