package simulator

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/forkvm/evmcore/backend"
	"github.com/forkvm/evmcore/machine"
	"github.com/forkvm/evmcore/rpc"
	"github.com/ethereum/go-ethereum/common"
)

// deadProvider fails any test that actually hits the network: every
// Simulate in this file pre-populates the backend's local image so no
// Provider call should ever be needed.
type deadProvider struct{ t *testing.T }

func (d deadProvider) GetCode(address, blk string) ([]byte, error) {
	d.t.Fatalf("unexpected provider call: GetCode(%s, %s)", address, blk)
	return nil, nil
}
func (d deadProvider) GetStorageAt(address, position, blk string) (common.Hash, error) {
	d.t.Fatalf("unexpected provider call: GetStorageAt(%s, %s, %s)", address, position, blk)
	return common.Hash{}, nil
}
func (d deadProvider) GetBalance(address, blk string) (*big.Int, error) {
	d.t.Fatalf("unexpected provider call: GetBalance(%s, %s)", address, blk)
	return nil, nil
}
func (d deadProvider) GetTransactionCount(address, blk string) (uint64, error) {
	d.t.Fatalf("unexpected provider call: GetTransactionCount(%s, %s)", address, blk)
	return 0, nil
}
func (d deadProvider) BlockNumber() (uint64, error) {
	d.t.Fatalf("unexpected provider call: BlockNumber()")
	return 0, nil
}
func (d deadProvider) GetBlockByNumber(blk string, fullTx bool) (json.RawMessage, error) {
	d.t.Fatalf("unexpected provider call: GetBlockByNumber")
	return nil, nil
}
func (d deadProvider) GetBlockByHash(hash string, fullTx bool) (json.RawMessage, error) {
	d.t.Fatalf("unexpected provider call: GetBlockByHash")
	return nil, nil
}
func (d deadProvider) GetTransactionByHash(hash string) (json.RawMessage, error) {
	d.t.Fatalf("unexpected provider call: GetTransactionByHash")
	return nil, nil
}
func (d deadProvider) GetTransactionReceipt(hash string) (json.RawMessage, error) {
	d.t.Fatalf("unexpected provider call: GetTransactionReceipt")
	return nil, nil
}
func (d deadProvider) GetLogs(filter map[string]interface{}) (json.RawMessage, error) {
	d.t.Fatalf("unexpected provider call: GetLogs")
	return nil, nil
}

func seededBackend(t *testing.T, from, to common.Address) *backend.ForkBackend {
	t.Helper()
	b := backend.New(backend.Vicinity{Origin: from, BlockNumber: 1}, deadProvider{t})
	b.State[from] = &backend.Account{Balance: big.NewInt(1_000_000), Storage: map[common.Hash]common.Hash{}}
	// Created keeps SLOAD/SSTORE on `to` from reading through to the provider.
	b.State[to] = &backend.Account{Balance: big.NewInt(0), Storage: map[common.Hash]common.Hash{}, Created: true}
	return b
}

func TestSimulateStoresAndReturnsCalldata(t *testing.T) {
	code := []byte{
		byte(machine.PUSH1), 0x00, byte(machine.CALLDATALOAD),
		byte(machine.PUSH1), 0x00, byte(machine.SSTORE),
		byte(machine.PUSH1), 0x00, byte(machine.SLOAD),
		byte(machine.PUSH1), 0x00, byte(machine.MSTORE),
		byte(machine.PUSH1), 0x20, byte(machine.PUSH1), 0x00, byte(machine.RETURN),
	}

	from := common.HexToAddress("0x0000000000000000000000000000000000000000")
	to := common.HexToAddress("0x0000000000000000000000000000000000000011")
	b := seededBackend(t, from, to)

	sim, err := NewSimulator(rpc.NewClient("unused"))
	if err != nil {
		t.Fatal(err)
	}

	simulation := Simulation{
		From:        from,
		To:          to,
		Code:        code,
		BlockNumber: big.NewInt(1),
		GasLimit:    300000,
		GasPrice:    big.NewInt(0),
		Value:       big.NewInt(0),
		Input:       common.LeftPadBytes(big.NewInt(0x20).Bytes(), 32),
	}

	result, err := sim.Simulate(simulation, b)
	if err != nil {
		t.Fatal(err)
	}

	got := new(big.Int).SetBytes(result.ReturnedData)
	if got.Cmp(big.NewInt(0x20)) != 0 {
		t.Fatalf("returned %s, want 32", got)
	}
}

func TestSimulateBundleSharesState(t *testing.T) {
	code := []byte{
		byte(machine.PUSH1), 0x00, byte(machine.CALLDATALOAD),
		byte(machine.PUSH1), 0x00, byte(machine.SLOAD),
		byte(machine.ADD),
		byte(machine.PUSH1), 0x00, byte(machine.SSTORE),
		byte(machine.PUSH1), 0x00, byte(machine.SLOAD),
		byte(machine.PUSH1), 0x00, byte(machine.MSTORE),
		byte(machine.PUSH1), 0x20, byte(machine.PUSH1), 0x00, byte(machine.RETURN),
	}

	from := common.HexToAddress("0x0000000000000000000000000000000000000000")
	to := common.HexToAddress("0x0000000000000000000000000000000000000011")
	b := seededBackend(t, from, to)

	sim, err := NewSimulator(rpc.NewClient("unused"))
	if err != nil {
		t.Fatal(err)
	}

	mkSim := func(n int64) Simulation {
		return Simulation{
			From:        from,
			To:          to,
			Code:        code,
			BlockNumber: big.NewInt(1),
			GasLimit:    300000,
			GasPrice:    big.NewInt(0),
			Value:       big.NewInt(0),
			Input:       common.LeftPadBytes(big.NewInt(n).Bytes(), 32),
		}
	}

	results, err := sim.SimulateBundle([]Simulation{mkSim(1), mkSim(2), mkSim(3)}, b)
	if err != nil {
		t.Fatal(err)
	}

	want := []int64{1, 3, 6}
	for i, r := range results {
		got := new(big.Int).SetBytes(r.ReturnedData)
		if got.Cmp(big.NewInt(want[i])) != 0 {
			t.Fatalf("result %d: got %s, want %d", i, got, want[i])
		}
	}
}
