// Package simulator wires the backend, config and executor packages into
// the single-shot "run one transaction against a fork" workflow the
// teacher's original vm/rawdb-based Simulator offered, replacing its
// go-ethereum core/state StateDB with the package's own ForkBackend.
package simulator

import (
	"fmt"
	"math/big"

	"github.com/forkvm/evmcore/backend"
	"github.com/forkvm/evmcore/config"
	"github.com/forkvm/evmcore/executor"
	"github.com/forkvm/evmcore/rpc"
	"github.com/forkvm/evmcore/word"
)

// Simulation describes one transaction to execute against a fork: either a
// message call (To set, Code empty) or a code-supplied call used to probe a
// not-yet-deployed contract (To set, Code non-empty — installed ahead of
// execution so CALLDATALOAD/SLOAD/SSTORE exercise it directly).
type Simulation struct {
	From        word.Address
	To          word.Address
	BlockNumber *big.Int
	GasLimit    uint64
	GasPrice    *big.Int
	Value       *big.Int
	Input       []byte
	Code        []byte
}

// blockNumberUint64 normalizes the simulation's target block to a uint64,
// defaulting to zero when unset.
func (s Simulation) blockNumberUint64() uint64 {
	if s.BlockNumber == nil {
		return 0
	}
	return s.BlockNumber.Uint64()
}

// Simulator runs Simulations against a ForkBackend.
type Simulator struct {
	RPCClt *rpc.Client
}

// SimulationResult is the outcome of one Simulate call: the return data,
// gas accounting and a full call trace for inspection.
type SimulationResult struct {
	ReturnedData []byte
	GasUsed      uint64
	GasLimit     uint64
	Trace        []*executor.TraceNode
}

// NewSimulator constructs a Simulator over an RPC client used as the
// ForkBackend's Provider.
func NewSimulator(rpcClt *rpc.Client) (*Simulator, error) {
	if rpcClt == nil {
		return nil, fmt.Errorf("simulator: nil rpc client")
	}
	return &Simulator{RPCClt: rpcClt}, nil
}

// vicinityFor builds the Vicinity a Simulation runs under: block number
// pinned to the simulation, gas price converted to a word, everything else
// defaulted (a real deployment would thread coinbase/timestamp/difficulty
// through from the forked block header).
func vicinityFor(s Simulation) backend.Vicinity {
	var gp word.Word
	if s.GasPrice != nil {
		gp.SetFromBig(s.GasPrice)
	}
	return backend.Vicinity{
		GasPrice:    gp,
		Origin:      s.From,
		BlockNumber: s.blockNumberUint64(),
	}
}

// Simulate runs a single transaction against b, a ForkBackend anchored at
// simulation's block (constructed fresh if nil). It does not return a
// proper gas estimate — for that, repeat with a bisected GasLimit.
func (s *Simulator) Simulate(simulation Simulation, b *backend.ForkBackend) (*SimulationResult, error) {
	if b == nil {
		b = backend.New(vicinityFor(simulation), s.RPCClt)
	}
	if len(simulation.Code) != 0 {
		b.Basic(simulation.To) // force the local image to exist before installing code
		b.State[simulation.To].Code = simulation.Code
	}

	cfg := config.Istanbul()
	exec := executor.New(b, simulation.GasLimit, cfg)

	var value word.Word
	if simulation.Value != nil {
		value.SetFromBig(simulation.Value)
	}

	exit, out, trace := exec.TransactCall(simulation.From, simulation.To, value, simulation.Input, simulation.GasLimit)
	if !exit.IsSucceed() {
		return nil, fmt.Errorf("simulate: %w", exit)
	}

	applies, logs, _ := exec.Deconstruct()
	b.Apply(simulation.blockNumberUint64(), applies, logs, nil, false)

	return &SimulationResult{
		ReturnedData: out,
		GasUsed:      exec.UsedGas(),
		GasLimit:     simulation.GasLimit,
		Trace:        trace,
	}, nil
}

// SimulateBundle runs simulations in order against one shared ForkBackend,
// so state written by an earlier simulation (an SSTORE, say) is observed by
// a later one in the same bundle — the teacher's TestSimulateBundle
// behavior, reimplemented over the new executor.
func (s *Simulator) SimulateBundle(simulations []Simulation, b *backend.ForkBackend) ([]*SimulationResult, error) {
	if len(simulations) == 0 {
		return nil, nil
	}
	if b == nil {
		b = backend.New(vicinityFor(simulations[0]), s.RPCClt)
	}
	results := make([]*SimulationResult, 0, len(simulations))
	for _, sim := range simulations {
		r, err := s.Simulate(sim, b)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}
