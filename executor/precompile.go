package executor

import (
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/forkvm/evmcore/machine"
	"github.com/forkvm/evmcore/word"
)

// IstanbulPrecompiles dispatches to go-ethereum's own Istanbul precompile
// set (identity, sha256, ripemd160, modexp, and the BN254 curve operations
// backed by consensys/gnark-crypto), satisfying spec.md §4.4 step 5's
// "precompiles hook" with real precompiled contracts instead of stubs.
func IstanbulPrecompiles(address word.Address, input []byte, gasLimit uint64) (bool, []byte, uint64, machine.ExitReason) {
	p, ok := vm.PrecompiledContractsIstanbul[address]
	if !ok {
		return false, nil, 0, machine.ExitReason{}
	}
	cost := p.RequiredGas(input)
	if cost > gasLimit {
		return true, nil, 0, machine.Err(machine.OutOfGas)
	}
	out, err := p.Run(input)
	if err != nil {
		return true, nil, cost, machine.OtherError("precompile: %s", err.Error())
	}
	return true, out, cost, machine.Succeed(machine.Returned)
}
