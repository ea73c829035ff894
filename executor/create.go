package executor

import (
	"github.com/forkvm/evmcore/gas"
	"github.com/forkvm/evmcore/machine"
	"github.com/forkvm/evmcore/runtime"
	"github.com/forkvm/evmcore/word"
)

// Create implements runtime.Handler.Create: the nested CREATE/CREATE2
// algorithm of spec.md §4.4 "Nested execution" ("create_inner"), executed
// as an ordinary recursive call rather than a suspended interrupt.
func (e *StackExecutor) Create(scheme runtime.CreateScheme, caller word.Address, value word.Word, initCode []byte, salt word.Word, gasLimit uint64) (machine.ExitReason, word.Address, []byte, uint64) {
	if e.Depth+1 > e.Config.CallStackLimit {
		return machine.Err(machine.CallTooDeep), word.Address{}, nil, 0
	}

	callerAcct := e.account(caller)
	if callerAcct.Basic.Balance.Lt(&value) {
		return machine.Err(machine.OutOfFund), word.Address{}, nil, 0
	}

	available := e.Gasometer.Gas()
	var limit uint64
	if e.Depth > 0 {
		capped, err := gas.CallGas(e.Config, available, gasLimit)
		if err != nil {
			return machine.Err(machine.OutOfGas), word.Address{}, nil, 0
		}
		limit = capped
	} else {
		// A top-level CREATE/CREATE2 is exempt from the 1/64th shave.
		limit = gasLimit
		if limit == 0 || limit > available {
			limit = available
		}
	}
	if err := e.Gasometer.RecordCost(limit); err != nil {
		return machine.Err(machine.OutOfGas), word.Address{}, nil, 0
	}

	var address word.Address
	switch scheme {
	case runtime.CreateSchemeLegacy:
		address = LegacyCreateAddress(caller, callerAcct.Basic.Nonce)
	case runtime.CreateSchemeCreate2:
		address = Create2Address(caller, salt, initCode)
	case runtime.CreateSchemeFixed:
		address = caller
	}

	e.createdContracts[address] = true
	callerAcct.Basic.Nonce++

	sub := e.substate(limit, e.IsStatic)
	trace := &TraceNode{Address: address, Created: true}

	target := sub.account(address)
	if len(target.Code) != 0 || target.Basic.Nonce != 0 {
		e.mergeFail(sub, trace)
		return machine.Err(machine.CreateCollision), word.Address{}, nil, 0
	}

	target.ResetStorage = true
	target.Storage = make(map[word.Hash]word.Hash)
	targetBal := target.Basic.Balance
	targetBal.Add(&targetBal, &value)
	target.Basic.Balance = targetBal
	callerSub := sub.account(caller)
	callerBal := callerSub.Basic.Balance
	callerBal.Sub(&callerBal, &value)
	callerSub.Basic.Balance = callerBal
	if e.Config.CreateIncreaseNonce {
		target.Basic.Nonce++
	}

	sub.Address = address
	sub.Caller = caller

	env := &machine.Env{GasLeft: sub.Gasometer.Gas, Origin: e.Backend.Vicinity.Origin, GasPrice: e.Backend.Vicinity.GasPrice, Charge: sub.chargeOpcode}
	rt := runtime.New(initCode, nil, runtime.Context{Address: address, Caller: caller, ApparentValue: value}, env, e.Config.StackLimit, e.Config.MemoryLimit, sub)
	exit := rt.Run()
	trace.Cost = sub.UsedGas()

	switch {
	case exit.IsSucceed():
		code := rt.Machine().ReturnValue()
		if e.Config.CreateContractLimit != nil && len(code) > *e.Config.CreateContractLimit {
			e.mergeFail(sub, trace)
			return machine.Err(machine.CreateContractLimit), word.Address{}, nil, 0
		}
		if err := sub.Gasometer.RecordDeposit(len(code)); err != nil {
			e.mergeFail(sub, trace)
			return machine.Err(machine.OutOfGas), word.Address{}, nil, 0
		}
		target.Code = code
		target.CodeKnown = true
		trace.Success = true
		trace.OutputHex = hexEncode(code)
		e.mergeSucceed(sub, trace)
		return exit, address, code, sub.UsedGas()
	case exit.IsRevert():
		out := rt.Machine().ReturnValue()
		trace.Success = false
		trace.OutputHex = hexEncode(out)
		e.mergeRevert(sub, trace)
		return exit, word.Address{}, out, sub.UsedGas()
	default:
		trace.Success = false
		e.mergeFail(sub, trace)
		return exit, word.Address{}, nil, sub.UsedGas()
	}
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0xf]
	}
	return string(out)
}
