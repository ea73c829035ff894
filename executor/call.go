package executor

import (
	"encoding/binary"

	"github.com/forkvm/evmcore/backend"
	"github.com/forkvm/evmcore/gas"
	"github.com/forkvm/evmcore/machine"
	"github.com/forkvm/evmcore/runtime"
	"github.com/forkvm/evmcore/word"
)

// Call implements runtime.Handler.Call: the nested CALL/CALLCODE/
// DELEGATECALL/STATICCALL algorithm of spec.md §4.4 ("call_inner"). The
// cheat-code address's roll/warp/store/load selectors apply their side
// effects here, on the calling frame, but otherwise fall through the
// ordinary L64/depth/transfer/execution path exactly like any other address
// — only `load` forces a return value instead of running the target's code.
func (e *StackExecutor) Call(kind runtime.CallKind, gasRequested uint64, codeAddress, callContext word.Address, transferFrom, transferTo *word.Address, value word.Word, input []byte, isStatic bool) (machine.ExitReason, []byte, uint64) {
	var forcedReturn []byte
	var forced bool
	if codeAddress == backend.CheatAddress {
		forcedReturn, forced = e.applyCheatCode(input)
	}

	available := e.Gasometer.Gas()
	var limit uint64
	if e.Depth > 0 {
		capped, err := gas.CallGas(e.Config, available, gasRequested)
		if err != nil {
			return machine.Err(machine.OutOfGas), nil, 0
		}
		limit = capped
	} else {
		// A top-level call is never shaved by the 1/64th rule: the whole
		// requested amount (or everything available, if more was asked for
		// or nothing was) is forwarded.
		limit = gasRequested
		if limit == 0 || limit > available {
			limit = available
		}
	}
	if err := e.Gasometer.RecordCost(limit); err != nil {
		return machine.Err(machine.OutOfGas), nil, 0
	}
	if !value.IsZero() {
		limit += e.Config.CallStipend
	}

	trace := &TraceNode{Address: codeAddress}
	if e.Depth+1 > e.Config.CallStackLimit {
		sub := e.substate(limit, isStatic || e.IsStatic)
		trace.Success = false
		e.mergeRevert(sub, trace)
		return machine.Err(machine.CallTooDeep), nil, 0
	}

	sub := e.substate(limit, isStatic || e.IsStatic)

	if transferFrom != nil && transferTo != nil && !value.IsZero() {
		fromAcct := sub.account(*transferFrom)
		if fromAcct.Basic.Balance.Lt(&value) {
			e.mergeRevert(sub, trace)
			return machine.Err(machine.OutOfFund), nil, 0
		}
		fromBal := fromAcct.Basic.Balance
		fromBal.Sub(&fromBal, &value)
		fromAcct.Basic.Balance = fromBal
		toAcct := sub.account(*transferTo)
		toBal := toAcct.Basic.Balance
		toBal.Add(&toBal, &value)
		toAcct.Basic.Balance = toBal
	}

	if ok, output, cost, exit := e.Precompile(codeAddress, input, limit); ok {
		if exit.IsSucceed() {
			_ = sub.Gasometer.RecordCost(cost)
			trace.Success = true
			trace.OutputHex = hexEncode(output)
			e.mergeSucceed(sub, trace)
			return exit, output, sub.UsedGas()
		}
		trace.Success = false
		e.mergeFail(sub, trace)
		return exit, nil, sub.UsedGas()
	}

	sub.Address = callContext
	sub.Caller = e.callerFor(kind)

	code := sub.codeOf(codeAddress)
	env := &machine.Env{GasLeft: sub.Gasometer.Gas, Origin: e.Backend.Vicinity.Origin, GasPrice: e.Backend.Vicinity.GasPrice, Charge: sub.chargeOpcode}
	rt := runtime.New(code, input, runtime.Context{Address: callContext, Caller: sub.Caller, ApparentValue: value}, env, e.Config.StackLimit, e.Config.MemoryLimit, sub)

	var exit machine.ExitReason
	if forced {
		m := rt.Machine()
		_ = m.Memory().Set(0, forcedReturn)
		var end word.Word
		end.SetUint64(uint64(len(forcedReturn)))
		m.ForceExit(machine.Succeed(machine.Returned), word.Zero(), end)
		exit = m.Exit()
	} else {
		exit = rt.Run()
	}
	trace.Cost = sub.UsedGas()
	out := rt.Machine().ReturnValue()

	switch {
	case exit.IsSucceed():
		trace.Success = true
		trace.OutputHex = hexEncode(out)
		e.mergeSucceed(sub, trace)
	case exit.IsRevert():
		trace.Success = false
		trace.OutputHex = hexEncode(out)
		e.mergeRevert(sub, trace)
	default:
		trace.Success = false
		e.mergeFail(sub, trace)
		out = nil
	}
	return exit, out, sub.UsedGas()
}

// callerFor resolves the Context.Caller a nested frame should see:
// DELEGATECALL preserves the parent's own caller perspective (msg.sender is
// unchanged) rather than substituting the calling contract's address.
func (e *StackExecutor) callerFor(kind runtime.CallKind) word.Address {
	if kind == runtime.CallKindDelegateCall {
		return e.Caller
	}
	return e.Address
}

// applyCheatCode handles the four Foundry-style selectors spec.md §4.4 step 1
// names. It applies each one's side effects directly on e, the calling
// frame, the way call_inner's cheat-code block mutates `self` before falling
// through to the ordinary call path. Only `load` asks the caller to force a
// return value instead of running the target's code; roll/warp/store still
// execute the cheat-code address's (all-zero) code afterwards, matching the
// original's fallthrough rather than returning early.
func (e *StackExecutor) applyCheatCode(input []byte) (forcedReturn []byte, forced bool) {
	if len(input) < 4 {
		return nil, false
	}
	sig := [4]byte{input[0], input[1], input[2], input[3]}
	switch sig {
	case [4]byte{0x1f, 0x7b, 0x4f, 0x30}: // roll(uint256)
		if len(input) < 36 {
			return nil, false
		}
		n := binary.BigEndian.Uint64(input[28:36])
		e.tmpBlockNumber = &n
	case [4]byte{0xe5, 0xd6, 0xbf, 0x02}: // warp(uint256)
		if len(input) < 36 {
			return nil, false
		}
		n := binary.BigEndian.Uint64(input[28:36])
		e.tmpTimestamp = &n
	case [4]byte{0x70, 0xca, 0x10, 0xbb}: // store(address,bytes32,bytes32)
		if len(input) < 100 {
			return nil, false
		}
		who := word.Address{}
		copy(who[:], input[16:36])
		var slot, val word.Hash
		copy(slot[:], input[36:68])
		copy(val[:], input[68:100])
		acct := e.account(who)
		acct.Storage[slot] = val
		acct.ResetStorageBackend = false
	case [4]byte{0x66, 0x7f, 0x9d, 0x70}: // load(address,bytes32)
		if len(input) < 68 {
			return nil, false
		}
		who := word.Address{}
		copy(who[:], input[16:36])
		var slot word.Hash
		copy(slot[:], input[36:68])
		v, _ := e.SLoad(who, slot)
		return v.Bytes(), true
	}
	return nil, false
}
