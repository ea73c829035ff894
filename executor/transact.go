package executor

import (
	"github.com/forkvm/evmcore/machine"
	"github.com/forkvm/evmcore/runtime"
	"github.com/forkvm/evmcore/word"
)

func intrinsicDataCost(e *StackExecutor, data []byte) uint64 {
	var cost uint64
	for _, b := range data {
		if b == 0 {
			cost += e.Config.GasTransactionZeroData
		} else {
			cost += e.Config.GasTransactionNonZeroData
		}
	}
	return cost
}

// TransactCreate executes a top-level legacy CREATE transaction: spec.md
// §4.4's transact_create(hash, caller, value, init_code, gas_limit).
func (e *StackExecutor) TransactCreate(caller word.Address, value word.Word, initCode []byte, gasLimit uint64) (machine.ExitReason, *word.Address, []*TraceNode) {
	cost := e.Config.GasTransactionCreate + intrinsicDataCost(e, initCode)
	if err := e.Gasometer.RecordTransaction(cost); err != nil {
		return err.(machine.ExitReason), nil, nil
	}
	exit, addr, _, _ := e.Create(runtime.CreateSchemeLegacy, caller, value, initCode, word.Zero(), gasLimit)
	if exit.IsSucceed() {
		return exit, &addr, e.callTrace
	}
	return exit, nil, e.callTrace
}

// TransactCreate2 executes a top-level CREATE2 transaction.
func (e *StackExecutor) TransactCreate2(caller word.Address, value word.Word, initCode []byte, salt word.Word, gasLimit uint64) (machine.ExitReason, *word.Address, []*TraceNode) {
	cost := e.Config.GasTransactionCreate + intrinsicDataCost(e, initCode)
	if err := e.Gasometer.RecordTransaction(cost); err != nil {
		return err.(machine.ExitReason), nil, nil
	}
	exit, addr, _, _ := e.Create(runtime.CreateSchemeCreate2, caller, value, initCode, salt, gasLimit)
	if exit.IsSucceed() {
		return exit, &addr, e.callTrace
	}
	return exit, nil, e.callTrace
}

// TransactCall executes a top-level message call: spec.md §4.4's
// transact_call(hash, caller, callee, value, data, gas_limit).
func (e *StackExecutor) TransactCall(caller, callee word.Address, value word.Word, data []byte, gasLimit uint64) (machine.ExitReason, []byte, []*TraceNode) {
	cost := e.Config.GasTransactionCall + intrinsicDataCost(e, data)
	if err := e.Gasometer.RecordTransaction(cost); err != nil {
		return err.(machine.ExitReason), nil, nil
	}
	e.Address = caller
	from, to := caller, callee
	exit, out, _ := e.Call(runtime.CallKindCall, gasLimit, callee, callee, &from, &to, value, data, false)
	return exit, out, e.callTrace
}
