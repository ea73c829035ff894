package executor

import (
	"github.com/forkvm/evmcore/backend"
	"github.com/forkvm/evmcore/config"
	"github.com/forkvm/evmcore/gas"
	"github.com/forkvm/evmcore/machine"
	"github.com/forkvm/evmcore/word"
)

// PrecompileFn dispatches a precompiled-contract call: given the code
// address, input and available gas, it either reports ok=false (no
// precompile at that address) or a result: output bytes and cost on
// success, an exit reason on failure.
type PrecompileFn func(address word.Address, input []byte, gasLimit uint64) (ok bool, output []byte, cost uint64, exit machine.ExitReason)

// StackExecutor is the gas-metered, journaling call/create executor of
// spec.md §4.4. One StackExecutor owns one in-flight transaction (or
// substate frame); nested frames are child StackExecutors cloned from the
// parent's journal and merged back in on exit.
type StackExecutor struct {
	Backend    *backend.ForkBackend
	Config     *config.Config
	Gasometer  *gas.Gasometer
	Precompile PrecompileFn

	state   map[word.Address]*StackAccount
	deleted map[word.Address]bool
	logs    []Log

	IsStatic bool
	Depth    int

	// Address and Caller are this frame's own call context, set once the
	// substate is opened, so a nested DELEGATECALL/CALLCODE can resolve the
	// context its own child frame should see.
	Address word.Address
	Caller  word.Address

	tmpBlockNumber *uint64
	tmpTimestamp   *uint64

	createdContracts map[word.Address]bool
	callTrace        []*TraceNode
}

// New constructs a top-level StackExecutor over backend b with gasLimit gas
// available, using cfg's Istanbul parameters and the default Istanbul
// precompile set.
func New(b *backend.ForkBackend, gasLimit uint64, cfg *config.Config) *StackExecutor {
	return NewWithPrecompile(b, gasLimit, cfg, IstanbulPrecompiles)
}

// NewWithPrecompile is New with an overridden precompile dispatcher.
func NewWithPrecompile(b *backend.ForkBackend, gasLimit uint64, cfg *config.Config, precompile PrecompileFn) *StackExecutor {
	return &StackExecutor{
		Backend:          b,
		Config:           cfg,
		Gasometer:        gas.New(gasLimit),
		Precompile:       precompile,
		state:            make(map[word.Address]*StackAccount),
		deleted:          make(map[word.Address]bool),
		createdContracts: make(map[word.Address]bool),
	}
}

// substate opens a child StackExecutor cloning this executor's journal,
// budgeted at gasLimit gas.
func (e *StackExecutor) substate(gasLimit uint64, isStatic bool) *StackExecutor {
	child := &StackExecutor{
		Backend:          e.Backend,
		Config:           e.Config,
		Gasometer:        gas.New(gasLimit),
		Precompile:       e.Precompile,
		state:            make(map[word.Address]*StackAccount, len(e.state)),
		deleted:          make(map[word.Address]bool, len(e.deleted)),
		createdContracts: make(map[word.Address]bool),
		IsStatic:         e.IsStatic || isStatic,
		Depth:            e.Depth + 1,
		tmpBlockNumber:   e.tmpBlockNumber,
		tmpTimestamp:     e.tmpTimestamp,
	}
	for a, acct := range e.state {
		child.state[a] = acct.clone()
	}
	for a := range e.deleted {
		child.deleted[a] = true
	}
	return child
}

// account returns the journal entry for address, lazily populating it from
// the backend on first touch.
func (e *StackExecutor) account(address word.Address) *StackAccount {
	if acct, ok := e.state[address]; ok {
		return acct
	}
	balance, nonce := e.Backend.Basic(address)
	code := e.Backend.Code(address)
	acct := newStackAccount(Basic{Balance: balance, Nonce: nonce}, code, true)
	e.state[address] = acct
	return acct
}

// mergeSucceed merges a substate that completed successfully: logs,
// deletions, created-contract set and journal entries are all adopted, the
// substate's remaining gas is returned as a stipend, and its refunds adopt.
func (e *StackExecutor) mergeSucceed(sub *StackExecutor, trace *TraceNode) {
	trace.Logs = append([]Log(nil), sub.logs...)
	trace.Inner = append(trace.Inner, sub.callTrace...)
	e.callTrace = append(e.callTrace, trace)
	e.logs = append(e.logs, sub.logs...)
	for a := range sub.deleted {
		e.deleted[a] = true
	}
	for a := range sub.createdContracts {
		e.createdContracts[a] = true
	}
	e.state = sub.state
	e.tmpBlockNumber = sub.tmpBlockNumber
	e.tmpTimestamp = sub.tmpTimestamp
	// The caller already charged gasLimit as the substate's cost; crediting
	// back what it didn't spend is the "return remaining" stipend spec.md's
	// merge table describes.
	e.Gasometer.Credit(sub.Gasometer.Gas())
	e.Gasometer.RecordRefund(sub.Gasometer.Refunded())
}

// mergeRevert merges a substate that reverted: logs adopt for tracing, the
// substate's remaining gas is returned, but deletions/state/refunds discard.
func (e *StackExecutor) mergeRevert(sub *StackExecutor, trace *TraceNode) {
	trace.Logs = append([]Log(nil), sub.logs...)
	trace.Inner = append(trace.Inner, sub.callTrace...)
	e.callTrace = append(e.callTrace, trace)
	e.logs = append(e.logs, sub.logs...)
	e.tmpBlockNumber = sub.tmpBlockNumber
	e.tmpTimestamp = sub.tmpTimestamp
	e.Gasometer.Credit(sub.Gasometer.Gas())
}

// mergeFail merges a substate that failed outright: logs still adopt for
// tracing, but the stipend is discarded too — a failed frame forfeits
// whatever gas it had left.
func (e *StackExecutor) mergeFail(sub *StackExecutor, trace *TraceNode) {
	trace.Logs = append([]Log(nil), sub.logs...)
	trace.Inner = append(trace.Inner, sub.callTrace...)
	e.callTrace = append(e.callTrace, trace)
	e.logs = append(e.logs, sub.logs...)
	e.tmpBlockNumber = sub.tmpBlockNumber
	e.tmpTimestamp = sub.tmpTimestamp
}

// UsedGas reports the substate's net gas usage (total - capped refund).
func (e *StackExecutor) UsedGas() uint64 { return e.Gasometer.UsedGas() }

// CallTrace returns the top-level trace nodes recorded so far.
func (e *StackExecutor) CallTrace() []*TraceNode { return e.callTrace }
