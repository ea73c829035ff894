// Package runtime wraps a machine.Machine with a Handler that answers the
// external opcodes the Machine itself cannot evaluate: storage, environment
// reads, logging, self-destruct and the CALL/CREATE family. Nested frames
// are ordinary recursive calls into the Handler — there is no interrupt or
// continuation object, matching the original's synchronous "_owned"
// executor variant (spec.md §9 "Nested execution").
package runtime

import (
	"github.com/forkvm/evmcore/machine"
	"github.com/forkvm/evmcore/word"
)

// Context is the immutable call context a frame runs under.
type Context struct {
	Address       word.Address
	Caller        word.Address
	ApparentValue word.Word
}

// Handler answers every external opcode a Runtime traps on. Implementations
// (the executor) own gas accounting for each of these operations; Runtime
// itself only shuttles stack operands to and from the Handler.
type Handler interface {
	Balance(addr word.Address) (word.Word, error)
	ExtCodeSize(addr word.Address) (int, error)
	ExtCodeHash(addr word.Address) (word.Hash, error)
	ExtCodeCopy(addr word.Address) ([]byte, error)
	SLoad(addr word.Address, key word.Hash) (word.Hash, error)
	SStore(addr word.Address, key, value word.Hash) error

	BlockHash(number uint64) (word.Hash, error)
	Coinbase() word.Address
	Timestamp() uint64
	Number() uint64
	Difficulty() word.Word
	GasLimit() uint64
	ChainID() word.Word
	SelfBalance(addr word.Address) (word.Word, error)

	Log(addr word.Address, topics []word.Hash, data []byte) error
	SelfDestruct(addr, target word.Address) error

	// Call executes a nested message call and returns its exit reason and
	// output bytes. gasLimit is the amount the caller is willing to forward;
	// the Handler is responsible for the 1/64th rule and the call stipend.
	Call(kind CallKind, gasLimit uint64, codeAddress, context word.Address, transferFrom, transferTo *word.Address, value word.Word, input []byte, isStatic bool) (machine.ExitReason, []byte, uint64)

	// Create executes a nested contract creation and returns its exit
	// reason, the created address (if any) and the returned code/error
	// payload.
	Create(scheme CreateScheme, caller word.Address, value word.Word, initCode []byte, salt word.Word, gasLimit uint64) (machine.ExitReason, word.Address, []byte, uint64)
}

// CallKind distinguishes CALL/CALLCODE/DELEGATECALL/STATICCALL so the
// Handler can apply the right context-passing rules.
type CallKind int

const (
	CallKindCall CallKind = iota
	CallKindCallCode
	CallKindDelegateCall
	CallKindStaticCall
)

// CreateScheme distinguishes legacy CREATE, CREATE2 and the test-only fixed
// address scheme.
type CreateScheme int

const (
	CreateSchemeLegacy CreateScheme = iota
	CreateSchemeCreate2
	CreateSchemeFixed
)

// Runtime is one frame's machine plus its call context and return-data
// buffer; it owns the loop that steps the Machine and dispatches the
// opcodes it traps on.
type Runtime struct {
	machine *machine.Machine
	context Context
	handler Handler
}

// New constructs a Runtime over code/data, running under context and
// answering external opcodes through handler.
func New(code, data []byte, ctx Context, env *machine.Env, stackLimit, memoryLimit int, handler Handler) *Runtime {
	if env == nil {
		env = &machine.Env{}
	}
	env.Address = ctx.Address
	env.Caller = ctx.Caller
	env.ApparentValue = ctx.ApparentValue
	return &Runtime{
		machine: machine.New(code, data, stackLimit, memoryLimit, env),
		context: ctx,
		handler: handler,
	}
}

// Machine exposes the underlying interpreter, for callers that need direct
// access to its stack/memory (e.g. the cheat-code `load` shortcut).
func (r *Runtime) Machine() *machine.Machine { return r.machine }

// Run drives the Machine to completion, dispatching every trapped external
// opcode through the Handler until the frame halts.
func (r *Runtime) Run() machine.ExitReason {
	for {
		trapped, op, halted, reason := r.machine.Step()
		if halted {
			return reason
		}
		if !trapped {
			continue
		}
		if exit := r.eval(op); exit != nil {
			return *exit
		}
	}
}

// eval handles one trapped external opcode, popping its operands from the
// Machine's stack and pushing its result. A non-nil return means the frame
// must halt immediately with that reason.
func (r *Runtime) eval(op machine.OpCode) *machine.ExitReason {
	s := r.machine.Stack()
	switch op {
	case machine.BALANCE:
		return r.withAddress(s, func(addr word.Address) error {
			bal, err := r.handler.Balance(addr)
			if err != nil {
				return err
			}
			return r.push(s, bal)
		})
	case machine.EXTCODESIZE:
		return r.withAddress(s, func(addr word.Address) error {
			n, err := r.handler.ExtCodeSize(addr)
			if err != nil {
				return err
			}
			return r.pushUint64(s, uint64(n))
		})
	case machine.EXTCODEHASH:
		return r.withAddress(s, func(addr word.Address) error {
			h, err := r.handler.ExtCodeHash(addr)
			if err != nil {
				return err
			}
			return r.push(s, word.FromHash(h))
		})
	case machine.EXTCODECOPY:
		return r.opExtCodeCopy(s)
	case machine.SLOAD:
		return r.opSLoad(s)
	case machine.SSTORE:
		return r.opSStore(s)
	case machine.BLOCKHASH:
		return r.withUint64(s, func(n uint64) error {
			h, err := r.handler.BlockHash(n)
			if err != nil {
				return err
			}
			return r.push(s, word.FromHash(h))
		})
	case machine.COINBASE:
		return r.pushOnly(s, word.FromAddress(r.handler.Coinbase()))
	case machine.TIMESTAMP:
		return r.pushOnly(s, uintWord(r.handler.Timestamp()))
	case machine.NUMBER:
		return r.pushOnly(s, uintWord(r.handler.Number()))
	case machine.DIFFICULTY:
		return r.pushOnly(s, r.handler.Difficulty())
	case machine.GASLIMIT:
		return r.pushOnly(s, uintWord(r.handler.GasLimit()))
	case machine.CHAINID:
		return r.pushOnly(s, r.handler.ChainID())
	case machine.SELFBALANCE:
		bal, err := r.handler.SelfBalance(r.context.Address)
		if err != nil {
			return asExit(err)
		}
		return r.pushOnly(s, bal)
	case machine.LOG0, machine.LOG0 + 1, machine.LOG0 + 2, machine.LOG0 + 3, machine.LOG4:
		return r.opLog(s, int(op-machine.LOG0))
	case machine.SELFDESTRUCT:
		return r.opSelfDestruct(s)
	case machine.CALL, machine.CALLCODE, machine.DELEGATECALL, machine.STATICCALL:
		return r.opCall(s, op)
	case machine.CREATE, machine.CREATE2:
		return r.opCreate(s, op)
	default:
		e := machine.OtherError("unhandled external opcode 0x%02x", byte(op))
		return &e
	}
}

func uintWord(n uint64) word.Word {
	var w word.Word
	w.SetUint64(n)
	return w
}

func asExit(err error) *machine.ExitReason {
	if er, ok := err.(machine.ExitReason); ok {
		return &er
	}
	e := machine.OtherError("%s", err.Error())
	return &e
}

func (r *Runtime) push(s *machine.Stack, w word.Word) error { return s.Push(w) }

func (r *Runtime) pushUint64(s *machine.Stack, n uint64) error { return s.Push(uintWord(n)) }

func (r *Runtime) pushOnly(s *machine.Stack, w word.Word) *machine.ExitReason {
	if err := s.Push(w); err != nil {
		return asExit(err)
	}
	return nil
}

func (r *Runtime) withAddress(s *machine.Stack, f func(addr word.Address) error) *machine.ExitReason {
	v, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	if err := f(word.ToAddress(v)); err != nil {
		return asExit(err)
	}
	return nil
}

func (r *Runtime) withUint64(s *machine.Stack, f func(n uint64) error) *machine.ExitReason {
	v, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	n := uint64(0)
	if v.IsUint64() {
		n = v.Uint64()
	}
	if err := f(n); err != nil {
		return asExit(err)
	}
	return nil
}
