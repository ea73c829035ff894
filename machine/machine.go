// Package machine implements the single-frame EVM interpreter: the operand
// stack, byte-addressable memory, jump-destination validity map and the
// opcode step/run loop. It has no knowledge of accounts, gas accounting, or
// nested calls — those live in the gas, runtime and executor packages.
package machine

import (
	"github.com/forkvm/evmcore/word"
)

// GasRequest describes one internal opcode's gas shape: its identity plus
// the memory length it needs and/or the byte length its dynamic cost scales
// with (copy length, SHA3 input length, EXP's exponent length). gas imports
// machine for ExitReason, so machine cannot import gas back to price these
// itself — Env.Charge is the seam the executor hangs its Gasometer off of.
type GasRequest struct {
	Op        OpCode
	MemoryLen uint64
	ByteLen   uint64
}

// Env carries the handful of per-frame values that internal opcodes can
// read without a host round-trip: the call context (address/caller/value),
// the two transaction-wide constants spec.md's external-opcode list does not
// require a trap for (ORIGIN, GASPRICE), a callback onto the frame's
// gasometer for the GAS opcode, the previous call's return-data buffer for
// RETURNDATASIZE/RETURNDATACOPY, and Charge, consulted before every internal
// opcode's effect so unmetered arithmetic/stack/memory opcodes can't run for
// free. Runtime owns the backing values and refreshes ReturnData/GasLeft as
// execution proceeds.
type Env struct {
	Address       word.Address
	Caller        word.Address
	ApparentValue word.Word
	Origin        word.Address
	GasPrice      word.Word
	GasLeft       func() uint64
	ReturnData    []byte
	Charge        func(GasRequest) error
}

// Machine is the core execution layer for one EVM frame.
type Machine struct {
	code   []byte
	data   []byte
	env    *Env
	valids Valids

	position uint64
	halted   bool
	exit     ExitReason

	stack  *Stack
	memory *Memory

	returnStart word.Word
	returnEnd   word.Word
}

// New constructs a Machine over immutable code and call-data, with the
// jump-destination map computed eagerly per spec.md §4.1.
func New(code, data []byte, stackLimit, memoryLimit int, env *Env) *Machine {
	if env == nil {
		env = &Env{}
	}
	return &Machine{
		code:   code,
		data:   data,
		env:    env,
		valids: NewValids(code),
		stack:  NewStack(stackLimit),
		memory: NewMemory(memoryLimit),
	}
}

// Stack returns the operand stack.
func (m *Machine) Stack() *Stack { return m.stack }

// Memory returns the byte-addressable memory.
func (m *Machine) Memory() *Memory { return m.memory }

// Code returns the immutable code buffer.
func (m *Machine) Code() []byte { return m.code }

// Position returns the current program counter. Only meaningful while the
// frame is alive (see IsDead).
func (m *Machine) Position() uint64 { return m.position }

// IsDead reports whether the frame has halted (position is an exit).
func (m *Machine) IsDead() bool { return m.halted }

// Exit returns the frame's halt reason; only meaningful if IsDead.
func (m *Machine) Exit() ExitReason { return m.exit }

// SetReturnRange marks the memory bytes to surface as the frame's return
// value when it halts.
func (m *Machine) SetReturnRange(start, end word.Word) {
	m.returnStart, m.returnEnd = start, end
}

// SetReturnData updates the previous call's return-data buffer, read by
// RETURNDATASIZE/RETURNDATACOPY.
func (m *Machine) SetReturnData(data []byte) { m.env.ReturnData = data }

// EnvGasLeft returns the callback the frame's Env uses to answer the GAS
// opcode, or nil if none was configured.
func (m *Machine) EnvGasLeft() func() uint64 { return m.env.GasLeft }

// ForceExit halts the frame immediately with reason, overriding whatever
// position it was at. Used by the cheat-code account's `load` interception
// (spec.md §4.4) to force a return value without executing any code.
func (m *Machine) ForceExit(reason ExitReason, returnStart, returnEnd word.Word) {
	m.exit = reason
	m.halted = true
	m.returnStart, m.returnEnd = returnStart, returnEnd
}

const maxUint64AsWord = ^uint64(0)

// ReturnValue reads the return range from memory, per spec.md §4.1's three
// cases: fully in range, partially in range (zero-padded), or entirely out
// of range (all zero).
func (m *Machine) ReturnValue() []byte {
	start, end := m.returnStart, m.returnEnd
	maxWord := uint64Word(maxUint64AsWord)
	if start.Gt(&maxWord) {
		var n word.Word
		n.Sub(&end, &start)
		return make([]byte, wordToLen(n))
	}
	if end.Gt(&maxWord) {
		avail := maxUint64AsWord - start.Uint64()
		out := m.memory.Get(start.Uint64(), avail)
		var total word.Word
		total.Sub(&end, &start)
		want := wordToLen(total)
		for uint64(len(out)) < want {
			out = append(out, 0)
		}
		return out
	}
	var n word.Word
	n.Sub(&end, &start)
	return m.memory.Get(start.Uint64(), wordToLen(n))
}

func uint64Word(n uint64) word.Word {
	var w word.Word
	w.SetUint64(n)
	return w
}

func wordToLen(w word.Word) uint64 {
	if !w.IsUint64() {
		return maxUint64AsWord
	}
	return w.Uint64()
}

// Step contract (spec.md §4.1):
//   - If the frame is dead, returns (false, 0, true, m.exit).
//   - Else decodes the byte at position. External opcodes trap: position
//     advances past the opcode and (true, op, false, _) is returned — this
//     is not an error, it yields control to the host.
//   - Internal opcodes are evaluated directly, producing Continue, Jump or
//     Exit; the position is updated accordingly.
func (m *Machine) Step() (trapped bool, trapOp OpCode, halted bool, reason ExitReason) {
	if m.halted {
		return false, 0, true, m.exit
	}
	if m.position >= uint64(len(m.code)) {
		m.halted = true
		m.exit = Succeed(Stopped)
		return false, 0, true, m.exit
	}

	op := OpCode(m.code[m.position])

	if IsExternal(op) {
		m.position++
		return true, op, false, ExitReason{}
	}

	ctrl := m.eval(op)
	switch ctrl.kind {
	case ctrlContinue:
		m.position += ctrl.n
		return false, 0, false, ExitReason{}
	case ctrlJump:
		if !m.valids.Is(ctrl.target) {
			m.halted = true
			m.exit = Err(InvalidJump)
			return false, 0, true, m.exit
		}
		m.position = ctrl.target
		return false, 0, false, ExitReason{}
	default: // ctrlExit
		m.halted = true
		m.exit = ctrl.exit
		return false, 0, true, m.exit
	}
}

// Run steps the machine until it produces a trap or an exit.
func (m *Machine) Run() (trapped bool, trapOp OpCode, reason ExitReason) {
	for {
		trapped, op, halted, r := m.Step()
		if trapped {
			return true, op, ExitReason{}
		}
		if halted {
			return false, 0, r
		}
	}
}
