package machine

import (
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/forkvm/evmcore/word"
)

func keccak256(data []byte) []byte { return crypto.Keccak256(data) }

type ctrlKind int

const (
	ctrlContinue ctrlKind = iota
	ctrlJump
	ctrlExit
)

type control struct {
	kind   ctrlKind
	n      uint64
	target uint64
	exit   ExitReason
}

func cont(n uint64) control     { return control{kind: ctrlContinue, n: n} }
func jump(to uint64) control    { return control{kind: ctrlJump, target: to} }
func halt(e ExitReason) control { return control{kind: ctrlExit, exit: e} }

// tryCharge consults env.Charge, if any, for req before an opcode's effect
// takes place. A nil Charge (the zero-value Env this package's own tests
// construct) metes nothing, preserving the no-host fast path.
func (m *Machine) tryCharge(req GasRequest) (control, bool) {
	if m.env.Charge == nil {
		return control{}, false
	}
	if err := m.env.Charge(req); err != nil {
		er, ok := err.(ExitReason)
		if !ok {
			er = OtherError("%s", err.Error())
		}
		return halt(er), true
	}
	return control{}, false
}

// chargeSimple charges op's static cost against the frame's current memory
// high-water mark. Used for every opcode whose cost has no length-dependent
// component; the *COPY/SHA3/EXP/MLOAD/MSTORE*/RETURN/REVERT family compute
// their own GasRequest once their stack operands are known (see hasOwnCharge).
func (m *Machine) chargeSimple(op OpCode) (control, bool) {
	return m.tryCharge(GasRequest{Op: op, MemoryLen: uint64(m.memory.Len())})
}

func hasOwnCharge(op OpCode) bool {
	switch op {
	case CALLDATACOPY, CODECOPY, RETURNDATACOPY,
		MLOAD, MSTORE, MSTORE8, SHA3, EXP, RETURN, REVERT:
		return true
	default:
		return false
	}
}

// eval evaluates one internal (non-trapping) opcode, mutating the machine's
// stack/memory/return range and reporting how the program counter should
// move next.
func (m *Machine) eval(op OpCode) control {
	switch {
	case IsPush(op):
		if c, failed := m.chargeSimple(op); failed {
			return c
		}
		return m.opPush(op)
	case IsDup(op):
		if c, failed := m.chargeSimple(op); failed {
			return c
		}
		return m.opDup(op)
	case IsSwap(op):
		if c, failed := m.chargeSimple(op); failed {
			return c
		}
		return m.opSwap(op)
	}

	if !hasOwnCharge(op) {
		if c, failed := m.chargeSimple(op); failed {
			return c
		}
	}

	switch op {
	case STOP:
		return halt(Succeed(Stopped))
	case ADD:
		return m.binop(func(z, x, y *word.Word) { z.Add(x, y) })
	case MUL:
		return m.binop(func(z, x, y *word.Word) { z.Mul(x, y) })
	case SUB:
		return m.binop(func(z, x, y *word.Word) { z.Sub(x, y) })
	case DIV:
		return m.binop(func(z, x, y *word.Word) { z.Div(x, y) })
	case SDIV:
		return m.binop(func(z, x, y *word.Word) { z.SDiv(x, y) })
	case MOD:
		return m.binop(func(z, x, y *word.Word) { z.Mod(x, y) })
	case SMOD:
		return m.binop(func(z, x, y *word.Word) { z.SMod(x, y) })
	case EXP:
		return m.opExp()
	case SIGNEXTEND:
		return m.binop(func(z, x, y *word.Word) { z.ExtendSign(y, x) })
	case ADDMOD:
		return m.triop(func(z, x, y, mod *word.Word) {
			if mod.IsZero() {
				z.Clear()
			} else {
				z.AddMod(x, y, mod)
			}
		})
	case MULMOD:
		return m.triop(func(z, x, y, mod *word.Word) {
			if mod.IsZero() {
				z.Clear()
			} else {
				z.MulMod(x, y, mod)
			}
		})
	case LT:
		return m.binop(func(z, x, y *word.Word) { setBool(z, x.Lt(y)) })
	case GT:
		return m.binop(func(z, x, y *word.Word) { setBool(z, x.Gt(y)) })
	case SLT:
		return m.binop(func(z, x, y *word.Word) { setBool(z, x.Slt(y)) })
	case SGT:
		return m.binop(func(z, x, y *word.Word) { setBool(z, x.Sgt(y)) })
	case EQ:
		return m.binop(func(z, x, y *word.Word) { setBool(z, x.Eq(y)) })
	case ISZERO:
		return m.unop(func(z, x *word.Word) { setBool(z, x.IsZero()) })
	case AND:
		return m.binop(func(z, x, y *word.Word) { z.And(x, y) })
	case OR:
		return m.binop(func(z, x, y *word.Word) { z.Or(x, y) })
	case XOR:
		return m.binop(func(z, x, y *word.Word) { z.Xor(x, y) })
	case NOT:
		return m.unop(func(z, x *word.Word) { z.Not(x) })
	case BYTE:
		return m.binop(func(z, i, v *word.Word) { z.Set(v); z.Byte(i) })
	case SHL:
		return m.binop(func(z, shift, v *word.Word) {
			if shift.LtUint64(256) {
				z.Set(v)
				z.Lsh(z, uint(shift.Uint64()))
			} else {
				z.Clear()
			}
		})
	case SHR:
		return m.binop(func(z, shift, v *word.Word) {
			if shift.LtUint64(256) {
				z.Set(v)
				z.Rsh(z, uint(shift.Uint64()))
			} else {
				z.Clear()
			}
		})
	case SAR:
		return m.binop(func(z, shift, v *word.Word) {
			if shift.GtUint64(255) {
				if v.Sign() >= 0 {
					z.Clear()
				} else {
					z.SetAllOne()
				}
				return
			}
			z.Set(v)
			z.SRsh(z, uint(shift.Uint64()))
		})
	case ADDRESS:
		return m.pushWord(word.FromAddress(m.env.Address))
	case ORIGIN:
		return m.pushWord(word.FromAddress(m.env.Origin))
	case CALLER:
		return m.pushWord(word.FromAddress(m.env.Caller))
	case CALLVALUE:
		return m.pushWord(m.env.ApparentValue)
	case CALLDATALOAD:
		return m.opCallDataLoad()
	case CALLDATASIZE:
		return m.pushWord(uint64Word(uint64(len(m.data))))
	case CALLDATACOPY:
		return m.opDataCopy(CALLDATACOPY, m.data)
	case CODESIZE:
		return m.pushWord(uint64Word(uint64(len(m.code))))
	case CODECOPY:
		return m.opDataCopy(CODECOPY, m.code)
	case GASPRICE:
		return m.pushWord(m.env.GasPrice)
	case RETURNDATASIZE:
		return m.pushWord(uint64Word(uint64(len(m.env.ReturnData))))
	case RETURNDATACOPY:
		return m.opReturnDataCopy()
	case POP:
		if _, err := m.stack.Pop(); err != nil {
			return halt(err.(ExitReason))
		}
		return cont(1)
	case MLOAD:
		return m.opMLoad()
	case MSTORE:
		return m.opMStore(MSTORE, 32)
	case MSTORE8:
		return m.opMStore(MSTORE8, 1)
	case JUMP:
		return m.opJump()
	case JUMPI:
		return m.opJumpI()
	case PC:
		return m.pushWord(uint64Word(m.position))
	case MSIZE:
		return m.pushWord(uint64Word(uint64(m.memory.Len())))
	case GAS:
		var g uint64
		if m.env.GasLeft != nil {
			g = m.env.GasLeft()
		}
		return m.pushWord(uint64Word(g))
	case JUMPDEST:
		return cont(1)
	case SHA3:
		return m.opSha3()
	case RETURN:
		return m.opHalt(RETURN, Succeed(Returned))
	case REVERT:
		return m.opHalt(REVERT, RevertWith(Reverted))
	case INVALID:
		return halt(Err(DesignatedInvalid))
	default:
		return halt(OtherError("unimplemented internal opcode 0x%02x", byte(op)))
	}
}

func setBool(z *word.Word, b bool) {
	if b {
		z.SetOne()
	} else {
		z.Clear()
	}
}

func (m *Machine) binop(f func(z, x, y *word.Word)) control {
	x, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	y, err := m.stack.Peek(0)
	if err != nil {
		return halt(err.(ExitReason))
	}
	f(y, &x, y)
	return cont(1)
}

func (m *Machine) triop(f func(z, x, y, mod *word.Word)) control {
	x, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	y, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	mod, err := m.stack.Peek(0)
	if err != nil {
		return halt(err.(ExitReason))
	}
	f(mod, &x, &y, mod)
	return cont(1)
}

func (m *Machine) unop(f func(z, x *word.Word)) control {
	x, err := m.stack.Peek(0)
	if err != nil {
		return halt(err.(ExitReason))
	}
	f(x, x)
	return cont(1)
}

func (m *Machine) pushWord(w word.Word) control {
	if err := m.stack.Push(w); err != nil {
		return halt(err.(ExitReason))
	}
	return cont(1)
}

func (m *Machine) opPush(op OpCode) control {
	n := PushSize(op)
	start := m.position + 1
	end := start + uint64(n)
	buf := make([]byte, n)
	if end > uint64(len(m.code)) {
		copy(buf, m.code[min64(start, uint64(len(m.code))):])
	} else {
		copy(buf, m.code[start:end])
	}
	var w word.Word
	w.SetBytes(buf)
	if err := m.stack.Push(w); err != nil {
		return halt(err.(ExitReason))
	}
	return cont(uint64(1 + n))
}

func (m *Machine) opDup(op OpCode) control {
	n := int(op-DUP1) + 1
	if err := m.stack.Dup(n); err != nil {
		return halt(err.(ExitReason))
	}
	return cont(1)
}

func (m *Machine) opSwap(op OpCode) control {
	n := int(op-SWAP1) + 1
	if err := m.stack.Swap(n); err != nil {
		return halt(err.(ExitReason))
	}
	return cont(1)
}

func (m *Machine) opCallDataLoad() control {
	off, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	buf := make([]byte, 32)
	if off.IsUint64() {
		o := off.Uint64()
		if o < uint64(len(m.data)) {
			copy(buf, sliceFrom(m.data, o, 32))
		}
	}
	var w word.Word
	w.SetBytes(buf)
	if err := m.stack.Push(w); err != nil {
		return halt(err.(ExitReason))
	}
	return cont(1)
}

func sliceFrom(b []byte, off uint64, n int) []byte {
	if off >= uint64(len(b)) {
		return nil
	}
	end := off + uint64(n)
	if end > uint64(len(b)) {
		end = uint64(len(b))
	}
	return b[off:end]
}

// opExp reads the exponent's bit length before Exp overwrites it in place,
// since the dynamic cost scales with the exponent's byte length.
func (m *Machine) opExp() control {
	x, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	y, err := m.stack.Peek(0)
	if err != nil {
		return halt(err.(ExitReason))
	}
	byteLen := uint64((y.BitLen() + 7) / 8)
	if c, failed := m.tryCharge(GasRequest{Op: EXP, MemoryLen: uint64(m.memory.Len()), ByteLen: byteLen}); failed {
		return c
	}
	y.Exp(&x, y)
	return cont(1)
}

func (m *Machine) opDataCopy(op OpCode, src []byte) control {
	destOff, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	srcOff, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	length, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	if length.IsZero() {
		if c, failed := m.tryCharge(GasRequest{Op: op, MemoryLen: uint64(m.memory.Len())}); failed {
			return c
		}
		return cont(1)
	}
	if !destOff.IsUint64() || !srcOff.IsUint64() || !length.IsUint64() {
		return halt(Err(OutOfOffset))
	}
	n := length.Uint64()
	if c, failed := m.tryCharge(GasRequest{Op: op, MemoryLen: destOff.Uint64() + n, ByteLen: n}); failed {
		return c
	}
	buf := make([]byte, n)
	copy(buf, sliceFrom(src, srcOff.Uint64(), int(n)))
	if merr := m.memory.Set(destOff.Uint64(), buf); merr != nil {
		return halt(merr.(ExitReason))
	}
	return cont(1)
}

func (m *Machine) opReturnDataCopy() control {
	destOff, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	srcOff, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	length, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	if !destOff.IsUint64() || !srcOff.IsUint64() || !length.IsUint64() {
		return halt(Err(OutOfOffset))
	}
	so, n := srcOff.Uint64(), length.Uint64()
	if so+n > uint64(len(m.env.ReturnData)) {
		return halt(Err(OutOfOffset))
	}
	if c, failed := m.tryCharge(GasRequest{Op: RETURNDATACOPY, MemoryLen: destOff.Uint64() + n, ByteLen: n}); failed {
		return c
	}
	buf := make([]byte, n)
	copy(buf, m.env.ReturnData[so:so+n])
	if merr := m.memory.Set(destOff.Uint64(), buf); merr != nil {
		return halt(merr.(ExitReason))
	}
	return cont(1)
}

func (m *Machine) opMLoad() control {
	off, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	if !off.IsUint64() {
		return halt(Err(OutOfOffset))
	}
	o := off.Uint64()
	if c, failed := m.tryCharge(GasRequest{Op: MLOAD, MemoryLen: o + 32}); failed {
		return c
	}
	if merr := m.memory.Resize(o + 32); merr != nil {
		return halt(merr.(ExitReason))
	}
	var w word.Word
	w.SetBytes(m.memory.Get(o, 32))
	if err := m.stack.Push(w); err != nil {
		return halt(err.(ExitReason))
	}
	return cont(1)
}

func (m *Machine) opMStore(op OpCode, width int) control {
	off, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	v, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	if !off.IsUint64() {
		return halt(Err(OutOfOffset))
	}
	o := off.Uint64()
	if c, failed := m.tryCharge(GasRequest{Op: op, MemoryLen: o + uint64(width)}); failed {
		return c
	}
	var buf []byte
	if width == 1 {
		b := v.Bytes32()
		buf = []byte{b[31]}
	} else {
		b := v.Bytes32()
		buf = b[:]
	}
	if merr := m.memory.Set(o, buf); merr != nil {
		return halt(merr.(ExitReason))
	}
	return cont(1)
}

func (m *Machine) opJump() control {
	target, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	if !target.IsUint64() {
		return halt(Err(InvalidJump))
	}
	return jump(target.Uint64())
}

func (m *Machine) opJumpI() control {
	target, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	cond, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	if cond.IsZero() {
		return cont(1)
	}
	if !target.IsUint64() {
		return halt(Err(InvalidJump))
	}
	return jump(target.Uint64())
}

func (m *Machine) opSha3() control {
	off, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	length, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	if !off.IsUint64() || !length.IsUint64() {
		return halt(Err(OutOfOffset))
	}
	o, n := off.Uint64(), length.Uint64()
	if c, failed := m.tryCharge(GasRequest{Op: SHA3, MemoryLen: o + n, ByteLen: n}); failed {
		return c
	}
	if merr := m.memory.Resize(o + n); merr != nil {
		return halt(merr.(ExitReason))
	}
	data := m.memory.Get(o, n)
	hash := keccak256(data)
	var w word.Word
	w.SetBytes(hash)
	if err := m.stack.Push(w); err != nil {
		return halt(err.(ExitReason))
	}
	return cont(1)
}

func (m *Machine) opHalt(op OpCode, reason ExitReason) control {
	off, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	length, err := m.stack.Pop()
	if err != nil {
		return halt(err.(ExitReason))
	}
	var end word.Word
	end.Add(&off, &length)
	m.SetReturnRange(off, end)
	if length.IsUint64() && off.IsUint64() {
		need := off.Uint64() + length.Uint64()
		if c, failed := m.tryCharge(GasRequest{Op: op, MemoryLen: need}); failed {
			return c
		}
		if merr := m.memory.Resize(need); merr != nil {
			return halt(merr.(ExitReason))
		}
	}
	return halt(reason)
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
