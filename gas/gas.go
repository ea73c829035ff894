// Package gas implements the per-frame gas counter described in spec.md
// §4.2: total used gas, a memory-cost high-water mark, and a signed refund
// ledger, plus the Istanbul dynamic cost helpers (memory quadratic cost,
// SSTORE net metering, the CALL 1/64th rule, LOG/EXP/copy costs) that the
// runtime and executor packages call while dispatching external opcodes.
package gas

import (
	"math"

	gethmath "github.com/ethereum/go-ethereum/common/math"

	"github.com/forkvm/evmcore/config"
	"github.com/forkvm/evmcore/machine"
)

// ErrOutOfGas is returned by every metering call that would drive the
// frame's remaining gas negative.
var ErrOutOfGas = machine.Err(machine.OutOfGas)

// Gasometer is one frame's gas ledger. It never discovers gas on its own —
// the executor gives it a gas limit at construction and charges opcode
// costs into it: internal opcodes through machine.Env.Charge, trapped ones
// from its Handler methods.
type Gasometer struct {
	limit      uint64
	totalUsed  uint64
	memoryCost uint64
	refunded   int64
}

// New constructs a Gasometer with limit gas available.
func New(limit uint64) *Gasometer {
	return &Gasometer{limit: limit}
}

// Gas returns the gas remaining to spend.
func (g *Gasometer) Gas() uint64 {
	if g.totalUsed > g.limit {
		return 0
	}
	return g.limit - g.totalUsed
}

// TotalUsedGas returns the running total charged so far, before refunds.
func (g *Gasometer) TotalUsedGas() uint64 { return g.totalUsed }

// Refunded returns the current refund balance.
func (g *Gasometer) Refunded() int64 { return g.refunded }

// UsedGas computes total - min(total/2, refunded); EIP-3529 is not applied,
// the cap stays at /2 per spec.md §4.2 and §9.
func (g *Gasometer) UsedGas() uint64 {
	halfUsed := g.totalUsed / 2
	refund := g.refunded
	if refund < 0 {
		refund = 0
	}
	r := uint64(refund)
	if r > halfUsed {
		r = halfUsed
	}
	return g.totalUsed - r
}

// RecordCost charges n gas, failing OutOfGas if it would exceed the limit.
func (g *Gasometer) RecordCost(n uint64) error {
	if g.totalUsed > g.limit || n > g.limit-g.totalUsed {
		g.fail()
		return ErrOutOfGas
	}
	g.totalUsed += n
	return nil
}

// RecordRefund adds delta (positive or negative) to the refund ledger.
func (g *Gasometer) RecordRefund(delta int64) {
	g.refunded += delta
}

// Credit returns amount of previously-charged gas to the ledger, used when
// a merged substate's unspent gas (its "stipend") is handed back to the
// parent frame.
func (g *Gasometer) Credit(amount uint64) {
	if amount > g.totalUsed {
		amount = g.totalUsed
	}
	g.totalUsed -= amount
}

// RecordOpcode charges gasCost plus the growth delta of memoryCost against
// the high-water mark, using the EVM quadratic memory schedule.
func (g *Gasometer) RecordOpcode(gasCost uint64, newMemoryLen uint64) error {
	memCost := MemoryGasCost(newMemoryLen)
	delta := uint64(0)
	if memCost > g.memoryCost {
		delta = memCost - g.memoryCost
		g.memoryCost = memCost
	}
	total := gasCost
	if delta > math.MaxUint64-total {
		g.fail()
		return ErrOutOfGas
	}
	total += delta
	return g.RecordCost(total)
}

// RecordTransaction charges the intrinsic transaction cost n, failing if it
// exceeds the gas limit outright (there is no frame yet to partially spend).
func (g *Gasometer) RecordTransaction(n uint64) error {
	if n > g.limit {
		g.fail()
		return ErrOutOfGas
	}
	return g.RecordCost(n)
}

// RecordDeposit charges 200 gas per byte of deployed contract code.
func (g *Gasometer) RecordDeposit(codeLen int) error {
	return g.RecordCost(uint64(codeLen) * 200)
}

// fail marks the frame fully out of gas: no further gas is available, and
// any gas the caller believed was unspent is forfeited.
func (g *Gasometer) fail() {
	g.totalUsed = g.limit
}

// MemoryGasCost computes the EVM quadratic memory-expansion cost for a
// memory region of size bytes, rounded up to whole words.
func MemoryGasCost(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	words := (size + 31) / 32
	linear := words * 3
	quad := words * words / 512
	return linear + quad
}

// ExpCost computes the cost of EXP given the exponent's byte length.
func ExpCost(cfg *config.Config, exponentByteLen int) uint64 {
	return 10 + cfg.GasExpByte*uint64(exponentByteLen)
}

// SstoreCost computes the gas charged for an SSTORE under EIP-1283/2200 net
// metering, given the slot's original (pre-transaction), current and new
// values.
func SstoreCost(cfg *config.Config, original, current, new [32]byte) uint64 {
	if !cfg.SstoreGasMetering {
		if isZero(current) && !isZero(new) {
			return cfg.GasSStoreSet
		}
		return cfg.GasSStoreReset
	}
	if current == new {
		return cfg.GasSLoad
	}
	if original == current {
		if isZero(original) {
			return cfg.GasSStoreSet
		}
		return cfg.GasSStoreReset
	}
	return cfg.GasSLoad
}

// SstoreRefund computes the refund delta an SSTORE produces under net
// metering, given the same three values.
func SstoreRefund(cfg *config.Config, original, current, new [32]byte) int64 {
	if !cfg.SstoreGasMetering {
		if !isZero(current) && isZero(new) {
			return cfg.RefundSStoreClears
		}
		return 0
	}
	if current == new {
		return 0
	}
	if original == current {
		// First write to this slot within the current execution: a clearing
		// write grants the refund immediately, matching the cost clause
		// above rather than the dirty-slot adjustment below.
		if !isZero(original) && isZero(new) {
			return cfg.RefundSStoreClears
		}
		return 0
	}
	var delta int64
	if !isZero(original) {
		if isZero(current) {
			delta -= cfg.RefundSStoreClears
		}
		if isZero(new) {
			delta += cfg.RefundSStoreClears
		}
	}
	if original == new {
		if isZero(original) {
			delta += int64(cfg.GasSStoreSet - cfg.GasSLoad)
		} else {
			delta += int64(cfg.GasSStoreReset - cfg.GasSLoad)
		}
	}
	return delta
}

func isZero(b [32]byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}

// CallGas applies the 1/64th rule (EIP-150): when requested exceeds the
// 63/64 share of available, the call is capped rather than rejected, unless
// cfg.ErrOnCallWithMoreGas demands an outright failure.
func CallGas(cfg *config.Config, available, requested uint64) (uint64, error) {
	if !cfg.CallL64AfterGas {
		return requested, nil
	}
	allowed := available - available/64
	if requested > allowed {
		if cfg.ErrOnCallWithMoreGas {
			return 0, machine.Err(machine.OutOfGas)
		}
		return allowed, nil
	}
	return requested, nil
}

// CopyCost computes the cost of an *COPY opcode's word-rounded length,
// using go-ethereum's overflow-checked multiply the way the teacher's
// interpreter leans on common/math for safe arithmetic.
func CopyCost(length uint64) (uint64, error) {
	words := (length + 31) / 32
	cost, overflow := gethmath.SafeMul(words, 3)
	if overflow {
		return 0, ErrOutOfGas
	}
	return cost, nil
}

// Per-opcode LOG costs (Yellow Paper G_log/G_logdata/G_logtopic). These have
// no per-fork variant in config.Config (see Config.istanbul() in the
// runtime package this was ported from), so they stay as gas-package
// constants rather than Config fields.
const (
	GasLog      uint64 = 375
	GasLogData  uint64 = 8
	GasLogTopic uint64 = 375
)

// Sha3Cost computes SHA3's dynamic cost: a flat 30 plus 6 per word of input.
func Sha3Cost(length uint64) (uint64, error) {
	words := (length + 31) / 32
	wordCost, overflow := gethmath.SafeMul(words, 6)
	if overflow {
		return 0, ErrOutOfGas
	}
	return 30 + wordCost, nil
}

// StaticCost returns the Yellow Paper base cost for an internal opcode whose
// price has no length-dependent component. EXP and SHA3 are metered by
// ExpCost/Sha3Cost instead and never reach the default branch here.
func StaticCost(op machine.OpCode) uint64 {
	switch op {
	case machine.STOP, machine.RETURN, machine.REVERT, machine.INVALID:
		return 0
	case machine.ADDRESS, machine.ORIGIN, machine.CALLER, machine.CALLVALUE,
		machine.CALLDATASIZE, machine.CODESIZE, machine.GASPRICE,
		machine.RETURNDATASIZE, machine.POP, machine.PC, machine.MSIZE, machine.GAS:
		return 2
	case machine.MUL, machine.DIV, machine.SDIV, machine.MOD, machine.SMOD, machine.SIGNEXTEND:
		return 5
	case machine.ADDMOD, machine.MULMOD, machine.JUMP:
		return 8
	case machine.JUMPI:
		return 10
	case machine.JUMPDEST:
		return 1
	default:
		return 3
	}
}
