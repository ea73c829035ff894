package machine

import (
	"testing"

	"github.com/forkvm/evmcore/word"
)

func run(t *testing.T, code, data []byte, env *Env) *Machine {
	t.Helper()
	m := New(code, data, 1024, 1<<16, env)
	trapped, op, exit := m.Run()
	if trapped {
		t.Fatalf("unexpected trap on opcode 0x%02x", op)
	}
	if !exit.IsSucceed() {
		t.Fatalf("run failed: %v", exit)
	}
	return m
}

func TestArithmeticAndReturn(t *testing.T) {
	code := []byte{
		byte(PUSH1), 0x02,
		byte(PUSH1), 0x03,
		byte(ADD), // 5
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	}
	m := run(t, code, nil, nil)
	got := word.Zero()
	got.SetBytes(m.ReturnValue())
	if got.Uint64() != 5 {
		t.Fatalf("got %d, want 5", got.Uint64())
	}
}

func TestJumpToInvalidDestinationFails(t *testing.T) {
	code := []byte{
		byte(PUSH1), 0x05,
		byte(JUMP),
		byte(JUMPDEST),
	}
	m := New(code, nil, 1024, 1<<16, nil)
	_, _, exit := m.Run()
	if exit.IsSucceed() || exit.Error() == "" {
		t.Fatal("expected invalid jump error")
	}
}

func TestExternalOpcodeTraps(t *testing.T) {
	code := []byte{byte(PUSH1), 0x00, byte(SLOAD)}
	m := New(code, nil, 1024, 1<<16, nil)
	trapped, op, _, _ := m.Step()
	if trapped {
		t.Fatal("PUSH1 should not trap")
	}
	trapped, op, halted, _ := m.Step()
	if !trapped || op != SLOAD || halted {
		t.Fatalf("expected SLOAD trap, got trapped=%v op=%v halted=%v", trapped, op, halted)
	}
}

func TestSARShiftOf256SignExtends(t *testing.T) {
	// -1 arithmetic-shifted by exactly 256 must saturate to all-ones, not
	// fall through to a regular SRsh(256) (which would be a no-op on the
	// underlying 256-bit word and return the same value unshifted).
	negOne := word.Zero()
	negOne.SetAllOne()
	code := []byte{
		byte(PUSH1), 0x01, byte(PUSH1), 0x00, byte(SUB), // -1 via 0-1, wraps
		byte(OpCode(0x61)), 0x01, 0x00, // PUSH2, shift = 256
		byte(SAR),
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	}
	m := run(t, code, nil, nil)
	got := word.Zero()
	got.SetBytes(m.ReturnValue())
	if got.Cmp(&negOne) != 0 {
		t.Fatalf("got %x, want all-ones", m.ReturnValue())
	}
}

func TestStackUnderflowHalts(t *testing.T) {
	code := []byte{byte(ADD)}
	m := New(code, nil, 1024, 1<<16, nil)
	_, _, exit := m.Run()
	if exit.IsSucceed() {
		t.Fatal("expected underflow error")
	}
}

// TestInternalOpcodeGasIsMetered proves every internal opcode consults
// Env.Charge before its effect runs, not just the opcodes that trap out to
// a host Handler — a budget one charge short of what the program needs must
// fail, and the exact budget it needs must succeed.
func TestInternalOpcodeGasIsMetered(t *testing.T) {
	code := []byte{
		byte(PUSH1), 0x01,
		byte(PUSH1), 0x02,
		byte(ADD),
		byte(PUSH1), 0x00,
		byte(MSTORE),
	}
	// Charges land on: PUSH1, PUSH1, ADD, PUSH1 (each by the generic
	// chargeSimple path) then MSTORE's own length-aware charge — five in total.
	run := func(budget uint64) ExitReason {
		var used uint64
		env := &Env{Charge: func(GasRequest) error {
			used++
			if used > budget {
				return Err(OutOfGas)
			}
			return nil
		}}
		m := New(code, nil, 1024, 1<<16, env)
		_, _, exit := m.Run()
		return exit
	}

	if exit := run(4); exit.IsSucceed() {
		t.Fatal("expected a 4-charge budget to run out of gas before MSTORE")
	}
	if exit := run(5); !exit.IsSucceed() {
		t.Fatalf("expected a 5-charge budget to succeed, got %v", exit)
	}
}

func TestCallDataLoadZeroPads(t *testing.T) {
	code := []byte{
		byte(PUSH1), 0x00,
		byte(CALLDATALOAD),
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	}
	m := run(t, code, []byte{0xaa, 0xbb}, nil)
	out := m.ReturnValue()
	if out[0] != 0xaa || out[1] != 0xbb {
		t.Fatalf("first bytes = %x, want aabb...", out[:2])
	}
	for _, b := range out[2:] {
		if b != 0 {
			t.Fatalf("expected zero padding, got %x", out)
		}
	}
}
