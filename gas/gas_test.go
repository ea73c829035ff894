package gas

import (
	"testing"

	"github.com/forkvm/evmcore/config"
)

func TestUsedGasCapsRefundAtHalf(t *testing.T) {
	g := New(100000)
	if err := g.RecordCost(10000); err != nil {
		t.Fatal(err)
	}
	g.RecordRefund(20000) // far more than totalUsed/2
	if got, want := g.UsedGas(), uint64(5000); got != want {
		t.Fatalf("UsedGas() = %d, want %d (10000 - 10000/2)", got, want)
	}
}

func TestRecordCostFailsWhenAlreadyExhausted(t *testing.T) {
	g := New(100)
	if err := g.RecordCost(100); err != nil {
		t.Fatal(err)
	}
	// Any further nonzero charge against an exhausted gasometer must fail; a
	// zero-cost charge (STOP, RETURN) would not drive the remaining gas
	// negative and is allowed.
	if err := g.RecordCost(1); err == nil {
		t.Fatal("expected OutOfGas on an exhausted gasometer")
	}
}

func TestCreditReturnsStipend(t *testing.T) {
	g := New(1000)
	if err := g.RecordCost(1000); err != nil {
		t.Fatal(err)
	}
	g.Credit(400)
	if got, want := g.Gas(), uint64(400); got != want {
		t.Fatalf("Gas() = %d, want %d", got, want)
	}
}

func TestSstoreCostNetMetering(t *testing.T) {
	cfg := config.Istanbul()
	var zero, one, two [32]byte
	one[31] = 1
	two[31] = 2

	// original == current == 0, new != 0: "set" cost.
	if got, want := SstoreCost(cfg, zero, zero, one), cfg.GasSStoreSet; got != want {
		t.Fatalf("set cost = %d, want %d", got, want)
	}
	// current == new: a no-op write, only GasSLoad charged.
	if got, want := SstoreCost(cfg, zero, one, one), cfg.GasSLoad; got != want {
		t.Fatalf("no-op cost = %d, want %d", got, want)
	}
	// original == current, original nonzero, new different: first write
	// this transaction against a nonzero slot, "reset" cost.
	if got, want := SstoreCost(cfg, one, one, two), cfg.GasSStoreReset; got != want {
		t.Fatalf("first-write cost = %d, want %d", got, want)
	}
	// original != current (dirty slot): always GasSLoad regardless of new.
	if got, want := SstoreCost(cfg, zero, one, two), cfg.GasSLoad; got != want {
		t.Fatalf("dirty-slot cost = %d, want %d", got, want)
	}
}

func TestSstoreRefundFirstWriteClearingNonzeroToZero(t *testing.T) {
	cfg := config.Istanbul()
	var zero, one [32]byte
	one[31] = 1

	// original == current == one, new == zero: first write this tx clears a
	// previously-set slot, refund granted immediately.
	got := SstoreRefund(cfg, one, one, zero)
	if got != cfg.RefundSStoreClears {
		t.Fatalf("refund = %d, want %d", got, cfg.RefundSStoreClears)
	}
}

func TestSstoreRefundDirtySlotResetToOriginal(t *testing.T) {
	cfg := config.Istanbul()
	var zero, one [32]byte
	one[31] = 1

	// original == zero, current == one (dirty), new == zero (reset to
	// original): refund (SET - SLOAD) for undoing a set.
	got := SstoreRefund(cfg, zero, one, zero)
	want := int64(cfg.GasSStoreSet - cfg.GasSLoad)
	if got != want {
		t.Fatalf("refund = %d, want %d", got, want)
	}
}

func TestMemoryGasCostQuadratic(t *testing.T) {
	// 1 word costs 3 (linear only); larger sizes add the quadratic term
	// words*words/512, e.g. 1024 words cost 3*1024 + 1024*1024/512 = 5120.
	if got := MemoryGasCost(32); got != 3 {
		t.Fatalf("MemoryGasCost(32) = %d, want 3", got)
	}
	if got := MemoryGasCost(0); got != 0 {
		t.Fatalf("MemoryGasCost(0) = %d, want 0", got)
	}
	if got := MemoryGasCost(1024 * 32); got != 5120 {
		t.Fatalf("MemoryGasCost(32768) = %d, want 5120", got)
	}
}

func TestCallGasAppliesL64Cap(t *testing.T) {
	cfg := config.Istanbul()
	got, err := CallGas(cfg, 6400, 6400)
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(6400 - 6400/64); got != want {
		t.Fatalf("CallGas = %d, want %d", got, want)
	}
}
