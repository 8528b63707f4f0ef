package regfile

import (
	"math/rand"
	"testing"

	w "github.com/angry-goose-initiative/irve-sub000/emu/word"
)

func TestX0AlwaysZero(t *testing.T) {
	rf := New()
	rf.Set(0, w.Word(0xDEADBEEF))
	if got := rf.Get(0); got != 0 {
		t.Errorf("x0 = %#x after write, want 0", got.Uint32())
	}
}

func TestGetSet(t *testing.T) {
	rf := New()
	rf.Set(5, w.Word(42))
	if got := rf.Get(5); got != 42 {
		t.Errorf("x5 = %d, want 42", got.Uint32())
	}
}

func TestAdvancePC(t *testing.T) {
	rf := New()
	rf.SetPC(w.Word(0x1000))
	rf.AdvancePC()
	if got := rf.PC(); got != 0x1004 {
		t.Errorf("PC = %#x, want 0x1004", got.Uint32())
	}
}

func TestReservation(t *testing.T) {
	rf := New()
	if rf.ReservationHolds(w.Word(0x100)) {
		t.Fatal("fresh register file should hold no reservation")
	}
	rf.Reserve(w.Word(0x100))
	if !rf.ReservationHolds(w.Word(0x100)) {
		t.Error("expected reservation to hold for 0x100")
	}
	if rf.ReservationHolds(w.Word(0x104)) {
		t.Error("reservation should not hold for a different address")
	}
	rf.ClearReservation()
	if rf.ReservationHolds(w.Word(0x100)) {
		t.Error("reservation should be cleared")
	}
}

func TestResetZeroesAndFuzzesExceptX0(t *testing.T) {
	rf := New()
	rf.Set(1, w.Word(1))
	rf.SetPC(w.Word(0x2000))
	rf.Reserve(w.Word(0x10))

	Reset(rf, true, rand.New(rand.NewSource(1)))

	if rf.PC() != 0 {
		t.Errorf("PC after reset = %#x, want 0", rf.PC().Uint32())
	}
	if rf.ReservationHolds(w.Word(0x10)) {
		t.Error("reservation should be cleared by reset")
	}
	if rf.Get(0) != 0 {
		t.Error("x0 must remain zero even with fuzzing enabled")
	}

	anyNonZero := false
	for i := uint8(1); i < NumRegisters; i++ {
		if rf.Get(i) != 0 {
			anyNonZero = true
			break
		}
	}
	if !anyNonZero {
		t.Error("expected at least one fuzzed register to be non-zero")
	}
}

func TestResetWithoutFuzzZeroesEverything(t *testing.T) {
	rf := New()
	rf.Set(3, w.Word(99))
	Reset(rf, false, nil)
	for i := uint8(1); i < NumRegisters; i++ {
		if rf.Get(i) != 0 {
			t.Errorf("x%d = %#x after non-fuzzed reset, want 0", i, rf.Get(i).Uint32())
		}
	}
}
