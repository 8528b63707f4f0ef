package csr

import (
	"testing"
	"time"

	"github.com/angry-goose-initiative/irve-sub000/emu/trap"
	w "github.com/angry-goose-initiative/irve-sub000/emu/word"
)

func TestNewDefaultsToMachine(t *testing.T) {
	f := New()
	if f.GetPrivilege() != Machine {
		t.Errorf("initial privilege = %v, want Machine", f.GetPrivilege())
	}
}

func TestExplicitReadPrivilegeCheck(t *testing.T) {
	f := New()
	f.SetPrivilege(User)
	if _, err := f.ExplicitRead(AddrMstatus, w.Word(0)); err == nil {
		t.Error("User mode reading mstatus (a Machine-only CSR) should trap")
	}
}

func TestExplicitWriteToReadOnlyIsIgnoredNotTrapped(t *testing.T) {
	f := New()
	if err := f.ExplicitWrite(AddrMhartid, w.Word(5), 0); err != nil {
		t.Errorf("writing a read-only CSR should be silently ignored, got %v", err)
	}
	v, _ := f.ImplicitRead(AddrMhartid)
	if v != 0 {
		t.Errorf("mhartid should remain 0 after an ignored write, got %#x", v.Uint32())
	}
}

func TestExplicitAccessUnknownAddrTraps(t *testing.T) {
	f := New()
	_, err := f.ExplicitRead(0x7FF, w.Word(0x1234))
	if err == nil {
		t.Fatal("reading an unimplemented CSR address should trap")
	}
	tr, ok := err.(*trap.Trap)
	if !ok || tr.Cause != trap.IllegalInstruction {
		t.Errorf("expected IllegalInstruction trap, got %v", err)
	}
}

func TestMstatusFieldAccessors(t *testing.T) {
	f := New()
	f.SetMIE(true)
	if !f.MIE() {
		t.Error("MIE should read back true after SetMIE(true)")
	}
	f.SetMPP(Supervisor)
	if f.MPP() != Supervisor {
		t.Errorf("MPP = %v, want Supervisor", f.MPP())
	}
	f.SetSPP(Supervisor)
	if f.SPP() != Supervisor {
		t.Errorf("SPP = %v, want Supervisor", f.SPP())
	}
}

func TestMstatusMPPReservedClampsToUser(t *testing.T) {
	f := New()
	// MPP bits (mppLow=11) set to 0b10 (reserved, Hypervisor not implemented).
	raw := w.Word(0b10 << 11)
	ok := f.ImplicitWrite(AddrMstatus, raw)
	if !ok {
		t.Fatal("mstatus write should be recognized")
	}
	if f.MPP() == 0b10 {
		t.Error("reserved MPP encoding should not be preserved verbatim")
	}
}

func TestSstatusIsRestrictedView(t *testing.T) {
	f := New()
	f.ImplicitWrite(AddrMstatus, w.Word(1<<17)) // MPRV, not S-visible
	sstatus, _ := f.ImplicitRead(AddrSstatus)
	if sstatus.Bit(17) {
		t.Error("sstatus should not expose MPRV")
	}
}

func TestMtvecModeMasking(t *testing.T) {
	f := New()
	f.ImplicitWrite(AddrMtvec, w.Word(0x1000|0b11)) // mode 0b11 is reserved
	v, _ := f.ImplicitRead(AddrMtvec)
	if v.Bits(1, 0) == 0b11 {
		t.Error("reserved mtvec mode should not be preserved")
	}
}

func TestCounters(t *testing.T) {
	f := New()
	f.IncrementCounters()
	f.IncrementCounters()
	if f.Minstret() != 2 {
		t.Errorf("minstret = %d, want 2", f.Minstret())
	}
	f.DecrementInstret()
	if f.Minstret() != 1 {
		t.Errorf("minstret = %d after decrement, want 1", f.Minstret())
	}
}

func TestTimerWordForwarding(t *testing.T) {
	f := New()
	base := time.Unix(1000, 0)
	now := base
	f.Clock = func() time.Time { return now }

	if ok := f.WriteTimerWord(TimerRegMtimecmp, w.Word(5)); !ok {
		t.Fatal("WriteTimerWord(mtimecmp) should succeed")
	}
	v, ok := f.ReadTimerWord(TimerRegMtimecmp)
	if !ok || v != 5 {
		t.Errorf("mtimecmp readback = %v/%v, want 5/true", v.Uint32(), ok)
	}

	if _, ok := f.ReadTimerWord(0xFF); ok {
		t.Error("unknown timer offset should report false")
	}
}

func TestOccasionalUpdateTimerSamplesOnWrap(t *testing.T) {
	f := New()
	base := time.Unix(2000, 0)
	f.Clock = func() time.Time { return base }
	f.WriteTimerWord(TimerRegMtimecmp, w.Word(1)) // arm comparator just above 0
	f.WriteTimerWord(TimerRegMtime, w.Word(0))    // anchor the host-clock sample at base

	later := base.Add(5 * time.Millisecond)
	f.Clock = func() time.Time { return later }

	for i := 0; i < (1 << tickWrapBits); i++ {
		f.OccasionalUpdateTimer()
	}
	mtime, _ := f.ReadTimerWord(TimerRegMtime)
	if mtime == 0 {
		t.Error("expected mtime to advance after a full wrap of OccasionalUpdateTimer")
	}
}

func TestSetExternalPendingMEI(t *testing.T) {
	f := New()
	f.SetExternalPending(trap.MEI, true)
	if !f.Mip().Bit(uint(trap.MEI)) {
		t.Error("expected MEI pending bit to be set")
	}
	f.SetExternalPending(trap.MEI, false)
	if f.Mip().Bit(uint(trap.MEI)) {
		t.Error("expected MEI pending bit to be cleared")
	}
}

func TestMedelegIgnoresECallFromMBit(t *testing.T) {
	f := New()
	f.ImplicitWrite(AddrMedeleg, ^w.Word(0))
	v, _ := f.ImplicitRead(AddrMedeleg)
	if v.Bit(uint(trap.ECallFromM)) {
		t.Error("medeleg must never delegate ECALL from M-mode")
	}
}
