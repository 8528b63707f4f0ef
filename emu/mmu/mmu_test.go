package mmu

import (
	"testing"

	"github.com/angry-goose-initiative/irve-sub000/emu/csr"
	"github.com/angry-goose-initiative/irve-sub000/emu/trap"
	w "github.com/angry-goose-initiative/irve-sub000/emu/word"
)

type fakeMem map[uint64]w.Word

func (m fakeMem) ReadPhysWord(pa uint64) (w.Word, bool) {
	v, ok := m[pa]
	return v, ok
}

func TestBareModeIsIdentity(t *testing.T) {
	regs := csr.New()
	regs.SetPrivilege(csr.Supervisor)
	// satp.MODE bit clear => Bare, regardless of PPN field.
	regs.ImplicitWrite(csr.AddrSatp, w.Word(0))

	pa, err := Translate(w.Word(0x1234), Load, regs, fakeMem{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pa != 0x1234 {
		t.Errorf("pa = %#x, want identity 0x1234", pa)
	}
}

func TestMachineModeIsIdentityEvenWithSv32Enabled(t *testing.T) {
	regs := csr.New() // privilege defaults to Machine
	regs.ImplicitWrite(csr.AddrSatp, w.Word(0x80000002))

	pa, err := Translate(w.Word(0xABCD), Fetch, regs, fakeMem{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pa != 0xABCD {
		t.Errorf("pa = %#x, want identity 0xABCD", pa)
	}
}

func TestSv32SuperpageTranslation(t *testing.T) {
	regs := csr.New()
	regs.SetPrivilege(csr.Supervisor)
	regs.ImplicitWrite(csr.AddrSatp, w.Word(0x80000002))

	mem := fakeMem{0x2004: w.Word(0x5000cf)} // V R W X A D set, U clear

	pa, err := Translate(w.Word(0x00401000), Load, regs, mem)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pa != 0x1401000 {
		t.Errorf("pa = %#x, want 0x1401000", pa)
	}
}

func TestSv32InvalidPTEFaults(t *testing.T) {
	regs := csr.New()
	regs.SetPrivilege(csr.Supervisor)
	regs.ImplicitWrite(csr.AddrSatp, w.Word(0x80000002))

	mem := fakeMem{0x2004: w.Word(0)} // V=0

	_, err := Translate(w.Word(0x00401000), Load, regs, mem)
	tr, ok := err.(*trap.Trap)
	if !ok || tr.Cause != trap.LoadPageFault {
		t.Errorf("expected LoadPageFault, got %v", err)
	}
}

func TestSv32FetchOfNonExecutablePageFaults(t *testing.T) {
	regs := csr.New()
	regs.SetPrivilege(csr.Supervisor)
	regs.ImplicitWrite(csr.AddrSatp, w.Word(0x80000002))

	// V=1 R=1 W=0 X=0 A=1 D=1 U=1, readable-only leaf.
	pte := w.Word((0x005 << 20) | (1 << 7) | (1 << 6) | (1 << 4) | (1 << 1) | 1)
	mem := fakeMem{0x2004: pte}

	_, err := Translate(w.Word(0x00401000), Fetch, regs, mem)
	tr, ok := err.(*trap.Trap)
	if !ok || tr.Cause != trap.InstrPageFault {
		t.Errorf("expected InstrPageFault for fetch from a non-executable page, got %v", err)
	}
}

func TestSv32SupervisorCannotAccessUserPageWithoutSUM(t *testing.T) {
	regs := csr.New()
	regs.SetPrivilege(csr.Supervisor)
	regs.ImplicitWrite(csr.AddrSatp, w.Word(0x80000002))
	// SUM left clear.

	pte := w.Word((0x005 << 20) | (1 << 7) | (1 << 6) | (1 << 4) | (1 << 2) | (1 << 1) | 1) // U=1, R=1, W=1
	mem := fakeMem{0x2004: pte}

	_, err := Translate(w.Word(0x00401000), Load, regs, mem)
	tr, ok := err.(*trap.Trap)
	if !ok || tr.Cause != trap.LoadPageFault {
		t.Errorf("expected LoadPageFault when S-mode accesses a U page without SUM, got %v", err)
	}
}

func TestSv32AccessedBitRequired(t *testing.T) {
	regs := csr.New()
	regs.SetPrivilege(csr.Supervisor)
	regs.ImplicitWrite(csr.AddrSatp, w.Word(0x80000002))

	// V=1 R=1 W=1 X=1 U=0 but A=0.
	pte := w.Word((0x005 << 20) | (1 << 3) | (1 << 2) | (1 << 1) | 1)
	mem := fakeMem{0x2004: pte}

	_, err := Translate(w.Word(0x00401000), Load, regs, mem)
	tr, ok := err.(*trap.Trap)
	if !ok || tr.Cause != trap.LoadPageFault {
		t.Errorf("expected LoadPageFault when Accessed bit is clear, got %v", err)
	}
}
