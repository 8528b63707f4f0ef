// Package mmu implements the Sv32 virtual-to-physical address translator:
// translation-mode selection from mstatus/satp, the two-level page-table
// walk, permission and A/D enforcement, and superpage address assembly.
// The walk's general shape — TLB-miss fallthrough into a segment-then-page
// table lookup with an address-range check at each level — follows the
// teacher's transAddr in emu/cpu/cpu.go, generalized from S/370 segment
// tables to Sv32's two-level scheme; the field layout and fault ordering
// come from the RISC-V privileged specification via spec.md.
package mmu

import (
	"github.com/angry-goose-initiative/irve-sub000/emu/csr"
	"github.com/angry-goose-initiative/irve-sub000/emu/trap"
	w "github.com/angry-goose-initiative/irve-sub000/emu/word"
)

// AccessType distinguishes why a translation was requested; it both
// selects the effective-privilege rule and labels any resulting fault.
type AccessType uint8

const (
	Fetch AccessType = iota
	Load
	Store
)

// PhysReader reads a single physical word for a page-table walk. Any
// memmap implementation used with the MMU must report ok=false for
// addresses with no backing memory so the walk can raise an access fault
// rather than silently reading garbage.
type PhysReader interface {
	ReadPhysWord(pa uint64) (w.Word, bool)
}

const (
	satpModeBit    = 31
	pageOffsetBits = 12
)

// Translate converts a virtual address to a 34-bit physical address
// (returned as uint64) for the given access, consulting regs for the
// current privilege and mstatus/satp fields.
func Translate(va w.Word, access AccessType, regs *csr.File, mem PhysReader) (uint64, error) {
	current := regs.GetPrivilege()

	effective := current
	if access != Fetch && regs.MPRV() {
		effective = regs.MPP()
	}

	satp := regs.Satp()
	mode := satp.Bit(satpModeBit)

	if effective == csr.Machine || !mode {
		return uint64(va.Uint32()), nil
	}

	ppn := uint64(satp.Bits(21, 0).Uint32())
	a := ppn * 4096

	vpn := [2]uint32{
		va.Bits(21, 12).Uint32(),
		va.Bits(31, 22).Uint32(),
	}

	var pte w.Word
	i := 1
	for {
		pteAddr := a + uint64(vpn[i])*4
		v, ok := mem.ReadPhysWord(pteAddr)
		if !ok {
			return 0, accessFault(access, va)
		}
		pte = v

		valid := pte.Bit(0)
		r := pte.Bit(1)
		wr := pte.Bit(2)
		x := pte.Bit(3)

		if !valid || (!r && wr) {
			return 0, pageFault(access, va)
		}
		if r || x {
			break
		}
		a = uint64(pte.Bits(31, 10).Uint32()) * 4096
		i--
		if i < 0 {
			return 0, pageFault(access, va)
		}
	}

	r := pte.Bit(1)
	wr := pte.Bit(2)
	x := pte.Bit(3)
	u := pte.Bit(4)
	accessed := pte.Bit(6)
	d := pte.Bit(7)

	switch {
	case access == Fetch && !x:
		return 0, pageFault(access, va)
	case access == Store && !wr:
		return 0, pageFault(access, va)
	case access == Load && !r && !(regs.MXR() && x):
		return 0, pageFault(access, va)
	}

	supervisorAccessingUser := current == csr.Supervisor || (access != Fetch && regs.MPP() == csr.Supervisor && regs.MPRV())
	if supervisorAccessingUser && !regs.SUM() && u {
		return 0, pageFault(access, va)
	}
	if current == csr.User && !u {
		return 0, pageFault(access, va)
	}

	ppn0 := pte.Bits(19, 10)
	if i == 1 && ppn0 != 0 {
		return 0, pageFault(access, va)
	}

	if !accessed || (access == Store && !d) {
		return 0, pageFault(access, va)
	}

	ppn1 := pte.Bits(31, 20).Uint32()
	offset := uint64(va.Bits(11, 0).Uint32())

	if i == 1 {
		pa := (uint64(ppn1) << 22) | (uint64(vpn[0]) << pageOffsetBits) | offset
		return pa, nil
	}
	pa := (uint64(pte.Bits(31, 10).Uint32()) << pageOffsetBits) | offset
	return pa, nil
}

func accessFault(access AccessType, va w.Word) error {
	switch access {
	case Fetch:
		return trap.New(trap.InstrAccessFault, va)
	case Store:
		return trap.New(trap.StoreAccessFault, va)
	default:
		return trap.New(trap.LoadAccessFault, va)
	}
}

func pageFault(access AccessType, va w.Word) error {
	switch access {
	case Fetch:
		return trap.New(trap.InstrPageFault, va)
	case Store:
		return trap.New(trap.StorePageFault, va)
	default:
		return trap.New(trap.LoadPageFault, va)
	}
}
