// Package memmap is the physical memory dispatcher: it routes a 34-bit
// physical address to User RAM, Kernel RAM, the machine-timer CSR aliases,
// the UART, or the debug sink, enforcing per-region width and alignment
// rules. The region table and bounds-checked access pattern follow the
// teacher's emu/memory/memory.go (GetWord/PutWord returning a bool error on
// out-of-range access), generalized from a single flat RAM to the spec's
// multi-region layout; region boundaries and per-region rules come from
// spec.md §3/§4.4.
package memmap

import (
	"fmt"

	"github.com/angry-goose-initiative/irve-sub000/emu/mmu"
	"github.com/angry-goose-initiative/irve-sub000/emu/trap"
	w "github.com/angry-goose-initiative/irve-sub000/emu/word"
)

// Region bounds, from spec.md's physical address space layout.
const (
	UserRAMBase = 0x00000000
	UserRAMSize = 64 * 1024 * 1024
	UserRAMEnd  = UserRAMBase + UserRAMSize - 1

	KernelRAMBase = 0xC0000000
	KernelRAMSize = 64 * 1024 * 1024
	KernelRAMEnd  = KernelRAMBase + KernelRAMSize - 1

	TimerAliasBase = 0xFFFFFFE0
	TimerAliasEnd  = 0xFFFFFFEF

	UARTBase = 0xFFFFFFF0
	UARTEnd  = 0xFFFFFFF7

	DebugSinkAddr = 0xFFFFFFFF
)

// Timer is the subset of the CSR file the dispatcher forwards the
// machine-timer alias window to.
type Timer interface {
	ReadTimerWord(offset uint32) (w.Word, bool)
	WriteTimerWord(offset uint32, v w.Word) bool
}

// UART is the subset of platform/uart the dispatcher forwards the UART
// register window to.
type UART interface {
	ReadReg(offset uint32) (byte, bool)
	WriteReg(offset uint32, v byte) bool
}

// DebugSink is the write-only byte sink at 0xFFFFFFFF.
type DebugSink interface {
	WriteByte(b byte)
}

// Memory is the whole physical address space of one hart.
type Memory struct {
	userRAM   []byte
	kernelRAM []byte
	Timer     Timer
	UART      UART
	Debug     DebugSink
}

// New allocates User and Kernel RAM and returns a Memory with no devices
// attached; callers set Timer/UART/Debug before use.
func New() *Memory {
	return &Memory{
		userRAM:   make([]byte, UserRAMSize),
		kernelRAM: make([]byte, KernelRAMSize),
	}
}

// UserRAM and KernelRAM expose the backing slices directly for the image
// loader, which writes segments without going through the width/alignment
// checks that guest memory accesses are subject to.
func (m *Memory) UserRAM() []byte   { return m.userRAM }
func (m *Memory) KernelRAM() []byte { return m.kernelRAM }

// WriteRawByte writes one byte directly into whichever RAM region pa falls
// in, bypassing the width/alignment/device dispatch that guest accesses go
// through. The image loader uses this: it addresses the whole physical map
// (a kernel image linked at KernelRAMBase must land in Kernel RAM, not be
// forced through a single region's backing slice).
func (m *Memory) WriteRawByte(pa uint64, b byte) error {
	switch {
	case pa >= UserRAMBase && pa <= UserRAMEnd:
		m.userRAM[pa-UserRAMBase] = b
		return nil
	case pa >= KernelRAMBase && pa <= KernelRAMEnd:
		m.kernelRAM[pa-KernelRAMBase] = b
		return nil
	default:
		return fmt.Errorf("memmap: address %#x is not a loadable RAM region", pa)
	}
}

// ReadPhysWord implements mmu.PhysReader for page-table walks: a raw,
// always-aligned word read with no width/region diagnostics beyond ok=false.
func (m *Memory) ReadPhysWord(pa uint64) (w.Word, bool) {
	v, err := m.ReadWord(pa, mmu.Load)
	if err != nil {
		return 0, false
	}
	return v, true
}

func misalignedFault(access mmu.AccessType, pa uint64) error {
	switch access {
	case mmu.Fetch:
		return trap.New(trap.InstrAddrMisaligned, w.Word(pa))
	case mmu.Store:
		return trap.New(trap.StoreAddrMisaligned, w.Word(pa))
	default:
		return trap.New(trap.LoadAddrMisaligned, w.Word(pa))
	}
}

func accessFault(access mmu.AccessType, pa uint64) error {
	switch access {
	case mmu.Fetch:
		return trap.New(trap.InstrAccessFault, w.Word(pa))
	case mmu.Store:
		return trap.New(trap.StoreAccessFault, w.Word(pa))
	default:
		return trap.New(trap.LoadAccessFault, w.Word(pa))
	}
}

// ReadByte reads one byte.
func (m *Memory) ReadByte(pa uint64, access mmu.AccessType) (byte, error) {
	switch {
	case pa >= UserRAMBase && pa <= UserRAMEnd:
		return m.userRAM[pa-UserRAMBase], nil
	case pa >= KernelRAMBase && pa <= KernelRAMEnd:
		return m.kernelRAM[pa-KernelRAMBase], nil
	case pa >= UARTBase && pa <= UARTEnd:
		if m.UART == nil {
			return 0, accessFault(access, pa)
		}
		v, ok := m.UART.ReadReg(uint32(pa - UARTBase))
		if !ok {
			return 0, accessFault(access, pa)
		}
		return v, nil
	default:
		return 0, accessFault(access, pa)
	}
}

// WriteByte writes one byte.
func (m *Memory) WriteByte(pa uint64, v byte, access mmu.AccessType) error {
	switch {
	case pa >= UserRAMBase && pa <= UserRAMEnd:
		m.userRAM[pa-UserRAMBase] = v
		return nil
	case pa >= KernelRAMBase && pa <= KernelRAMEnd:
		m.kernelRAM[pa-KernelRAMBase] = v
		return nil
	case pa >= UARTBase && pa <= UARTEnd:
		if m.UART == nil || !m.UART.WriteReg(uint32(pa-UARTBase), v) {
			return accessFault(access, pa)
		}
		return nil
	case pa == DebugSinkAddr:
		if m.Debug == nil {
			return accessFault(access, pa)
		}
		m.Debug.WriteByte(v)
		return nil
	default:
		return accessFault(access, pa)
	}
}

// ReadHalf reads a little-endian 16-bit value. Only User/Kernel RAM
// support halfword access; misalignment within RAM raises the
// matching misaligned fault, and every other region raises access-fault.
func (m *Memory) ReadHalf(pa uint64, access mmu.AccessType) (w.Word, error) {
	if !m.isRAM(pa) {
		return 0, accessFault(access, pa)
	}
	if pa&1 != 0 {
		return 0, misalignedFault(access, pa)
	}
	lo, err := m.ReadByte(pa, access)
	if err != nil {
		return 0, err
	}
	hi, err := m.ReadByte(pa+1, access)
	if err != nil {
		return 0, err
	}
	return w.Word(uint32(lo) | uint32(hi)<<8), nil
}

// WriteHalf writes a little-endian 16-bit value.
func (m *Memory) WriteHalf(pa uint64, v w.Word, access mmu.AccessType) error {
	if !m.isRAM(pa) {
		return accessFault(access, pa)
	}
	if pa&1 != 0 {
		return misalignedFault(access, pa)
	}
	u := v.Uint32()
	if err := m.WriteByte(pa, byte(u), access); err != nil {
		return err
	}
	return m.WriteByte(pa+1, byte(u>>8), access)
}

// ReadWord reads a little-endian 32-bit value, dispatching to RAM, the
// timer alias window, or raising access-fault elsewhere (UART and the
// debug sink are byte-only).
func (m *Memory) ReadWord(pa uint64, access mmu.AccessType) (w.Word, error) {
	switch {
	case pa >= TimerAliasBase && pa <= TimerAliasEnd:
		if pa&0x3 != 0 {
			return 0, misalignedFault(access, pa)
		}
		if m.Timer == nil {
			return 0, accessFault(access, pa)
		}
		v, ok := m.Timer.ReadTimerWord(uint32(pa - TimerAliasBase))
		if !ok {
			return 0, accessFault(access, pa)
		}
		return v, nil
	case m.isRAM(pa):
		if pa&0x3 != 0 {
			return 0, misalignedFault(access, pa)
		}
		b0, _ := m.ReadByte(pa, access)
		b1, _ := m.ReadByte(pa+1, access)
		b2, _ := m.ReadByte(pa+2, access)
		b3, _ := m.ReadByte(pa+3, access)
		return w.Word(uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16 | uint32(b3)<<24), nil
	default:
		return 0, accessFault(access, pa)
	}
}

// WriteWord writes a little-endian 32-bit value.
func (m *Memory) WriteWord(pa uint64, v w.Word, access mmu.AccessType) error {
	switch {
	case pa >= TimerAliasBase && pa <= TimerAliasEnd:
		if pa&0x3 != 0 {
			return misalignedFault(access, pa)
		}
		if m.Timer == nil || !m.Timer.WriteTimerWord(uint32(pa-TimerAliasBase), v) {
			return accessFault(access, pa)
		}
		return nil
	case m.isRAM(pa):
		if pa&0x3 != 0 {
			return misalignedFault(access, pa)
		}
		u := v.Uint32()
		_ = m.WriteByte(pa, byte(u), access)
		_ = m.WriteByte(pa+1, byte(u>>8), access)
		_ = m.WriteByte(pa+2, byte(u>>16), access)
		_ = m.WriteByte(pa+3, byte(u>>24), access)
		return nil
	default:
		return accessFault(access, pa)
	}
}

func (m *Memory) isRAM(pa uint64) bool {
	return (pa >= UserRAMBase && pa <= UserRAMEnd) || (pa >= KernelRAMBase && pa <= KernelRAMEnd)
}
