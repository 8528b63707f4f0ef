// Package csr implements the RISC-V control and status register file: the
// privilege-checked and implicit read/write paths, WARL masking per
// register, the mstatus/sstatus split view, and the machine timer. The
// struct-of-named-fields shape and the "ignore writes to read-only aliases,
// trap on unknown addresses" policy follow the teacher's cpuState in
// emu/cpu/cpudefs.go, generalized from IBM 370 control registers to RISC-V
// CSRs; the register address table is grounded on the original C++
// implementation's lib/csr.h.
package csr

import (
	"time"

	"github.com/angry-goose-initiative/irve-sub000/emu/trap"
	w "github.com/angry-goose-initiative/irve-sub000/emu/word"
)

// Privilege is one of {User, Supervisor, Machine}.
type Privilege uint8

const (
	User       Privilege = 0b00
	Supervisor Privilege = 0b01
	Machine    Privilege = 0b11
)

// CSR addresses this core implements, grounded on lib/csr.h.
const (
	AddrSstatus  = 0x100
	AddrSie      = 0x104
	AddrStvec    = 0x105
	AddrSscratch = 0x140
	AddrSepc     = 0x141
	AddrScause   = 0x142
	AddrStval    = 0x143
	AddrSip      = 0x144
	AddrSatp     = 0x180

	AddrMstatus  = 0x300
	AddrMisa     = 0x301
	AddrMedeleg  = 0x302
	AddrMideleg  = 0x303
	AddrMie      = 0x304
	AddrMtvec    = 0x305
	AddrMscratch = 0x340
	AddrMepc     = 0x341
	AddrMcause   = 0x342
	AddrMtval    = 0x343
	AddrMip      = 0x344

	AddrPMPCfgStart  = 0x3A0
	AddrPMPCfgEnd    = 0x3AF
	AddrPMPAddrStart = 0x3B0
	AddrPMPAddrEnd   = 0x3EF

	AddrMcycle    = 0xB00
	AddrMinstret  = 0xB02
	AddrMcycleh   = 0xB80
	AddrMinstreth = 0xB82

	AddrMtime      = 0xBC0
	AddrMtimeh     = 0xBC4
	AddrMtimecmp   = 0xBD0
	AddrMtimecmph  = 0xBD4

	AddrMvendorid = 0xF11
	AddrMarchid   = 0xF12
	AddrMimpid    = 0xF13
	AddrMhartid   = 0xF14
)

// mstatus/sstatus bit positions.
const (
	bitSIE  = 1
	bitMIE  = 3
	bitSPIE = 5
	bitMPIE = 7
	bitSPP  = 8
	bitMPRV = 17
	bitSUM  = 18
	bitMXR  = 19
)

const mppLow = 11

// Interrupt bit positions shared by mie/mip/sie/sip, per spec.md.
const (
	bitSSI = uint(trap.SSI)
	bitMSI = uint(trap.MSI)
	bitSTI = uint(trap.STI)
	bitMTI = uint(trap.MTI)
	bitSEI = uint(trap.SEI)
	bitMEI = uint(trap.MEI)
)

const sMask = (1 << bitSSI) | (1 << bitSTI) | (1 << bitSEI)

// File is the CSR register file for a single hart.
type File struct {
	mstatus w.Word
	mtvec   w.Word
	stvec   w.Word
	medeleg w.Word
	mideleg w.Word
	mie     w.Word
	mip     w.Word
	mepc    w.Word
	sepc    w.Word
	mcause  w.Word
	scause  w.Word
	mtval   w.Word
	stval   w.Word
	mscratch w.Word
	sscratch w.Word
	satp    w.Word

	pmpcfg  [16]w.Word
	pmpaddr [64]w.Word

	mcycle   uint64
	minstret uint64

	mtime      uint64
	mtimecmp   uint64
	lastSample time.Time
	haveSample bool
	tick       uint32

	privilege Privilege

	// Clock is consulted on each sample; overridable for tests.
	Clock func() time.Time
}

// New returns a CSR file reset to the architectural defaults: Machine
// privilege, Bare satp, all counters zero.
func New() *File {
	f := &File{privilege: Machine, Clock: time.Now}
	return f
}

// SetPrivilege and GetPrivilege mirror the CSR file's own idea of the
// current privilege mode, which the hart consults on every memory access
// and CSR operation.
func (f *File) SetPrivilege(p Privilege) { f.privilege = p }
func (f *File) GetPrivilege() Privilege  { return f.privilege }

func privOf(addr uint16) Privilege {
	return Privilege((addr >> 8) & 0b11)
}

func isReadOnly(addr uint16) bool {
	return (addr>>10)&0b11 == 0b11
}

// ExplicitRead performs a privilege-checked CSR read. Reads of mcycle/
// minstret have no side effects; reads of mtime/mtimeh force a timer
// sample first, so a guest polling mtime sees it advance.
func (f *File) ExplicitRead(addr uint16, raw w.Word) (w.Word, error) {
	if privOf(addr) > f.privilege {
		return 0, trap.New(trap.IllegalInstruction, raw)
	}
	v, ok := f.rawRead(addr)
	if !ok {
		return 0, trap.New(trap.IllegalInstruction, raw)
	}
	return v, nil
}

// ExplicitWrite performs a privilege-checked CSR write. Writes to read-only
// aliases are silently discarded rather than trapping; writes to unknown
// addresses trap.
func (f *File) ExplicitWrite(addr uint16, value w.Word, raw w.Word) error {
	if privOf(addr) > f.privilege {
		return trap.New(trap.IllegalInstruction, raw)
	}
	if isReadOnly(addr) {
		return nil
	}
	if !f.rawWrite(addr, value) {
		return trap.New(trap.IllegalInstruction, raw)
	}
	return nil
}

// ImplicitRead/ImplicitWrite bypass the privilege check (used by trap
// delivery and MRET/SRET to touch mepc/mstatus/etc regardless of the
// current privilege) but still enforce WARL masking and unknown-address
// rejection.
func (f *File) ImplicitRead(addr uint16) (w.Word, bool) {
	return f.rawRead(addr)
}

func (f *File) ImplicitWrite(addr uint16, value w.Word) bool {
	return f.rawWrite(addr, value)
}

func (f *File) rawRead(addr uint16) (w.Word, bool) {
	switch addr {
	case AddrSstatus:
		return f.sstatusView(), true
	case AddrSie:
		return f.mie & sMask, true
	case AddrStvec:
		return f.stvec, true
	case AddrSscratch:
		return f.sscratch, true
	case AddrSepc:
		return f.sepc, true
	case AddrScause:
		return f.scause, true
	case AddrStval:
		return f.stval, true
	case AddrSip:
		return f.mip & sMask, true
	case AddrSatp:
		return f.satp, true
	case AddrMstatus:
		return f.mstatus, true
	case AddrMisa:
		return 0x40001100, true // RV32IMA
	case AddrMedeleg:
		return f.medeleg, true
	case AddrMideleg:
		return f.mideleg, true
	case AddrMie:
		return f.mie, true
	case AddrMtvec:
		return f.mtvec, true
	case AddrMscratch:
		return f.mscratch, true
	case AddrMepc:
		return f.mepc, true
	case AddrMcause:
		return f.mcause, true
	case AddrMtval:
		return f.mtval, true
	case AddrMip:
		return f.mip, true
	case AddrMcycle:
		return w.Word(f.mcycle), true
	case AddrMcycleh:
		return w.Word(f.mcycle >> 32), true
	case AddrMinstret:
		return w.Word(f.minstret), true
	case AddrMinstreth:
		return w.Word(f.minstret >> 32), true
	case AddrMtime:
		f.sampleTimer()
		return w.Word(f.mtime), true
	case AddrMtimeh:
		f.sampleTimer()
		return w.Word(f.mtime >> 32), true
	case AddrMtimecmp:
		return w.Word(f.mtimecmp), true
	case AddrMtimecmph:
		return w.Word(f.mtimecmp >> 32), true
	case AddrMvendorid, AddrMarchid, AddrMimpid, AddrMhartid:
		return 0, true
	}
	if addr >= AddrPMPCfgStart && addr <= AddrPMPCfgEnd {
		return f.pmpcfg[addr-AddrPMPCfgStart], true
	}
	if addr >= AddrPMPAddrStart && addr <= AddrPMPAddrEnd {
		return f.pmpaddr[addr-AddrPMPAddrStart], true
	}
	return 0, false
}

func (f *File) rawWrite(addr uint16, v w.Word) bool {
	switch addr {
	case AddrSstatus:
		f.writeSstatusView(v)
	case AddrSie:
		f.mie = (f.mie &^ sMask) | (v & sMask)
	case AddrStvec:
		f.stvec = maskTvec(v)
	case AddrSscratch:
		f.sscratch = v
	case AddrSepc:
		f.sepc = v &^ 0x3
	case AddrScause:
		f.scause = v
	case AddrStval:
		f.stval = v
	case AddrSip:
		f.mip = (f.mip &^ (1 << bitSSI)) | (v & (1 << bitSSI))
	case AddrSatp:
		f.satp = v
	case AddrMstatus:
		f.mstatus = maskMstatus(v)
	case AddrMisa:
		// WARL: silently ignore, MISA is fixed in this core.
	case AddrMedeleg:
		f.medeleg = v & 0xFFFF &^ (1 << trap.ECallFromM)
	case AddrMideleg:
		f.mideleg = v & ((1 << bitSSI) | (1 << bitSTI) | (1 << bitSEI))
	case AddrMie:
		f.mie = v & mieMask
	case AddrMtvec:
		f.mtvec = maskTvec(v)
	case AddrMscratch:
		f.mscratch = v
	case AddrMepc:
		f.mepc = v &^ 0x3
	case AddrMcause:
		f.mcause = v
	case AddrMtval:
		f.mtval = v
	case AddrMip:
		// Only the software-settable bits (SSI) are writable by software;
		// timer/external bits are driven by the platform.
		f.mip = (f.mip &^ (1 << bitSSI)) | (v & (1 << bitSSI))
	case AddrMcycle:
		f.mcycle = (f.mcycle &^ 0xFFFFFFFF) | uint64(v)
	case AddrMcycleh:
		f.mcycle = (f.mcycle & 0xFFFFFFFF) | (uint64(v) << 32)
	case AddrMinstret:
		f.minstret = (f.minstret &^ 0xFFFFFFFF) | uint64(v)
	case AddrMinstreth:
		f.minstret = (f.minstret & 0xFFFFFFFF) | (uint64(v) << 32)
	case AddrMtime:
		f.mtime = (f.mtime &^ 0xFFFFFFFF) | uint64(v)
		f.resetAnchor()
	case AddrMtimeh:
		f.mtime = (f.mtime & 0xFFFFFFFF) | (uint64(v) << 32)
		f.resetAnchor()
	case AddrMtimecmp:
		f.mtimecmp = (f.mtimecmp &^ 0xFFFFFFFF) | uint64(v)
		f.clearMTIP()
	case AddrMtimecmph:
		f.mtimecmp = (f.mtimecmp & 0xFFFFFFFF) | (uint64(v) << 32)
		f.clearMTIP()
	case AddrMvendorid, AddrMarchid, AddrMimpid, AddrMhartid:
		// read-only, ignore
	default:
		if addr >= AddrPMPCfgStart && addr <= AddrPMPCfgEnd {
			f.pmpcfg[addr-AddrPMPCfgStart] = v
			return true
		}
		if addr >= AddrPMPAddrStart && addr <= AddrPMPAddrEnd {
			f.pmpaddr[addr-AddrPMPAddrStart] = v
			return true
		}
		return false
	}
	return true
}

const mieMask = (1 << bitSSI) | (1 << bitMSI) | (1 << bitSTI) | (1 << bitMTI) | (1 << bitSEI) | (1 << bitMEI)

func maskTvec(v w.Word) w.Word {
	mode := v.Bits(1, 0)
	if mode > 1 {
		mode = 0
	}
	return (v &^ 0x3) | mode
}

func maskMstatus(v w.Word) w.Word {
	const keep = (1 << bitSIE) | (1 << bitMIE) | (1 << bitSPIE) | (1 << bitMPIE) |
		(1 << bitSPP) | (0b11 << mppLow) | (1 << bitMPRV) | (1 << bitSUM) | (1 << bitMXR)
	masked := v & keep
	mpp := masked.Bits(mppLow+1, mppLow)
	if mpp == 0b10 { // reserved, WARL to the previous mode is overkill here; clamp to User.
		masked = (masked &^ (0b11 << mppLow)) | (w.Word(User) << mppLow)
	}
	return masked
}

func (f *File) sstatusView() w.Word {
	const sVisible = (1 << bitSIE) | (1 << bitSPIE) | (1 << bitSPP) | (1 << bitSUM) | (1 << bitMXR)
	return f.mstatus & sVisible
}

func (f *File) writeSstatusView(v w.Word) {
	const sVisible = (1 << bitSIE) | (1 << bitSPIE) | (1 << bitSPP) | (1 << bitSUM) | (1 << bitMXR)
	f.mstatus = (f.mstatus &^ sVisible) | (v & sVisible)
}

// --- mstatus field accessors used by the MMU, trap delivery, and exec ---

func (f *File) MIE() bool  { return f.mstatus.Bit(bitMIE) }
func (f *File) SIE() bool  { return f.mstatus.Bit(bitSIE) }
func (f *File) MPIE() bool { return f.mstatus.Bit(bitMPIE) }
func (f *File) SPIE() bool { return f.mstatus.Bit(bitSPIE) }
func (f *File) MPRV() bool { return f.mstatus.Bit(bitMPRV) }
func (f *File) SUM() bool  { return f.mstatus.Bit(bitSUM) }
func (f *File) MXR() bool  { return f.mstatus.Bit(bitMXR) }
func (f *File) SPP() Privilege {
	if f.mstatus.Bit(bitSPP) {
		return Supervisor
	}
	return User
}
func (f *File) MPP() Privilege {
	return Privilege(f.mstatus.Bits(mppLow+1, mppLow))
}

func (f *File) SetMIE(v bool)  { f.setBit(bitMIE, v) }
func (f *File) SetSIE(v bool)  { f.setBit(bitSIE, v) }
func (f *File) SetMPIE(v bool) { f.setBit(bitMPIE, v) }
func (f *File) SetSPIE(v bool) { f.setBit(bitSPIE, v) }

func (f *File) SetSPP(p Privilege) {
	f.setBit(bitSPP, p == Supervisor)
}

func (f *File) SetMPP(p Privilege) {
	f.mstatus = (f.mstatus &^ (0b11 << mppLow)) | (w.Word(p) << mppLow)
}

func (f *File) setBit(bit uint, v bool) {
	if v {
		f.mstatus |= 1 << bit
	} else {
		f.mstatus &^= 1 << bit
	}
}

// Mtvec/Stvec/Medeleg/Mideleg/Mepc/Sepc/Mcause/Scause/Mtval/Stval/Satp are
// plain accessors used by trap delivery and the MMU.
func (f *File) Mtvec() w.Word   { return f.mtvec }
func (f *File) Stvec() w.Word   { return f.stvec }
func (f *File) Medeleg() w.Word { return f.medeleg }
func (f *File) Mideleg() w.Word { return f.mideleg }
func (f *File) Satp() w.Word    { return f.satp }

func (f *File) SetMepc(v w.Word) { f.mepc = v &^ 0x3 }
func (f *File) SetSepc(v w.Word) { f.sepc = v &^ 0x3 }
func (f *File) Mepc() w.Word     { return f.mepc }
func (f *File) Sepc() w.Word     { return f.sepc }

func (f *File) SetMcause(c w.Word) { f.mcause = c }
func (f *File) SetScause(c w.Word) { f.scause = c }
func (f *File) SetMtval(v w.Word)  { f.mtval = v }
func (f *File) SetStval(v w.Word)  { f.stval = v }

// Mip/Mie expose the raw interrupt pending/enable words for the hart's
// eligibility scan.
func (f *File) Mip() w.Word { return f.mip }
func (f *File) Mie() w.Word { return f.mie }

func (f *File) setMip(bit uint, v bool) {
	if v {
		f.mip |= 1 << bit
	} else {
		f.mip &^= 1 << bit
	}
}

// IncrementCounters bumps mcycle and minstret by one each, speculatively,
// per retirement tick. The hart rolls minstret back for ECALL/EBREAK.
func (f *File) IncrementCounters() {
	f.mcycle++
	f.minstret++
}

// DecrementInstret undoes the speculative minstret bump for a
// non-retiring instruction (ECALL, EBREAK).
func (f *File) DecrementInstret() {
	f.minstret--
}

// Minstret returns the retired instruction count.
func (f *File) Minstret() uint64 { return f.minstret }

// --- Timer ---

// tickWrapBits is the width of the amortized sampling counter: the host
// clock is read only once every 65,536 executed instructions (§5).
const tickWrapBits = 16

// OccasionalUpdateTimer is invoked once per executed instruction; it
// increments an internal tick counter and only samples the host clock on
// wrap, per the amortization scheme in spec.md §4.2/§5.
func (f *File) OccasionalUpdateTimer() {
	f.tick++
	if f.tick&((1<<tickWrapBits)-1) == 0 {
		f.sampleTimer()
	}
}

func (f *File) resetAnchor() {
	f.lastSample = f.Clock()
	f.haveSample = true
}

func (f *File) sampleTimer() {
	now := f.Clock()
	if !f.haveSample {
		f.lastSample = now
		f.haveSample = true
		return
	}
	elapsed := now.Sub(f.lastSample)
	if elapsed < 0 {
		// Non-monotonic reading: discard rather than going backwards.
		return
	}
	f.lastSample = now
	f.mtime += uint64(elapsed.Microseconds() / 1000)
	if f.mtime >= f.mtimecmp {
		f.setMip(uint(trap.MTI), true)
	}
}

func (f *File) clearMTIP() {
	f.setMip(uint(trap.MTI), false)
}

// Timer register offsets within the machine-timer CSR alias window
// (physical addresses 0xFFFFFFE0-0xFFFFFFEF), used by the physical memory
// dispatcher to forward word-aligned accesses to the timer state.
const (
	TimerRegMtime     = 0x0
	TimerRegMtimeh    = 0x4
	TimerRegMtimecmp  = 0x8
	TimerRegMtimecmph = 0xC
)

// ReadTimerWord and WriteTimerWord let the physical memory dispatcher treat
// the machine-timer CSR aliases as plain memory-mapped registers without
// reaching into CSR address encoding.
func (f *File) ReadTimerWord(offset uint32) (w.Word, bool) {
	switch offset {
	case TimerRegMtime:
		f.sampleTimer()
		return w.Word(f.mtime), true
	case TimerRegMtimeh:
		f.sampleTimer()
		return w.Word(f.mtime >> 32), true
	case TimerRegMtimecmp:
		return w.Word(f.mtimecmp), true
	case TimerRegMtimecmph:
		return w.Word(f.mtimecmp >> 32), true
	}
	return 0, false
}

func (f *File) WriteTimerWord(offset uint32, v w.Word) bool {
	switch offset {
	case TimerRegMtime:
		f.mtime = (f.mtime &^ 0xFFFFFFFF) | uint64(v)
		f.resetAnchor()
	case TimerRegMtimeh:
		f.mtime = (f.mtime & 0xFFFFFFFF) | (uint64(v) << 32)
		f.resetAnchor()
	case TimerRegMtimecmp:
		f.mtimecmp = (f.mtimecmp &^ 0xFFFFFFFF) | uint64(v)
		f.clearMTIP()
	case TimerRegMtimecmph:
		f.mtimecmp = (f.mtimecmp & 0xFFFFFFFF) | (uint64(v) << 32)
		f.clearMTIP()
	default:
		return false
	}
	return true
}

// SetExternalPending allows the platform memory map to post MEI/SEI/SSI from
// device-driven interrupt lines (e.g. the UART), without exposing the raw
// mip word to non-CSR code.
func (f *File) SetExternalPending(cause trap.Cause, pending bool) {
	switch cause {
	case trap.MEI:
		f.setMip(uint(trap.MEI), pending)
	case trap.SEI:
		f.setMip(uint(trap.SEI), pending)
	case trap.SSI:
		f.setMip(uint(trap.SSI), pending)
	}
}

