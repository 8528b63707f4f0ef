// Package exec implements per-opcode instruction semantics against a
// register file, CSR file, MMU, and physical memory. Execute is
// step-atomic: it either completes and mutates State, or returns a trap
// with State untouched beyond what the instruction's own semantics define
// (every memory helper here returns before mutating register state on
// error, so a faulting memory phase leaves nothing to discard). The
// opcode-class dispatch mirrors the
// shape of the teacher's (*cpuState) execute in emu/cpu/cpu.go — a big
// switch on instruction class computing operand addresses then operand
// values — generalized from S/370's RR/RX/SI formats to RISC-V's
// R/I/S/B/U/J formats.
package exec

import (
	"github.com/angry-goose-initiative/irve-sub000/emu/csr"
	"github.com/angry-goose-initiative/irve-sub000/emu/decode"
	"github.com/angry-goose-initiative/irve-sub000/emu/memmap"
	"github.com/angry-goose-initiative/irve-sub000/emu/mmu"
	"github.com/angry-goose-initiative/irve-sub000/emu/regfile"
	"github.com/angry-goose-initiative/irve-sub000/emu/trap"
	w "github.com/angry-goose-initiative/irve-sub000/emu/word"
)

// funct3 values shared across opcodes.
const (
	f3ADDSUB = 0b000
	f3SLL    = 0b001
	f3SLT    = 0b010
	f3SLTU   = 0b011
	f3XOR    = 0b100
	f3SRLSRA = 0b101
	f3OR     = 0b110
	f3AND    = 0b111

	f3LB  = 0b000
	f3LH  = 0b001
	f3LW  = 0b010
	f3LBU = 0b100
	f3LHU = 0b101

	f3SB = 0b000
	f3SH = 0b001
	f3SW = 0b010

	f3BEQ  = 0b000
	f3BNE  = 0b001
	f3BLT  = 0b100
	f3BGE  = 0b101
	f3BLTU = 0b110
	f3BGEU = 0b111

	f3FENCE   = 0b000
	f3FENCEI  = 0b001

	f3CSRRW  = 0b001
	f3CSRRS  = 0b010
	f3CSRRC  = 0b011
	f3CSRRWI = 0b101
	f3CSRRSI = 0b110
	f3CSRRCI = 0b111
	f3PRIV   = 0b000

	f3AMO = 0b010
)

// funct7 values distinguishing ADD/SUB, SRL/SRA, and the M-extension.
const (
	f7Alt   = 0b0100000
	f7Base  = 0b0000000
	f7MExt  = 0b0000001
)

// funct5 values for AMO (funct7[6:2]).
const (
	amoLR      = 0b00010
	amoSC      = 0b00011
	amoSWAP    = 0b00001
	amoADD     = 0b00000
	amoXOR     = 0b00100
	amoAND     = 0b01100
	amoOR      = 0b01000
	amoMIN     = 0b10000
	amoMAX     = 0b10100
	amoMINU    = 0b11000
	amoMAXU    = 0b11100
)

// imm12 values for the PRIV class (funct3==0, rd==0, rs1==0).
const (
	privECALL  = 0x000
	privEBREAK = 0x001
	privSRET   = 0x102
	privMRET   = 0x302
	privWFI    = 0x105
)

// SystemImage is the accessible side-effect surface an instruction can
// reach: registers, CSRs, translation, and physical memory.
type SystemImage struct {
	Regs *regfile.RegFile
	CSR  *csr.File
	Mem  *memmap.Memory

	// Semihost, if non-nil, is invoked for the EBREAK semihosting special
	// case (§4.7): writes the byte at the address held in a1 to the host's
	// standard output.
	Semihost func(b byte)

	icacheFlush func()
}

// SetICacheFlush installs the hart's icache invalidation hook; exec calls
// it on every SYSTEM-opcode instruction and FENCE.I per §3's Icache rule.
func (s *SystemImage) SetICacheFlush(f func()) { s.icacheFlush = f }

func (s *SystemImage) flushICache() {
	if s.icacheFlush != nil {
		s.icacheFlush()
	}
}

// Execute runs one decoded instruction. On success it advances or sets PC
// itself (callers must not also advance PC) and returns nil. On failure it
// returns a *trap.Trap or trap.ExitRequest; State is not required to be
// rolled back by the caller since every path here returns before mutating
// anything observable once a fault is known.
func Execute(in decode.Inst, s *SystemImage) error {
	switch in.Opcode {
	case decode.OpLoad:
		return execLoad(in, s)
	case decode.OpStore:
		return execStore(in, s)
	case decode.OpImm:
		return execOpImm(in, s)
	case decode.OpOp:
		return execOp(in, s)
	case decode.OpLUI:
		s.Regs.Set(in.Rd, in.ImmU)
		s.Regs.AdvancePC()
		return nil
	case decode.OpAUIPC:
		s.Regs.Set(in.Rd, s.Regs.PC().Add(in.ImmU))
		s.Regs.AdvancePC()
		return nil
	case decode.OpBranch:
		return execBranch(in, s)
	case decode.OpJAL:
		target := s.Regs.PC().Add(in.ImmJ)
		if !target.AlignedTo4() {
			return trap.New(trap.InstrAddrMisaligned, target)
		}
		ret := s.Regs.PC().Add(4)
		s.Regs.SetPC(target)
		s.Regs.Set(in.Rd, ret)
		return nil
	case decode.OpJALR:
		target := s.Regs.Get(in.Rs1).Add(in.ImmI).And(^w.Word(1))
		if !target.AlignedTo4() {
			return trap.New(trap.InstrAddrMisaligned, target)
		}
		ret := s.Regs.PC().Add(4)
		s.Regs.SetPC(target)
		s.Regs.Set(in.Rd, ret)
		return nil
	case decode.OpMiscMem:
		s.flushICache()
		s.Regs.AdvancePC()
		return nil
	case decode.OpSystem:
		s.flushICache()
		return execSystem(in, s)
	case decode.OpAMO:
		return execAMO(in, s)
	case decode.OpCustom0:
		if in.Rd != 0 || in.Rs1 != 0 || in.Rs2 != 0 || in.Funct3 != 0 || in.Funct7 != 0 {
			return trap.New(trap.IllegalInstruction, in.Raw)
		}
		if s.CSR.GetPrivilege() != csr.Machine {
			return trap.New(trap.IllegalInstruction, in.Raw)
		}
		return trap.ExitRequest{}
	default:
		return trap.New(trap.IllegalInstruction, in.Raw)
	}
}

func translateAndAccess(addr w.Word, access mmu.AccessType, s *SystemImage) (uint64, error) {
	return mmu.Translate(addr, access, s.CSR, s.Mem)
}

func execLoad(in decode.Inst, s *SystemImage) error {
	addr := s.Regs.Get(in.Rs1).Add(in.ImmI)
	switch in.Funct3 {
	case f3LB:
		pa, err := translateAndAccess(addr, mmu.Load, s)
		if err != nil {
			return err
		}
		v, err := s.Mem.ReadByte(pa, mmu.Load)
		if err != nil {
			return err
		}
		s.Regs.Set(in.Rd, w.SignExtend(uint32(v), 7))
	case f3LH:
		pa, err := translateAndAccess(addr, mmu.Load, s)
		if err != nil {
			return err
		}
		v, err := s.Mem.ReadHalf(pa, mmu.Load)
		if err != nil {
			return err
		}
		s.Regs.Set(in.Rd, w.SignExtend(v.Uint32(), 15))
	case f3LW:
		pa, err := translateAndAccess(addr, mmu.Load, s)
		if err != nil {
			return err
		}
		v, err := s.Mem.ReadWord(pa, mmu.Load)
		if err != nil {
			return err
		}
		s.Regs.Set(in.Rd, v)
	case f3LBU:
		pa, err := translateAndAccess(addr, mmu.Load, s)
		if err != nil {
			return err
		}
		v, err := s.Mem.ReadByte(pa, mmu.Load)
		if err != nil {
			return err
		}
		s.Regs.Set(in.Rd, w.Word(v))
	case f3LHU:
		pa, err := translateAndAccess(addr, mmu.Load, s)
		if err != nil {
			return err
		}
		v, err := s.Mem.ReadHalf(pa, mmu.Load)
		if err != nil {
			return err
		}
		s.Regs.Set(in.Rd, v)
	default:
		return trap.New(trap.IllegalInstruction, in.Raw)
	}
	s.Regs.AdvancePC()
	return nil
}

func execStore(in decode.Inst, s *SystemImage) error {
	addr := s.Regs.Get(in.Rs1).Add(in.ImmS)
	val := s.Regs.Get(in.Rs2)
	pa, err := translateAndAccess(addr, mmu.Store, s)
	if err != nil {
		return err
	}
	switch in.Funct3 {
	case f3SB:
		err = s.Mem.WriteByte(pa, byte(val.Uint32()), mmu.Store)
	case f3SH:
		err = s.Mem.WriteHalf(pa, val, mmu.Store)
	case f3SW:
		err = s.Mem.WriteWord(pa, val, mmu.Store)
	default:
		return trap.New(trap.IllegalInstruction, in.Raw)
	}
	if err != nil {
		return err
	}
	s.Regs.AdvancePC()
	return nil
}

func execOpImm(in decode.Inst, s *SystemImage) error {
	rs1 := s.Regs.Get(in.Rs1)
	var result w.Word
	switch in.Funct3 {
	case f3ADDSUB:
		result = rs1.Add(in.ImmI)
	case f3SLT:
		result = boolWord(rs1.LessSigned(in.ImmI))
	case f3SLTU:
		result = boolWord(rs1.LessUnsigned(in.ImmI))
	case f3XOR:
		result = rs1.Xor(in.ImmI)
	case f3OR:
		result = rs1.Or(in.ImmI)
	case f3AND:
		result = rs1.And(in.ImmI)
	case f3SLL:
		if in.Funct7 != f7Base {
			return trap.New(trap.IllegalInstruction, in.Raw)
		}
		result = rs1.ShiftLeft(in.ImmI.Bits(4, 0))
	case f3SRLSRA:
		switch in.Funct7 {
		case f7Base:
			result = rs1.ShiftRightLogical(in.ImmI.Bits(4, 0))
		case f7Alt:
			result = rs1.ShiftRightArithmetic(in.ImmI.Bits(4, 0))
		default:
			return trap.New(trap.IllegalInstruction, in.Raw)
		}
	default:
		return trap.New(trap.IllegalInstruction, in.Raw)
	}
	s.Regs.Set(in.Rd, result)
	s.Regs.AdvancePC()
	return nil
}

func execOp(in decode.Inst, s *SystemImage) error {
	rs1 := s.Regs.Get(in.Rs1)
	rs2 := s.Regs.Get(in.Rs2)
	var result w.Word

	if in.Funct7 == f7MExt {
		switch in.Funct3 {
		case 0b000: // MUL
			result = rs1.MulUnsigned(rs2)
		case 0b001: // MULH
			result = rs1.MulHighSigned(rs2)
		case 0b010: // MULHSU
			result = rs1.MulHighSignedUnsigned(rs2)
		case 0b011: // MULHU
			result = rs1.MulHighUnsigned(rs2)
		case 0b100: // DIV
			result = divSigned(rs1, rs2)
		case 0b101: // DIVU
			result = divUnsigned(rs1, rs2)
		case 0b110: // REM
			result = remSigned(rs1, rs2)
		case 0b111: // REMU
			result = remUnsigned(rs1, rs2)
		default:
			return trap.New(trap.IllegalInstruction, in.Raw)
		}
		s.Regs.Set(in.Rd, result)
		s.Regs.AdvancePC()
		return nil
	}

	switch in.Funct3 {
	case f3ADDSUB:
		switch in.Funct7 {
		case f7Base:
			result = rs1.Add(rs2)
		case f7Alt:
			result = rs1.Sub(rs2)
		default:
			return trap.New(trap.IllegalInstruction, in.Raw)
		}
	case f3SLL:
		if in.Funct7 != f7Base {
			return trap.New(trap.IllegalInstruction, in.Raw)
		}
		result = rs1.ShiftLeft(rs2)
	case f3SLT:
		if in.Funct7 != f7Base {
			return trap.New(trap.IllegalInstruction, in.Raw)
		}
		result = boolWord(rs1.LessSigned(rs2))
	case f3SLTU:
		if in.Funct7 != f7Base {
			return trap.New(trap.IllegalInstruction, in.Raw)
		}
		result = boolWord(rs1.LessUnsigned(rs2))
	case f3XOR:
		if in.Funct7 != f7Base {
			return trap.New(trap.IllegalInstruction, in.Raw)
		}
		result = rs1.Xor(rs2)
	case f3SRLSRA:
		switch in.Funct7 {
		case f7Base:
			result = rs1.ShiftRightLogical(rs2)
		case f7Alt:
			result = rs1.ShiftRightArithmetic(rs2)
		default:
			return trap.New(trap.IllegalInstruction, in.Raw)
		}
	case f3OR:
		if in.Funct7 != f7Base {
			return trap.New(trap.IllegalInstruction, in.Raw)
		}
		result = rs1.Or(rs2)
	case f3AND:
		if in.Funct7 != f7Base {
			return trap.New(trap.IllegalInstruction, in.Raw)
		}
		result = rs1.And(rs2)
	default:
		return trap.New(trap.IllegalInstruction, in.Raw)
	}
	s.Regs.Set(in.Rd, result)
	s.Regs.AdvancePC()
	return nil
}

func divSigned(a, b w.Word) w.Word {
	if b == 0 {
		return w.Word(0xFFFFFFFF)
	}
	if a.Int32() == -2147483648 && b.Int32() == -1 {
		return a
	}
	return w.FromInt32(a.Int32() / b.Int32())
}

func divUnsigned(a, b w.Word) w.Word {
	if b == 0 {
		return w.Word(0xFFFFFFFF)
	}
	return w.Word(a.Uint32() / b.Uint32())
}

func remSigned(a, b w.Word) w.Word {
	if b == 0 {
		return a
	}
	if a.Int32() == -2147483648 && b.Int32() == -1 {
		return 0
	}
	return w.FromInt32(a.Int32() % b.Int32())
}

func remUnsigned(a, b w.Word) w.Word {
	if b == 0 {
		return a
	}
	return w.Word(a.Uint32() % b.Uint32())
}

func boolWord(v bool) w.Word {
	if v {
		return 1
	}
	return 0
}

func execBranch(in decode.Inst, s *SystemImage) error {
	rs1 := s.Regs.Get(in.Rs1)
	rs2 := s.Regs.Get(in.Rs2)
	var taken bool
	switch in.Funct3 {
	case f3BEQ:
		taken = rs1.Eq(rs2)
	case f3BNE:
		taken = !rs1.Eq(rs2)
	case f3BLT:
		taken = rs1.LessSigned(rs2)
	case f3BGE:
		taken = !rs1.LessSigned(rs2)
	case f3BLTU:
		taken = rs1.LessUnsigned(rs2)
	case f3BGEU:
		taken = !rs1.LessUnsigned(rs2)
	default:
		return trap.New(trap.IllegalInstruction, in.Raw)
	}
	if !taken {
		s.Regs.AdvancePC()
		return nil
	}
	target := s.Regs.PC().Add(in.ImmB)
	if !target.AlignedTo4() {
		return trap.New(trap.InstrAddrMisaligned, target)
	}
	s.Regs.SetPC(target)
	return nil
}

func execSystem(in decode.Inst, s *SystemImage) error {
	switch in.Funct3 {
	case f3CSRRW, f3CSRRS, f3CSRRC, f3CSRRWI, f3CSRRSI, f3CSRRCI:
		return execCSR(in, s)
	case f3PRIV:
		return execPriv(in, s)
	default:
		return trap.New(trap.IllegalInstruction, in.Raw)
	}
}

func execCSR(in decode.Inst, s *SystemImage) error {
	addr := uint16(in.Raw.Bits(31, 20).Uint32())

	isImmediate := in.Funct3 == f3CSRRWI || in.Funct3 == f3CSRRSI || in.Funct3 == f3CSRRCI
	writeNeeded := in.Funct3 == f3CSRRW || in.Funct3 == f3CSRRWI
	var srcVal w.Word
	if isImmediate {
		srcVal = w.Word(in.Rs1) // zero-extended 5-bit immediate, reusing the rs1 field per encoding
	} else {
		srcVal = s.Regs.Get(in.Rs1)
	}

	if !writeNeeded {
		writeNeeded = in.Rs1 != 0
	}

	var old w.Word
	var err error
	if in.Rd != 0 || writeNeeded {
		old, err = s.CSR.ExplicitRead(addr, in.Raw)
		if err != nil {
			return err
		}
	}

	if writeNeeded {
		var newVal w.Word
		switch in.Funct3 {
		case f3CSRRW, f3CSRRWI:
			newVal = srcVal
		case f3CSRRS, f3CSRRSI:
			newVal = old.Or(srcVal)
		case f3CSRRC, f3CSRRCI:
			newVal = old.And(srcVal.Not())
		}
		if err := s.CSR.ExplicitWrite(addr, newVal, in.Raw); err != nil {
			return err
		}
	}

	s.Regs.Set(in.Rd, old)
	s.Regs.AdvancePC()
	return nil
}

func execPriv(in decode.Inst, s *SystemImage) error {
	imm12 := uint32(in.Raw.Bits(31, 20).Uint32())
	switch imm12 {
	case privECALL:
		var cause trap.Cause
		switch s.CSR.GetPrivilege() {
		case csr.Machine:
			cause = trap.ECallFromM
		case csr.Supervisor:
			cause = trap.ECallFromS
		default:
			cause = trap.ECallFromU
		}
		return trap.New(cause, 0)
	case privEBREAK:
		if s.Semihost != nil && isSemihostingBreak(in, s) {
			pa, err := translateAndAccess(s.Regs.Get(11), mmu.Load, s)
			if err != nil {
				return err
			}
			b, err := s.Mem.ReadByte(pa, mmu.Load)
			if err != nil {
				return err
			}
			s.Semihost(b)
			s.Regs.AdvancePC()
			return nil
		}
		return trap.New(trap.Breakpoint, 0)
	case privMRET:
		s.CSR.SetPrivilege(s.CSR.MPP())
		s.CSR.SetMIE(s.CSR.MPIE())
		s.CSR.SetMPIE(true)
		s.CSR.SetMPP(csr.User)
		s.Regs.SetPC(s.CSR.Mepc())
		s.Regs.ClearReservation()
		return nil
	case privSRET:
		s.CSR.SetPrivilege(s.CSR.SPP())
		s.CSR.SetSIE(s.CSR.SPIE())
		s.CSR.SetSPIE(true)
		s.CSR.SetSPP(csr.User)
		s.Regs.SetPC(s.CSR.Sepc())
		s.Regs.ClearReservation()
		return nil
	case privWFI:
		s.Regs.AdvancePC()
		return nil
	default:
		if in.Funct7 == 0b0001001 { // SFENCE.VMA
			s.flushICache()
			s.Regs.AdvancePC()
			return nil
		}
		return trap.New(trap.IllegalInstruction, in.Raw)
	}
}

// isSemihostingBreak detects the semihosting idiom: the word preceding the
// EBREAK is `slli x0,x0,0x1f` and the word following is `srai x0,x0,0x7`.
// The neighbor words are fetched here through the PC-relative reads below,
// since exec has no direct icache access; when either neighbor cannot be
// translated or read, isSemihostingBreak returns false and the
// architectural breakpoint path is taken.
func isSemihostingBreak(in decode.Inst, s *SystemImage) bool {
	pc := s.Regs.PC()
	prevPA, err := translateAndAccess(pc.Sub(4), mmu.Fetch, s)
	if err != nil {
		return false
	}
	prev, err := s.Mem.ReadWord(prevPA, mmu.Fetch)
	if err != nil {
		return false
	}
	nextPA, err := translateAndAccess(pc.Add(4), mmu.Fetch, s)
	if err != nil {
		return false
	}
	next, err := s.Mem.ReadWord(nextPA, mmu.Fetch)
	if err != nil {
		return false
	}
	const sllix0x01f = 0x01F01013
	const sraix0x07 = 0x4070D013
	return prev == w.Word(sllix0x01f) && next == w.Word(sraix0x07) && s.CSR.GetPrivilege() == csr.Machine
}

func execAMO(in decode.Inst, s *SystemImage) error {
	if in.Funct3 != f3AMO {
		return trap.New(trap.IllegalInstruction, in.Raw)
	}
	addr := s.Regs.Get(in.Rs1)
	if !addr.AlignedTo4() {
		return trap.New(trap.StoreAddrMisaligned, addr)
	}

	switch in.Funct5 {
	case amoLR:
		pa, err := translateAndAccess(addr, mmu.Load, s)
		if err != nil {
			return remapStoreAccessFault(err)
		}
		v, err := s.Mem.ReadWord(pa, mmu.Load)
		if err != nil {
			return remapStoreAccessFault(err)
		}
		s.Regs.Reserve(addr)
		s.Regs.Set(in.Rd, v)
		s.Regs.AdvancePC()
		return nil
	case amoSC:
		if !s.Regs.ReservationHolds(addr) {
			s.Regs.ClearReservation()
			s.Regs.Set(in.Rd, 1)
			s.Regs.AdvancePC()
			return nil
		}
		pa, err := translateAndAccess(addr, mmu.Store, s)
		if err != nil {
			return err
		}
		if err := s.Mem.WriteWord(pa, s.Regs.Get(in.Rs2), mmu.Store); err != nil {
			return err
		}
		s.Regs.ClearReservation()
		s.Regs.Set(in.Rd, 0)
		s.Regs.AdvancePC()
		return nil
	}

	pa, err := translateAndAccess(addr, mmu.Load, s)
	if err != nil {
		return remapStoreAccessFault(err)
	}
	old, err := s.Mem.ReadWord(pa, mmu.Load)
	if err != nil {
		return remapStoreAccessFault(err)
	}
	rs2 := s.Regs.Get(in.Rs2)

	var result w.Word
	switch in.Funct5 {
	case amoSWAP:
		result = rs2
	case amoADD:
		result = old.Add(rs2)
	case amoXOR:
		result = old.Xor(rs2)
	case amoAND:
		result = old.And(rs2)
	case amoOR:
		result = old.Or(rs2)
	case amoMIN:
		if rs2.LessSigned(old) {
			result = rs2
		} else {
			result = old
		}
	case amoMAX:
		if old.LessSigned(rs2) {
			result = rs2
		} else {
			result = old
		}
	case amoMINU:
		if rs2.LessUnsigned(old) {
			result = rs2
		} else {
			result = old
		}
	case amoMAXU:
		if old.LessUnsigned(rs2) {
			result = rs2
		} else {
			result = old
		}
	default:
		return trap.New(trap.IllegalInstruction, in.Raw)
	}

	if err := s.Mem.WriteWord(pa, result, mmu.Store); err != nil {
		return err
	}
	s.Regs.Set(in.Rd, old)
	s.Regs.AdvancePC()
	return nil
}

// remapStoreAccessFault relabels a fault raised during an AMO's read phase
// as store-or-AMO, per §4.5: "Access faults from the memory phase are
// reported as store-or-AMO access faults even if triggered during the read
// phase, because the architectural memory operation is an AMO."
func remapStoreAccessFault(err error) error {
	t, ok := err.(*trap.Trap)
	if !ok {
		return err
	}
	switch t.Cause {
	case trap.LoadAccessFault:
		return trap.New(trap.StoreAccessFault, t.Tval)
	case trap.LoadPageFault:
		return trap.New(trap.StorePageFault, t.Tval)
	case trap.LoadAddrMisaligned:
		return trap.New(trap.StoreAddrMisaligned, t.Tval)
	default:
		return err
	}
}
