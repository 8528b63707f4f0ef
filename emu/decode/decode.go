// Package decode classifies a 32-bit instruction word into an instruction
// format and subfields, following the bit layouts from the RISC-V base ISA.
// Field extraction mirrors the teacher's opcodemap-style constant tables;
// the format switch and immediate construction are grounded on the
// original C++ decoder (decode.cpp) this simulator was distilled from.
package decode

import (
	w "github.com/angry-goose-initiative/irve-sub000/emu/word"
)

// Format is the instruction encoding shape.
type Format uint8

const (
	RType Format = iota
	IType
	SType
	BType
	UType
	JType
)

func (f Format) String() string {
	switch f {
	case RType:
		return "R"
	case IType:
		return "I"
	case SType:
		return "S"
	case BType:
		return "B"
	case UType:
		return "U"
	case JType:
		return "J"
	default:
		return "?"
	}
}

// Opcode values, bits [6:2] of the instruction word.
const (
	OpLoad    = 0b00000
	OpLoadFP  = 0b00001
	OpCustom0 = 0b00010
	OpMiscMem = 0b00011
	OpImm     = 0b00100
	OpAUIPC   = 0b00101
	OpStore   = 0b01000
	OpAMO     = 0b01011
	OpOp      = 0b01100
	OpLUI     = 0b01101
	OpBranch  = 0b11000
	OpJALR    = 0b11001
	OpJAL     = 0b11011
	OpSystem  = 0b11100
)

// Inst is a decoded instruction.
type Inst struct {
	Raw     w.Word
	Format  Format
	Opcode  uint8
	Funct3  uint8
	Funct5  uint8
	Funct7  uint8
	Rd      uint8
	Rs1     uint8
	Rs2     uint8
	ImmI    w.Word
	ImmS    w.Word
	ImmB    w.Word
	ImmU    w.Word
	ImmJ    w.Word
}

// Imm returns the immediate appropriate to the instruction's format. Callers
// must not call this for R-type instructions, which carry no immediate.
func (in Inst) Imm() w.Word {
	switch in.Format {
	case IType:
		return in.ImmI
	case SType:
		return in.ImmS
	case BType:
		return in.ImmB
	case UType:
		return in.ImmU
	case JType:
		return in.ImmJ
	default:
		return 0
	}
}

// Decode classifies ci into a decoded instruction, or reports that it is
// illegal (reserved all-zero/all-ones pattern, a compressed instruction, or
// an opcode this core does not recognize).
func Decode(ci w.Word) (Inst, bool) {
	if ci == 0 || ci == 0xFFFFFFFF {
		return Inst{}, false
	}
	if ci.Bits(1, 0) != 0b11 {
		return Inst{}, false
	}

	in := Inst{
		Raw:    ci,
		Opcode: uint8(ci.Bits(6, 2)),
		Funct3: uint8(ci.Bits(14, 12)),
		Funct5: uint8(ci.Bits(31, 27)),
		Funct7: uint8(ci.Bits(31, 25)),
		Rd:     uint8(ci.Bits(11, 7)),
		Rs1:    uint8(ci.Bits(19, 15)),
		Rs2:    uint8(ci.Bits(24, 20)),
	}

	in.ImmI = w.SignExtend(uint32(ci.Bits(31, 20)), 11)
	in.ImmS = w.SignExtend(uint32((ci.Bits(31, 25)<<5)|ci.Bits(11, 7)), 11)
	in.ImmB = w.SignExtend(uint32(
		(boolBit(ci.Bit(31))<<12)|
			(boolBit(ci.Bit(7))<<11)|
			(uint32(ci.Bits(30, 25))<<5)|
			(uint32(ci.Bits(11, 8))<<1)), 12)
	in.ImmU = w.Word(uint32(ci) & 0xFFFFF000)
	in.ImmJ = w.SignExtend(uint32(
		(boolBit(ci.Bit(31))<<20)|
			(uint32(ci.Bits(19, 12))<<12)|
			(boolBit(ci.Bit(20))<<11)|
			(uint32(ci.Bits(30, 21))<<1)), 20)

	switch in.Opcode {
	case OpOp, OpCustom0, OpAMO:
		in.Format = RType
	case OpLoad, OpImm, OpJALR, OpSystem, OpMiscMem:
		in.Format = IType
	case OpStore:
		in.Format = SType
	case OpBranch:
		in.Format = BType
	case OpLUI, OpAUIPC:
		in.Format = UType
	case OpJAL:
		in.Format = JType
	default:
		return Inst{}, false
	}

	return in, true
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
