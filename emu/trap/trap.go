// Package trap represents RISC-V exceptions and interrupts as ordinary Go
// error values threaded through return values, rather than exceptions. This
// is the re-architecture the design notes call for: every operation that can
// fault returns a Trap alongside its result, and the hart loop is the single
// site that delivers it (see package hart). The numbering mirrors the
// teacher's irc-code convention in emu/cpu/cpu.go (suppress(vector, irc)),
// translated into named Go causes.
package trap

import w "github.com/angry-goose-initiative/irve-sub000/emu/word"

// Cause identifies a trap. Interrupt causes have the MSB conceptually set;
// we track that separately via IsInterrupt rather than stealing a bit, since
// Go has no need to cram cause and direction into one machine word.
type Cause uint32

// Exception causes (mcause/scause low bits when IsInterrupt is false).
const (
	InstrAddrMisaligned Cause = 0
	InstrAccessFault    Cause = 1
	IllegalInstruction  Cause = 2
	Breakpoint          Cause = 3
	LoadAddrMisaligned  Cause = 4
	LoadAccessFault     Cause = 5
	StoreAddrMisaligned Cause = 6
	StoreAccessFault    Cause = 7
	ECallFromU          Cause = 8
	ECallFromS          Cause = 9
	ECallFromM          Cause = 11
	InstrPageFault      Cause = 12
	LoadPageFault       Cause = 13
	StorePageFault      Cause = 15
)

// Interrupt causes (mip/mie/mideleg bit positions, also used as mcause low bits
// when IsInterrupt is true).
const (
	SSI Cause = 1
	MSI Cause = 3
	STI Cause = 5
	MTI Cause = 7
	SEI Cause = 9
	MEI Cause = 11
)

// Trap is a fault result: a cause plus the architectural tval.
type Trap struct {
	Cause       Cause
	Tval        w.Word
	IsInterrupt bool
}

// Error implements the error interface so Trap can be returned as a plain Go
// error and still be type-asserted back to *Trap where the hart loop needs
// the structured fields.
func (t *Trap) Error() string {
	if t.IsInterrupt {
		return "interrupt " + causeName(t.Cause, true)
	}
	return "exception " + causeName(t.Cause, false)
}

// New builds an exception trap.
func New(cause Cause, tval w.Word) *Trap {
	return &Trap{Cause: cause, Tval: tval}
}

// NewInterrupt builds an interrupt trap.
func NewInterrupt(cause Cause) *Trap {
	return &Trap{Cause: cause, IsInterrupt: true}
}

// ExitRequest is the non-architectural sentinel the execution unit returns
// for CUSTOM_0 (polite exit). It is not a Trap: the hart loop special-cases
// it and unwinds cleanly instead of delivering it as an architectural fault.
type ExitRequest struct{}

func (ExitRequest) Error() string { return "polite exit request" }

func causeName(c Cause, interrupt bool) string {
	if interrupt {
		names := map[Cause]string{
			SSI: "supervisor-software-interrupt",
			MSI: "machine-software-interrupt",
			STI: "supervisor-timer-interrupt",
			MTI: "machine-timer-interrupt",
			SEI: "supervisor-external-interrupt",
			MEI: "machine-external-interrupt",
		}
		if n, ok := names[c]; ok {
			return n
		}
		return "unknown"
	}
	names := map[Cause]string{
		InstrAddrMisaligned: "instruction-address-misaligned",
		InstrAccessFault:    "instruction-access-fault",
		IllegalInstruction:  "illegal-instruction",
		Breakpoint:          "breakpoint",
		LoadAddrMisaligned:  "load-address-misaligned",
		LoadAccessFault:     "load-access-fault",
		StoreAddrMisaligned: "store-or-amo-address-misaligned",
		StoreAccessFault:    "store-or-amo-access-fault",
		ECallFromU:          "ecall-from-u-mode",
		ECallFromS:          "ecall-from-s-mode",
		ECallFromM:          "ecall-from-m-mode",
		InstrPageFault:      "instruction-page-fault",
		LoadPageFault:       "load-page-fault",
		StorePageFault:      "store-or-amo-page-fault",
	}
	if n, ok := names[c]; ok {
		return n
	}
	return "unknown"
}

// Priority returns the interrupt delivery priority, lower is higher priority,
// per spec: MEI, MSI, MTI, SEI, SSI, STI.
func Priority(c Cause) int {
	order := map[Cause]int{MEI: 0, MSI: 1, MTI: 2, SEI: 3, SSI: 4, STI: 5}
	if p, ok := order[c]; ok {
		return p
	}
	return 99
}
