// Package hart drives the fetch-decode-execute-retire loop: it owns the
// register file, CSR file, physical memory, and the decoder memoization
// table (icache), and is the single site that delivers traps. The
// tick/run_until/inst_count method set mirrors the teacher's core.Start
// goroutine loop in emu/core/core.go (CycleCPU driving CPU state one step
// at a time, advancing event time) collapsed into a synchronous call a
// front-end can drive directly, since this core has no multi-device event
// queue to interleave with. Trap delivery (storing cause/tval/epc, setting
// privilege, vectoring to the handler base) follows the save/restore shape
// of the teacher's storePSW in emu/cpu/cpu.go, generalized from PSW words
// to the M/S trap CSR groups.
package hart

import (
	"github.com/angry-goose-initiative/irve-sub000/emu/csr"
	"github.com/angry-goose-initiative/irve-sub000/emu/decode"
	"github.com/angry-goose-initiative/irve-sub000/emu/exec"
	"github.com/angry-goose-initiative/irve-sub000/emu/memmap"
	"github.com/angry-goose-initiative/irve-sub000/emu/mmu"
	"github.com/angry-goose-initiative/irve-sub000/emu/regfile"
	"github.com/angry-goose-initiative/irve-sub000/emu/trap"
	w "github.com/angry-goose-initiative/irve-sub000/emu/word"
)

// Outcome reports what a single Tick did.
type Outcome int

const (
	Retired Outcome = iota
	ExitRequested
)

// Hart is one RV32IMA_Zicsr_Zifencei hardware thread.
type Hart struct {
	Regs *regfile.RegFile
	CSR  *csr.File
	Mem  *memmap.Memory

	icache map[w.Word]decode.Inst

	sys *exec.SystemImage

	// Semihost, if set, is invoked by exec's EBREAK semihosting path.
	Semihost func(b byte)
}

// New constructs a hart with fresh register, CSR, and memory state. Memory
// devices (UART, debug sink, timer forwarding) must already be attached to
// mem before use.
func New(mem *memmap.Memory) *Hart {
	h := &Hart{
		Regs:   regfile.New(),
		CSR:    csr.New(),
		Mem:    mem,
		icache: make(map[w.Word]decode.Inst),
	}
	mem.Timer = h.CSR
	h.sys = &exec.SystemImage{Regs: h.Regs, CSR: h.CSR, Mem: h.Mem}
	h.sys.SetICacheFlush(h.FlushICache)
	return h
}

// FlushICache empties the decode memoization table; invoked on FENCE.I,
// any SYSTEM-opcode instruction, any taken trap, and any trap-return.
func (h *Hart) FlushICache() {
	for k := range h.icache {
		delete(h.icache, k)
	}
}

// InstCount reports minstret.
func (h *Hart) InstCount() uint64 {
	return h.CSR.Minstret()
}

// Tick executes exactly one retirement step per §4.6.
func (h *Hart) Tick() Outcome {
	if h.Semihost != nil {
		h.sys.Semihost = h.Semihost
	}

	h.CSR.IncrementCounters()

	pc := h.Regs.PC()
	in, ok := h.icache[pc]
	var fetchErr error
	if !ok {
		in, fetchErr = h.fetchDecode(pc)
		if fetchErr == nil {
			if in.Opcode != decode.OpMiscMem && in.Opcode != decode.OpSystem {
				h.icache[pc] = in
			}
		}
	}

	var execErr error
	if fetchErr != nil {
		execErr = fetchErr
	} else {
		execErr = exec.Execute(in, h.sys)
	}

	if execErr != nil {
		if _, isExit := execErr.(trap.ExitRequest); isExit {
			return ExitRequested
		}
		t, isTrap := execErr.(*trap.Trap)
		if !isTrap {
			t = trap.New(trap.IllegalInstruction, pc)
		}
		if isECallOrBreak(t) {
			h.CSR.DecrementInstret()
		}
		h.FlushICache()
		h.Regs.ClearReservation()
		h.deliver(t, pc)
	}

	h.CSR.OccasionalUpdateTimer()
	h.checkInterrupt()

	return Retired
}

func isECallOrBreak(t *trap.Trap) bool {
	if t.IsInterrupt {
		return false
	}
	switch t.Cause {
	case trap.ECallFromU, trap.ECallFromS, trap.ECallFromM, trap.Breakpoint:
		return true
	}
	return false
}

func (h *Hart) fetchDecode(pc w.Word) (decode.Inst, error) {
	pa, err := mmu.Translate(pc, mmu.Fetch, h.CSR, h.Mem)
	if err != nil {
		return decode.Inst{}, err
	}
	word, err := h.Mem.ReadWord(pa, mmu.Fetch)
	if err != nil {
		return decode.Inst{}, err
	}
	in, ok := decode.Decode(word)
	if !ok {
		return decode.Inst{}, trap.New(trap.IllegalInstruction, word)
	}
	return in, nil
}

// RunUntil executes instructions until minstret reaches instCount (0 means
// "run until exit"), or an exit request is seen, whichever comes first.
func (h *Hart) RunUntil(instCount uint64) Outcome {
	for {
		if instCount != 0 && h.CSR.Minstret() >= instCount {
			return Retired
		}
		if h.Tick() == ExitRequested {
			return ExitRequested
		}
	}
}

// --- Trap delivery, §4.7 ---

func (h *Hart) deliver(t *trap.Trap, faultPC w.Word) {
	toSupervisor := h.delegatedToS(t)

	if toSupervisor {
		h.CSR.SetSPP(h.CSR.GetPrivilege())
		h.CSR.SetSPIE(h.CSR.SIE())
		h.CSR.SetSIE(false)
		h.CSR.SetScause(causeWord(t))
		h.CSR.SetSepc(faultPC)
		h.CSR.SetStval(t.Tval)
		h.CSR.SetPrivilege(csr.Supervisor)
		h.Regs.SetPC(vector(h.CSR.Stvec(), t))
		return
	}

	h.CSR.SetMPP(h.CSR.GetPrivilege())
	h.CSR.SetMPIE(h.CSR.MIE())
	h.CSR.SetMIE(false)
	h.CSR.SetMcause(causeWord(t))
	h.CSR.SetMepc(faultPC)
	h.CSR.SetMtval(t.Tval)
	h.CSR.SetPrivilege(csr.Machine)
	h.Regs.SetPC(vector(h.CSR.Mtvec(), t))
}

func causeWord(t *trap.Trap) w.Word {
	v := w.Word(uint32(t.Cause))
	if t.IsInterrupt {
		v |= 1 << 31
	}
	return v
}

func vector(tvec w.Word, t *trap.Trap) w.Word {
	base := tvec &^ 0x3
	mode := tvec.Bits(1, 0)
	if mode == 1 && t.IsInterrupt {
		return base.Add(w.Word(4 * uint32(t.Cause)))
	}
	return base
}

func (h *Hart) delegatedToS(t *trap.Trap) bool {
	if h.CSR.GetPrivilege() == csr.Machine {
		return false
	}
	if t.IsInterrupt {
		return h.CSR.Mideleg().Bit(uint(t.Cause))
	}
	return h.CSR.Medeleg().Bit(uint(t.Cause))
}

// checkInterrupt delivers the highest-priority pending+enabled interrupt,
// if any, per the eligibility rule in §4.7.
func (h *Hart) checkInterrupt() {
	pending := h.CSR.Mip().And(h.CSR.Mie())
	if pending == 0 {
		return
	}

	best := trap.Cause(0)
	bestPriority := 1 << 30
	found := false

	for _, cause := range []trap.Cause{trap.MEI, trap.MSI, trap.MTI, trap.SEI, trap.SSI, trap.STI} {
		if !pending.Bit(uint(cause)) {
			continue
		}
		if !h.interruptEligible(cause) {
			continue
		}
		if p := trap.Priority(cause); p < bestPriority {
			bestPriority = p
			best = cause
			found = true
		}
	}
	if !found {
		return
	}

	pc := h.Regs.PC()
	h.FlushICache()
	h.Regs.ClearReservation()
	h.deliver(trap.NewInterrupt(best), pc)
}

func (h *Hart) interruptEligible(cause trap.Cause) bool {
	privilege := h.CSR.GetPrivilege()
	delegatedToS := h.CSR.Mideleg().Bit(uint(cause))

	handlingMode := csr.Machine
	if delegatedToS {
		handlingMode = csr.Supervisor
	}

	switch {
	case privilege == csr.Machine && handlingMode == csr.Machine:
		return h.CSR.MIE()
	case privilege == csr.Machine && handlingMode == csr.Supervisor:
		return false // M cannot be interrupted to S
	case privilege == csr.Supervisor && handlingMode == csr.Supervisor:
		return h.CSR.SIE()
	default:
		// current privilege is strictly below the handling mode: always
		// enabled, per §4.7's "ignored in lower privilege than the
		// handling mode, which is always enabled then".
		return true
	}
}
