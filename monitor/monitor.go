// Package monitor is the interactive front-end REPL: a peterh/liner
// prompt offering step/continue/regs/csr/break/mem commands against a
// hart, the same line-editing library the teacher's dependency set already
// carries (main.go's stdin command reader is the closest teacher analogue,
// though the teacher reads raw stdin lines rather than using liner's
// history/editing). While a 'continue' is running, stdin is switched to
// raw mode via golang.org/x/term so guest console input reaches the
// simulated UART byte-for-byte instead of being line-buffered by the host
// terminal. There is no interrupt key: in raw mode ctrl-C is an ordinary
// stdin byte, and a 'continue' runs until a breakpoint or an exit request.
package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/angry-goose-initiative/irve-sub000/emu/csr"
	"github.com/angry-goose-initiative/irve-sub000/emu/hart"
	"github.com/angry-goose-initiative/irve-sub000/emu/mmu"
	w "github.com/angry-goose-initiative/irve-sub000/emu/word"
	"github.com/angry-goose-initiative/irve-sub000/util/hex"
)

// Monitor drives a hart interactively from a terminal.
type Monitor struct {
	h   *hart.Hart
	log *slog.Logger

	breakpoints map[uint32]bool
}

// New returns a monitor for h.
func New(h *hart.Hart, log *slog.Logger) *Monitor {
	return &Monitor{h: h, log: log.With("component", "monitor"), breakpoints: make(map[uint32]bool)}
}

// Run drives the REPL until the user quits or the guest issues an exit
// request.
func (m *Monitor) Run() {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("irve monitor: step, continue, regs, csr <name>, break <addr>, mem <addr> <len>, quit")

	for {
		input, err := line.Prompt("(irve) ")
		if err != nil {
			return
		}
		line.AppendHistory(input)
		if m.dispatch(strings.TrimSpace(input)) {
			return
		}
	}
}

// dispatch runs one command, reporting whether the monitor should exit.
func (m *Monitor) dispatch(cmdline string) bool {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "step", "s":
		if m.h.Tick() == hart.ExitRequested {
			fmt.Println("exit requested")
			return true
		}
		m.printPC()
	case "continue", "c":
		m.runUntilBreakOrExit()
	case "regs", "r":
		m.printRegs()
	case "csr":
		if len(fields) != 2 {
			fmt.Println("usage: csr <name-or-hex-addr>")
			return false
		}
		m.printCSR(fields[1])
	case "break", "b":
		if len(fields) != 2 {
			fmt.Println("usage: break <hex-addr>")
			return false
		}
		addr, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 32)
		if err != nil {
			fmt.Println("bad address:", fields[1])
			return false
		}
		m.breakpoints[uint32(addr)] = true
		fmt.Printf("breakpoint set at %#08x\n", addr)
	case "mem":
		if len(fields) != 3 {
			fmt.Println("usage: mem <hex-addr> <len>")
			return false
		}
		m.dumpMem(fields[1], fields[2])
	case "quit", "q":
		return true
	default:
		fmt.Println("unknown command:", fields[0])
	}
	return false
}

func (m *Monitor) runUntilBreakOrExit() {
	restore := m.enterRawMode()
	defer restore()

	for {
		if m.breakpoints[m.h.Regs.PC().Uint32()] {
			fmt.Printf("breakpoint hit at %#08x\n", m.h.Regs.PC().Uint32())
			return
		}
		if m.h.Tick() == hart.ExitRequested {
			fmt.Println("exit requested")
			return
		}
	}
}

// enterRawMode puts stdin in raw mode for the duration of a continue, so
// guest console I/O is not line-buffered by the host terminal. It returns
// a restore function; if stdin is not a real terminal (e.g. under test),
// it is a no-op.
func (m *Monitor) enterRawMode() func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}
	}
	return func() { _ = term.Restore(fd, old) }
}

func (m *Monitor) printPC() {
	fmt.Printf("pc = %#08x\n", m.h.Regs.PC().Uint32())
}

func (m *Monitor) printRegs() {
	var sb strings.Builder
	for i := uint8(0); i < 32; i++ {
		fmt.Printf("x%-2d = 0x", i)
		sb.Reset()
		hex.FormatWord32(&sb, m.h.Regs.Get(i).Uint32())
		fmt.Print(sb.String())
		fmt.Print("  ")
		if i%4 == 3 {
			fmt.Println()
		}
	}
	sb.Reset()
	hex.FormatWord32(&sb, m.h.Regs.PC().Uint32())
	fmt.Printf("pc  = 0x%s  minstret = %d\n", sb.String(), m.h.InstCount())
}

var csrNames = map[string]uint16{
	"mstatus": csr.AddrMstatus, "sstatus": csr.AddrSstatus,
	"mtvec": csr.AddrMtvec, "stvec": csr.AddrStvec,
	"mepc": csr.AddrMepc, "sepc": csr.AddrSepc,
	"mcause": csr.AddrMcause, "scause": csr.AddrScause,
	"mtval": csr.AddrMtval, "stval": csr.AddrStval,
	"mie": csr.AddrMie, "mip": csr.AddrMip,
	"satp": csr.AddrSatp,
}

func (m *Monitor) printCSR(name string) {
	addr, ok := csrNames[name]
	if !ok {
		v, err := strconv.ParseUint(strings.TrimPrefix(name, "0x"), 16, 16)
		if err != nil {
			fmt.Println("unknown CSR:", name)
			return
		}
		addr = uint16(v)
	}
	v, ok := m.h.CSR.ImplicitRead(addr)
	if !ok {
		fmt.Println("no such CSR:", name)
		return
	}
	fmt.Printf("%s = %#08x\n", name, v.Uint32())
}

func (m *Monitor) dumpMem(addrStr, lenStr string) {
	addr, err := strconv.ParseUint(strings.TrimPrefix(addrStr, "0x"), 16, 32)
	if err != nil {
		fmt.Println("bad address:", addrStr)
		return
	}
	length, err := strconv.ParseUint(lenStr, 10, 32)
	if err != nil {
		fmt.Println("bad length:", lenStr)
		return
	}
	for i := uint64(0); i < length; i++ {
		pa, terr := mmu.Translate(w.Word(uint32(addr)+uint32(i)), mmu.Load, m.h.CSR, m.h.Mem)
		if terr != nil {
			fmt.Printf("%#08x: <fault>\n", addr+i)
			return
		}
		b, merr := m.h.Mem.ReadByte(pa, mmu.Load)
		if merr != nil {
			fmt.Printf("%#08x: <fault>\n", addr+i)
			return
		}
		if i%16 == 0 {
			if i != 0 {
				fmt.Println()
			}
			var ab strings.Builder
			hex.FormatWord32(&ab, uint32(addr+i))
			fmt.Printf("0x%s: ", ab.String())
		}
		var bb strings.Builder
		hex.FormatByte(&bb, b)
		fmt.Print(bb.String())
		fmt.Print(" ")
	}
	fmt.Println()
}
